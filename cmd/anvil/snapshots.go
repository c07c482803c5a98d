package main

import (
	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/resource"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage VM snapshots",
}

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage VM disk volumes",
	Long: `Manage disk volumes in the VM storage pool.

A VM's disk is the volume named {vm-name}.qcow2.`,
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	volumeCmd.AddCommand(volumeListCmd)
	volumeCmd.AddCommand(volumeCreateCmd)
	volumeCmd.AddCommand(volumeDeleteCmd)

	volumeCreateCmd.Flags().Uint64Var(&volumeSizeGiB, "size", 20, "capacity in GiB")
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <id> <name>",
	Short: "Snapshot a VM",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().CreateSnapshot(ctx, args[0], args[1]))
	},
}

var snapshotListCmd = &cobra.Command{
	Use:     "list <id>",
	Aliases: []string{"ls"},
	Short:   "List snapshots of a VM",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		snaps, err := newClient().ListSnapshots(ctx, args[0])
		if err != nil {
			return err
		}
		return render(func(f output.Formatter) (string, error) { return f.FormatSnapshots(snaps) })
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:     "delete <id> <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a VM snapshot",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().DeleteSnapshot(ctx, args[0], args[1]))
	},
}

var volumeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List volumes in the VM storage pool",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		vols, err := newClient().ListVolumes(ctx)
		if err != nil {
			return err
		}
		return render(func(f output.Formatter) (string, error) { return f.FormatVolumes(vols) })
	},
}

var volumeSizeGiB uint64

var volumeCreateCmd = &cobra.Command{
	Use:   "create <vm-name>",
	Short: "Create the disk volume for a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().CreateVolume(ctx, resource.VolumeRequest{
			Name:          args[0],
			CapacityBytes: volumeSizeGiB << 30,
		}))
	},
}

var volumeDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete the disk volume of a stopped VM",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().DeleteVolume(ctx, args[0]))
	},
}
