package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/resource"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show backend health of the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		health, err := newClient().Health(ctx)
		if len(health) > 0 {
			if rerr := render(func(f output.Formatter) (string, error) { return f.FormatHealth(health) }); rerr != nil {
				return rerr
			}
		}
		return err
	},
}

var listKind string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List containers and VMs",
	Long: `List every resource the server manages.

Use --type to restrict the listing to containers or VMs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		resources, err := newClient().List(ctx, resource.Kind(listKind))
		if err != nil {
			return err
		}
		return render(func(f output.Formatter) (string, error) { return f.FormatResourceList(resources) })
	},
}

var getSnapshots bool

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get details about a resource",
	Long: `Get detailed information about a container or VM by id or name.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   Full YAML resource
  -o json   Full JSON resource`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		detail, err := newClient().Get(ctx, args[0], getSnapshots)
		if err != nil {
			return err
		}
		return render(func(f output.Formatter) (string, error) { return f.FormatResource(detail) })
	},
}

var startRevert string

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start, resume or restore a resource",
	Long: `Start a stopped resource. A paused VM is resumed and a saved VM is
restored from its managed-save image.

With --revert the VM is reverted to the named snapshot instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().Start(ctx, args[0], resource.StartOptions{RevertSnapshot: startRevert}))
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop a container or pause a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().Stop(ctx, args[0]))
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <id>",
	Short: "Restart a running resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().Restart(ctx, args[0]))
	},
}

var shutdownOpts resource.ShutdownOptions

var shutdownCmd = &cobra.Command{
	Use:   "shutdown <id>",
	Short: "Shut a running resource down",
	Long: `Shut a running resource down gracefully.

  --save   save VM memory state to disk (VMs only, wins over --force)
  --force  kill the resource without waiting for the guest`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().Shutdown(ctx, args[0], shutdownOpts))
	},
}

var rmOpts resource.RemoveOptions

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a stopped resource",
	Long: `Remove a stopped container or undefine a stopped VM.

A VM with snapshots is refused unless --force is given, in which case the
snapshots are deleted first. --delete-volume also deletes the VM disk.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().Remove(ctx, args[0], rmOpts))
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove all stopped containers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		report, err := newClient().Prune(ctx)
		if err != nil {
			return err
		}
		return render(func(f output.Formatter) (string, error) { return f.FormatPrune(report) })
	},
}

var (
	runOpts  resource.RunOptions
	runPorts []string
)

var runCmd = &cobra.Command{
	Use:   "run <image> [command...]",
	Short: "Create and start a container",
	Long: `Create a container from an image and start it.

Example:
  anvil run -d --name registry -p 5000/tcp=5000 registry:2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := parsePorts(runPorts)
		if err != nil {
			return err
		}
		opts := runOpts
		opts.Ports = ports
		opts.Command = args[1:]

		ctx, cancel := commandContext(cmd)
		defer cancel()

		return showResult(newClient().RunContainer(ctx, args[0], opts))
	},
}

// parsePorts turns "5000/tcp=5000" flags into the port map.
func parsePorts(flags []string) (map[string]int, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	ports := make(map[string]int, len(flags))
	for _, p := range flags {
		containerPort, hostPort, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid port mapping %q (want containerPort/proto=hostPort)", p)
		}
		var n int
		if _, err := fmt.Sscanf(hostPort, "%d", &n); err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("invalid host port in %q", p)
		}
		if !strings.Contains(containerPort, "/") {
			containerPort += "/tcp"
		}
		ports[containerPort] = n
	}
	return ports, nil
}

var (
	runVMFile string
	runVMXML  string
)

var runVMCmd = &cobra.Command{
	Use:   "run-vm",
	Short: "Define and boot a VM",
	Long: `Define a VM and boot it, either from a descriptor file or from raw
libvirt domain XML.

The descriptor is YAML or JSON:

  name: db-01
  vcpu: 2
  memory_gib: 4
  disk_gib: 20
  source_file: fedora-42.iso
  cloud_init:
    hostname: db-01.lab.example.com
    ssh_authorized_keys:
      - ssh-ed25519 AAAA...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (runVMFile == "") == (runVMXML == "") {
			return fmt.Errorf("exactly one of --file and --xml is required")
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		if runVMXML != "" {
			data, err := os.ReadFile(runVMXML)
			if err != nil {
				return fmt.Errorf("failed to read domain XML: %w", err)
			}
			return showResult(newClient().RunVMFromXML(ctx, string(data)))
		}

		spec, err := config.LoadVMSpec(runVMFile)
		if err != nil {
			return err
		}
		return showResult(newClient().RunVMFromSpec(ctx, *spec))
	},
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List container images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		images, err := newClient().ListImages(ctx)
		if err != nil {
			return err
		}
		return render(func(f output.Formatter) (string, error) { return f.FormatImages(images) })
	},
}

func init() {
	listCmd.Flags().StringVarP(&listKind, "type", "t", "", "resource kind: container or vm")
	getCmd.Flags().BoolVar(&getSnapshots, "snapshots", false, "include VM snapshots")
	startCmd.Flags().StringVar(&startRevert, "revert", "", "revert the VM to this snapshot")

	shutdownCmd.Flags().BoolVar(&shutdownOpts.Save, "save", false, "save VM state to disk")
	shutdownCmd.Flags().BoolVarP(&shutdownOpts.Force, "force", "f", false, "force the shutdown")

	rmCmd.Flags().BoolVarP(&rmOpts.Force, "force", "f", false, "delete VM snapshots first / force container removal")
	rmCmd.Flags().BoolVar(&rmOpts.DeleteVolume, "delete-volume", false, "also delete the VM disk volume")

	runCmd.Flags().StringVar(&runOpts.Name, "name", "", "container name")
	runCmd.Flags().BoolVarP(&runOpts.Detach, "detach", "d", true, "start in the background")
	runCmd.Flags().StringArrayVarP(&runPorts, "publish", "p", nil, "port mapping containerPort/proto=hostPort")
	runCmd.Flags().StringArrayVarP(&runOpts.Volumes, "volume", "v", nil, "bind mount host:container[:ro]")
	runCmd.Flags().StringArrayVarP(&runOpts.Env, "env", "e", nil, "environment variable KEY=VALUE")
	runCmd.Flags().SetInterspersed(false)

	runVMCmd.Flags().StringVarP(&runVMFile, "file", "f", "", "VM descriptor (YAML or JSON)")
	runVMCmd.Flags().StringVar(&runVMXML, "xml", "", "libvirt domain XML file")
}
