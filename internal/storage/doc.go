// Package storage manages the libvirt storage pool that holds VM disks.
//
// A Manager is bound to one pool (config libvirt.storage_pool) and handles:
//   - Pool bootstrap (EnsurePool creates a dir pool when libvirt has none)
//   - Volume create, lookup, list and delete
//   - Uploading generated data (cloud-init seed ISOs) into a volume
//
// Volume Naming Convention:
//
// Volumes follow the naming package:
//   - Boot disk: {domain}.qcow2
//   - Cloud-init: {domain}_cloudinit.iso
//
// Ownership:
//
// Pool and volume permissions use the uid/gid the qemu driver runs as,
// read from /etc/libvirt/qemu.conf (see QEMUOwner).
//
// Errors:
//
// Errors wrap the underlying libvirt.Error; IsPoolNotFound and
// IsVolumeNotFound classify them without string matching.
//
// Example usage:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	mgr := storage.NewManager(client.Libvirt(), "default", logger)
//	if err := mgr.EnsurePool(ctx, "/var/lib/libvirt/images"); err != nil {
//	    return err
//	}
//
//	vol, err := mgr.CreateVolume(ctx, storage.VolumeSpec{
//	    Name:          naming.VolumeName("web01"),
//	    Format:        storage.VolumeFormatQCOW2,
//	    CapacityBytes: 20 << 30,
//	})
package storage
