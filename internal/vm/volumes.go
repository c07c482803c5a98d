package vm

import (
	"context"
	"errors"

	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/storage"
)

// CreateVolume creates the qcow2 boot volume {name}.qcow2 for a domain.
func (a *Adapter) CreateVolume(ctx context.Context, req resource.VolumeRequest) (resource.VolumeRef, error) {
	if err := naming.ValidateDomainName(req.Name); err != nil {
		return resource.VolumeRef{}, resource.ArgumentNotFound(err.Error())
	}
	if req.CapacityBytes == 0 {
		return resource.VolumeRef{}, resource.ArgumentNotFound("capacityBytes must be greater than 0")
	}
	if err := a.ensureConnected(ctx); err != nil {
		return resource.VolumeRef{}, err
	}

	info, err := call(ctx, a, "StorageVolCreateXML", func() (*storage.VolumeInfo, error) {
		return a.store.CreateVolume(ctx, storage.VolumeSpec{
			Name:          naming.VolumeName(req.Name),
			Format:        storage.VolumeFormatQCOW2,
			CapacityBytes: req.CapacityBytes,
		})
	})
	if err != nil {
		return resource.VolumeRef{}, err
	}
	return volumeRef(info), nil
}

// DeleteVolume deletes the domain's {name}.qcow2 volume.
func (a *Adapter) DeleteVolume(ctx context.Context, r resource.Resource) error {
	if err := a.ensureConnected(ctx); err != nil {
		return err
	}

	name := naming.VolumeName(r.Name)
	a.logger.Info("deleting volume", "domain", r.Name, "volume", name)
	err := a.do(ctx, "StorageVolDelete", func() error {
		return a.store.DeleteVolume(ctx, name)
	})
	if errors.Is(err, resource.ErrResourceNotFound) {
		return resource.NotFoundf("Volume %q not found in pool %s -> Check domain name", name, a.store.Pool())
	}
	return err
}

// LookupVolume returns the domain's {name}.qcow2 volume.
func (a *Adapter) LookupVolume(ctx context.Context, r resource.Resource) (resource.VolumeRef, error) {
	if err := a.ensureConnected(ctx); err != nil {
		return resource.VolumeRef{}, err
	}

	name := naming.VolumeName(r.Name)
	info, err := call(ctx, a, "StorageVolLookupByName", func() (*storage.VolumeInfo, error) {
		return a.store.LookupVolume(ctx, name)
	})
	if errors.Is(err, resource.ErrResourceNotFound) {
		return resource.VolumeRef{}, resource.NotFoundf("Volume %q not found in pool %s -> Check domain name", name, a.store.Pool())
	}
	if err != nil {
		return resource.VolumeRef{}, err
	}
	return volumeRef(info), nil
}

// ListVolumes lists every volume of the VM disk pool. The pool is rescanned
// first so disks copied in behind libvirt's back are listed too.
func (a *Adapter) ListVolumes(ctx context.Context) ([]resource.VolumeRef, error) {
	if err := a.ensureConnected(ctx); err != nil {
		return nil, err
	}

	if err := a.do(ctx, "StoragePoolRefresh", func() error {
		return a.store.RefreshPool(ctx)
	}); err != nil {
		a.logger.Warn("failed to refresh pool", "pool", a.store.Pool(), "error", err)
	}

	infos, err := call(ctx, a, "StoragePoolListAllVolumes", func() ([]storage.VolumeInfo, error) {
		return a.store.ListVolumes(ctx)
	})
	if err != nil {
		return nil, err
	}

	refs := make([]resource.VolumeRef, 0, len(infos))
	for i := range infos {
		refs = append(refs, volumeRef(&infos[i]))
	}
	return refs, nil
}

func volumeRef(info *storage.VolumeInfo) resource.VolumeRef {
	return resource.VolumeRef{
		Name:           info.Name,
		Pool:           info.Pool,
		Path:           info.Path,
		CapacityBytes:  info.Capacity,
		AllocatedBytes: info.Allocation,
	}
}
