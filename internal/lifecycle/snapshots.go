package lifecycle

import (
	"context"
	"fmt"

	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
)

// vmOnly narrows b to a VMBackend or reports what was asked of a container.
func vmOnly(b Backend, what string) (VMBackend, error) {
	vb, ok := b.(VMBackend)
	if !ok {
		return nil, resource.ArgumentNotFound(what + " are only supported for VMs")
	}
	return vb, nil
}

// CreateSnapshot captures a snapshot of a VM. The name is required and must
// be unique for the domain.
func (c *Controller) CreateSnapshot(ctx context.Context, id, name string) (_ resource.Result, err error) {
	op := c.begin("snapshot_create", id)
	defer func() { op.end(err) }()

	b, r, release, err := c.acquire(ctx, op, id)
	if err != nil {
		return resource.Result{}, err
	}
	defer release()

	vb, err := vmOnly(b, "snapshots")
	if err != nil {
		return resource.Result{}, err
	}

	snap, err := vb.CreateSnapshot(ctx, r, name)
	if err != nil {
		return resource.Result{}, err
	}
	return resource.Result{
		Kind:    r.Kind,
		ID:      r.ID,
		Name:    snap.Name,
		Message: fmt.Sprintf("Snapshot of %s was successfully created", r.Name),
	}, nil
}

// ListSnapshots returns a VM's snapshots.
func (c *Controller) ListSnapshots(ctx context.Context, id string) ([]resource.SnapshotRef, error) {
	b, r, err := c.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	vb, err := vmOnly(b, "snapshots")
	if err != nil {
		return nil, err
	}
	return vb.ListSnapshots(ctx, r)
}

// DeleteSnapshot deletes one snapshot of a VM.
func (c *Controller) DeleteSnapshot(ctx context.Context, id, name string) (_ resource.Result, err error) {
	op := c.begin("snapshot_delete", id)
	defer func() { op.end(err) }()

	b, r, release, err := c.acquire(ctx, op, id)
	if err != nil {
		return resource.Result{}, err
	}
	defer release()

	vb, err := vmOnly(b, "snapshots")
	if err != nil {
		return resource.Result{}, err
	}
	if err := vb.DeleteSnapshot(ctx, r, name); err != nil {
		return resource.Result{}, err
	}
	return result(r, fmt.Sprintf("Snapshot %s successfully deleted", name)), nil
}

// CreateVolume creates the {name}.qcow2 disk for a VM that may not exist yet.
func (c *Controller) CreateVolume(ctx context.Context, req resource.VolumeRequest) (_ resource.Result, err error) {
	op := c.begin("volume_create", req.Name)
	op.kind = resource.KindVM
	defer func() { op.end(err) }()

	if c.vms == nil {
		return resource.Result{}, disabled(resource.KindVM)
	}

	volName := naming.VolumeName(req.Name)
	release, err := c.locks.Lock(ctx, "volume/"+volName)
	if err != nil {
		return resource.Result{}, resource.APIError(fmt.Sprintf("gave up waiting for volume %s: %v", volName, err))
	}
	defer release()

	ref, err := c.vms.CreateVolume(ctx, req)
	if err != nil {
		return resource.Result{}, err
	}
	return resource.Result{Kind: resource.KindVM, Name: ref.Name, Message: "Storage volume successfully created"}, nil
}

// DeleteVolume deletes the {name}.qcow2 disk of an inactive VM.
func (c *Controller) DeleteVolume(ctx context.Context, id string) (_ resource.Result, err error) {
	op := c.begin("volume_delete", id)
	defer func() { op.end(err) }()

	b, r, release, err := c.acquire(ctx, op, id)
	if err != nil {
		return resource.Result{}, err
	}
	defer release()

	vb, err := vmOnly(b, "volumes")
	if err != nil {
		return resource.Result{}, err
	}
	if r.State.Active() {
		return resource.Result{}, resource.Running()
	}

	volRelease, err := c.locks.Lock(ctx, "volume/"+naming.VolumeName(r.Name))
	if err != nil {
		return resource.Result{}, resource.APIError(fmt.Sprintf("gave up waiting for volume of %s: %v", r.Name, err))
	}
	defer volRelease()

	if err := vb.DeleteVolume(ctx, r); err != nil {
		return resource.Result{}, err
	}
	return result(r, "Storage volume successfully deleted"), nil
}

// ListVolumes returns the volumes of the VM storage pool.
func (c *Controller) ListVolumes(ctx context.Context) ([]resource.VolumeRef, error) {
	if c.vms == nil {
		return nil, disabled(resource.KindVM)
	}
	return c.vms.ListVolumes(ctx)
}
