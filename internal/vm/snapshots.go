package vm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/digitalocean/go-libvirt"

	anvillibvirt "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/resource"
)

// CreateSnapshot takes an atomic snapshot of the domain. Snapshot names are
// unique per domain; libvirt rejects duplicates.
func (a *Adapter) CreateSnapshot(ctx context.Context, r resource.Resource, name string) (resource.SnapshotRef, error) {
	snapXML, err := anvillibvirt.GenerateSnapshotXML(name)
	if err != nil {
		return resource.SnapshotRef{}, resource.ArgumentNotFound(err.Error())
	}

	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return resource.SnapshotRef{}, err
	}

	a.logger.Info("creating snapshot", "domain", dom.Name, "snapshot", name)
	return call(ctx, a, "DomainSnapshotCreateXML", func() (resource.SnapshotRef, error) {
		snap, err := a.lv.DomainSnapshotCreateXML(dom, snapXML, uint32(libvirt.DomainSnapshotCreateAtomic))
		if err != nil {
			return resource.SnapshotRef{}, err
		}
		return a.snapshotRef(snap)
	})
}

// ListSnapshots returns the domain's snapshots, oldest first.
func (a *Adapter) ListSnapshots(ctx context.Context, r resource.Resource) ([]resource.SnapshotRef, error) {
	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	refs, err := call(ctx, a, "DomainListAllSnapshots", func() ([]resource.SnapshotRef, error) {
		snaps, _, err := a.lv.DomainListAllSnapshots(dom, 1, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}

		refs := make([]resource.SnapshotRef, 0, len(snaps))
		for _, snap := range snaps {
			ref, err := a.snapshotRef(snap)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
		return refs, nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].CreatedAt.Before(refs[j].CreatedAt)
	})
	return refs, nil
}

// DeleteSnapshot deletes one snapshot by name. The domain may be in any state.
func (a *Adapter) DeleteSnapshot(ctx context.Context, r resource.Resource, name string) error {
	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return err
	}

	snap, err := a.lookupSnapshot(ctx, dom, name)
	if err != nil {
		return err
	}

	a.logger.Info("deleting snapshot", "domain", dom.Name, "snapshot", name)
	return a.do(ctx, "DomainSnapshotDelete", func() error {
		return a.lv.DomainSnapshotDelete(snap, 0)
	})
}

// RevertSnapshot reverts the domain to a named snapshot.
func (a *Adapter) RevertSnapshot(ctx context.Context, r resource.Resource, name string) error {
	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return err
	}

	snap, err := a.lookupSnapshot(ctx, dom, name)
	if err != nil {
		return err
	}

	a.logger.Info("reverting to snapshot", "domain", dom.Name, "snapshot", name)
	return a.do(ctx, "DomainRevertToSnapshot", func() error {
		return a.lv.DomainRevertToSnapshot(snap, 0)
	})
}

// SnapshotCount returns how many snapshots the domain owns.
func (a *Adapter) SnapshotCount(ctx context.Context, r resource.Resource) (int, error) {
	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return 0, err
	}

	n, err := call(ctx, a, "DomainSnapshotNum", func() (int32, error) {
		return a.lv.DomainSnapshotNum(dom, 0)
	})
	return int(n), err
}

func (a *Adapter) lookupSnapshot(ctx context.Context, dom libvirt.Domain, name string) (libvirt.DomainSnapshot, error) {
	snap, err := call(ctx, a, "DomainSnapshotLookupByName", func() (libvirt.DomainSnapshot, error) {
		return a.lv.DomainSnapshotLookupByName(dom, name, 0)
	})
	if errors.Is(err, resource.ErrResourceNotFound) {
		return libvirt.DomainSnapshot{}, resource.NotFoundf("Snapshot %q not found on domain %s -> Check snapshot name", name, dom.Name)
	}
	return snap, err
}

func (a *Adapter) snapshotRef(snap libvirt.DomainSnapshot) (resource.SnapshotRef, error) {
	desc, err := a.lv.DomainSnapshotGetXMLDesc(snap, 0)
	if err != nil {
		return resource.SnapshotRef{}, fmt.Errorf("failed to get snapshot XML: %w", err)
	}

	info, err := anvillibvirt.ParseSnapshotXML(desc)
	if err != nil {
		return resource.SnapshotRef{}, err
	}

	current, err := a.lv.DomainSnapshotIsCurrent(snap, 0)
	if err != nil {
		a.logger.Warn("failed to check current snapshot", "snapshot", snap.Name, "error", err)
	}

	name := info.Name
	if name == "" {
		name = snap.Name
	}
	return resource.SnapshotRef{
		Name:      name,
		CreatedAt: info.CreatedAt,
		State:     info.State,
		Current:   current == 1,
		Memory:    info.Memory,
	}, nil
}
