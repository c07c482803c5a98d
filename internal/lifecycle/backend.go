// Package lifecycle is the orchestration core: it resolves an identifier to
// the backend that owns it, checks state preconditions and invokes the
// backend adapter.
//
// Adapters are consumed through the interfaces below; every error they
// return is already a *resource.Error. Mutating verbs on one resource are
// serialized, so the precondition check and the action it guards run as one
// unit. Reads take no lock.
package lifecycle

import (
	"context"

	"github.com/jbweber/anvil/internal/resource"
)

// Backend is the capability set shared by both adapters.
//
// In production, this is satisfied by *vm.Adapter and *container.Adapter.
// In tests, this is satisfied by in-memory fakes.
type Backend interface {
	Kind() resource.Kind
	Ping(ctx context.Context) error

	// Lookup returns ResourceNotFound when id is not in the backend's
	// namespace.
	Lookup(ctx context.Context, id string) (resource.Resource, error)
	List(ctx context.Context) ([]resource.Resource, error)

	Start(ctx context.Context, r resource.Resource) error
	Stop(ctx context.Context, r resource.Resource) error
	Restart(ctx context.Context, r resource.Resource) error
	Shutdown(ctx context.Context, r resource.Resource, opts resource.ShutdownOptions) error
	Remove(ctx context.Context, r resource.Resource, opts resource.RemoveOptions) error
}

// VMBackend adds snapshots, volumes and domain definition.
type VMBackend interface {
	Backend

	CreateSnapshot(ctx context.Context, r resource.Resource, name string) (resource.SnapshotRef, error)
	ListSnapshots(ctx context.Context, r resource.Resource) ([]resource.SnapshotRef, error)
	DeleteSnapshot(ctx context.Context, r resource.Resource, name string) error
	RevertSnapshot(ctx context.Context, r resource.Resource, name string) error
	SnapshotCount(ctx context.Context, r resource.Resource) (int, error)

	CreateVolume(ctx context.Context, req resource.VolumeRequest) (resource.VolumeRef, error)
	LookupVolume(ctx context.Context, r resource.Resource) (resource.VolumeRef, error)
	DeleteVolume(ctx context.Context, r resource.Resource) error
	ListVolumes(ctx context.Context) ([]resource.VolumeRef, error)

	RunFromXML(ctx context.Context, domainXML string) (resource.Resource, error)
	RunFromSpec(ctx context.Context, spec resource.VMSpec) (resource.Resource, error)
}

// ContainerBackend adds prune, run and images.
type ContainerBackend interface {
	Backend

	Prune(ctx context.Context) (resource.PruneReport, error)
	Run(ctx context.Context, image string, opts resource.RunOptions) (resource.Resource, error)
	ListImages(ctx context.Context) ([]resource.Image, error)
}
