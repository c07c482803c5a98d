package lifecycle

import (
	"context"

	"github.com/jbweber/anvil/internal/resource"
)

// Service is the operation surface consumed by the HTTP layer.
type Service interface {
	Resolve(ctx context.Context, id string) (resource.Kind, error)
	Get(ctx context.Context, id string) (resource.Resource, error)
	List(ctx context.Context, kind resource.Kind) ([]resource.Resource, error)
	Health(ctx context.Context) map[resource.Kind]error

	Start(ctx context.Context, id string, opts resource.StartOptions) (resource.Result, error)
	Stop(ctx context.Context, id string) (resource.Result, error)
	Restart(ctx context.Context, id string) (resource.Result, error)
	Shutdown(ctx context.Context, id string, opts resource.ShutdownOptions) (resource.Result, error)
	Remove(ctx context.Context, id string, opts resource.RemoveOptions) (resource.Result, error)
	PruneContainers(ctx context.Context) (resource.PruneReport, error)

	CreateSnapshot(ctx context.Context, id, name string) (resource.Result, error)
	ListSnapshots(ctx context.Context, id string) ([]resource.SnapshotRef, error)
	DeleteSnapshot(ctx context.Context, id, name string) (resource.Result, error)

	CreateVolume(ctx context.Context, req resource.VolumeRequest) (resource.Result, error)
	DeleteVolume(ctx context.Context, id string) (resource.Result, error)
	ListVolumes(ctx context.Context) ([]resource.VolumeRef, error)

	RunContainer(ctx context.Context, image string, opts resource.RunOptions) (resource.Result, error)
	RunVMFromXML(ctx context.Context, domainXML string) (resource.Result, error)
	RunVMFromSpec(ctx context.Context, spec resource.VMSpec) (resource.Result, error)
	ListImages(ctx context.Context) ([]resource.Image, error)
}

var _ Service = (*Controller)(nil)
