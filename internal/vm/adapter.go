package vm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"

	anvillibvirt "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/storage"
)

// DefaultTimeout bounds each libvirt call when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures an Adapter.
type Options struct {
	// Timeout bounds every libvirt call.
	Timeout time.Duration
	// Network is the libvirt network VMs defined from a descriptor join.
	Network string
	// ImageDir resolves relative installer ISO paths in a descriptor.
	ImageDir string
	Logger   *slog.Logger
}

// Adapter exposes libvirt domains as resources. Domains are identified by
// their UUID; every verb looks the domain up again, so no handle outlives a
// request.
type Adapter struct {
	lv       libvirtClient
	store    volumeStore
	conn     connectionGuard
	timeout  time.Duration
	network  string
	imageDir string
	logger   *slog.Logger
}

// New creates an Adapter over an established libvirt connection and the
// storage manager of the VM disk pool.
func New(client *anvillibvirt.Client, store *storage.Manager, opts Options) *Adapter {
	return newWithDeps(client.Libvirt(), store, client, opts)
}

// newWithDeps creates an Adapter with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func newWithDeps(lv libvirtClient, store volumeStore, conn connectionGuard, opts Options) *Adapter {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Adapter{
		lv:       lv,
		store:    store,
		conn:     conn,
		timeout:  opts.Timeout,
		network:  opts.Network,
		imageDir: opts.ImageDir,
		logger:   opts.Logger.With("component", "vm"),
	}
}

// Kind returns resource.KindVM.
func (a *Adapter) Kind() resource.Kind {
	return resource.KindVM
}

// Ping checks that the libvirt session is alive, reconnecting once if it is
// not.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.ensureConnected(ctx)
}

// ensureConnected reconnects a dead session once per operation. The check is
// bounded like any other libvirt call.
func (a *Adapter) ensureConnected(ctx context.Context) error {
	if a.conn == nil {
		return nil
	}
	return a.do(ctx, "EnsureConnected", func() error {
		if err := a.conn.EnsureConnected(ctx); err != nil {
			return resource.ConnectionFailed(err.Error())
		}
		return nil
	})
}

// domain resolves id to a domain handle. Ids that are not UUIDs cannot name
// a domain and are reported as not found without a daemon round trip.
func (a *Adapter) domain(ctx context.Context, id string) (libvirt.Domain, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return libvirt.Domain{}, resource.NotFound()
	}
	if err := a.ensureConnected(ctx); err != nil {
		return libvirt.Domain{}, err
	}

	return call(ctx, a, "DomainLookupByUUID", func() (libvirt.Domain, error) {
		return a.lv.DomainLookupByUUID(libvirt.UUID(u))
	})
}

// Lookup returns the current view of the domain with UUID id.
func (a *Adapter) Lookup(ctx context.Context, id string) (resource.Resource, error) {
	dom, err := a.domain(ctx, id)
	if err != nil {
		return resource.Resource{}, err
	}

	return call(ctx, a, "DomainGetInfo", func() (resource.Resource, error) {
		return a.view(dom)
	})
}

// List returns every defined and transient domain.
func (a *Adapter) List(ctx context.Context) ([]resource.Resource, error) {
	if err := a.ensureConnected(ctx); err != nil {
		return nil, err
	}

	return call(ctx, a, "ConnectListAllDomains", func() ([]resource.Resource, error) {
		// NeedResults: 1 means populate the domains slice
		// Flags: 0 means all domains (active and inactive)
		domains, _, err := a.lv.ConnectListAllDomains(1, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list domains: %w", err)
		}

		out := make([]resource.Resource, 0, len(domains))
		for _, dom := range domains {
			r, err := a.view(dom)
			if err != nil {
				// Domain vanished between list and inspect
				a.logger.Warn("failed to get domain info", "domain", dom.Name, "error", err)
				continue
			}
			out = append(out, r)
		}
		return out, nil
	})
}

// view builds the resource projection of dom.
func (a *Adapter) view(dom libvirt.Domain) (resource.Resource, error) {
	state, _, err := a.lv.DomainGetState(dom, 0)
	if err != nil {
		return resource.Resource{}, fmt.Errorf("failed to get domain state: %w", err)
	}

	_, maxMem, memory, vcpus, cpuTime, err := a.lv.DomainGetInfo(dom)
	if err != nil {
		return resource.Resource{}, fmt.Errorf("failed to get domain info: %w", err)
	}

	persistent, err := a.lv.DomainIsPersistent(dom)
	if err != nil {
		return resource.Resource{}, fmt.Errorf("failed to get domain persistence: %w", err)
	}

	saved := false
	if libvirt.DomainState(state) == libvirt.DomainShutoff {
		hasImage, err := a.lv.DomainHasManagedSaveImage(dom, 0)
		if err != nil {
			a.logger.Warn("failed to check managed save image", "domain", dom.Name, "error", err)
		}
		saved = hasImage == 1
	}

	osType, err := a.lv.DomainGetOsType(dom)
	if err != nil {
		a.logger.Warn("failed to get os type", "domain", dom.Name, "error", err)
	}

	current, err := a.lv.DomainHasCurrentSnapshot(dom, 0)
	if err != nil {
		a.logger.Warn("failed to check current snapshot", "domain", dom.Name, "error", err)
	}

	return resource.Resource{
		Kind:       resource.KindVM,
		ID:         uuid.UUID(dom.UUID).String(),
		Name:       dom.Name,
		State:      mapState(state, saved),
		Persistent: persistent == 1,
		VM: &resource.VMDetail{
			OSType:             osType,
			MaxMemoryKiB:       maxMem,
			MemoryKiB:          memory,
			VCPUs:              vcpus,
			CPUTimeNs:          cpuTime,
			HasCurrentSnapshot: current == 1,
		},
	}, nil
}

// mapState converts a libvirt domain state to the uniform state.
// A shut-off domain with a managed-save image is Saved. A domain still
// shutting down keeps its process and counts as Running.
func mapState(state int32, hasManagedSave bool) resource.State {
	switch libvirt.DomainState(state) {
	case libvirt.DomainRunning, libvirt.DomainBlocked, libvirt.DomainShutdown:
		return resource.StateRunning
	case libvirt.DomainPaused, libvirt.DomainPmsuspended:
		return resource.StatePaused
	case libvirt.DomainShutoff:
		if hasManagedSave {
			return resource.StateSaved
		}
		return resource.StateStopped
	case libvirt.DomainCrashed:
		return resource.StateStopped
	default:
		return resource.StateUnknown
	}
}
