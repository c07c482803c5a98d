package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jbweber/anvil/internal/resource"
)

// Options configures a Controller.
type Options struct {
	Logger   *slog.Logger
	Observer Observer
}

// Controller implements Service on top of a VM and a container backend.
type Controller struct {
	vms        VMBackend
	containers ContainerBackend
	resolver   *Resolver
	locks      *keyedMutex
	observer   Observer
	logger     *slog.Logger
}

// NewController creates a Controller. Either backend may be nil when the
// matching daemon is disabled; ids are then never resolved to it. Pass an
// untyped nil, not a nil *vm.Adapter.
//
// Identifiers are probed against VMs first, then containers.
func NewController(vms VMBackend, containers ContainerBackend, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	var order []Backend
	if vms != nil {
		order = append(order, vms)
	}
	if containers != nil {
		order = append(order, containers)
	}

	return &Controller{
		vms:        vms,
		containers: containers,
		resolver:   NewResolver(order...),
		locks:      newKeyedMutex(),
		observer:   opts.Observer,
		logger:     opts.Logger.With("component", "lifecycle"),
	}
}

// operation records the outcome of one controller call.
type operation struct {
	c     *Controller
	name  string
	kind  resource.Kind
	id    string
	start time.Time
}

func (c *Controller) begin(name, id string) *operation {
	return &operation{c: c, name: name, id: id, start: time.Now()}
}

func (op *operation) end(err error) {
	elapsed := time.Since(op.start)
	op.c.observer.ObserveOperation(op.name, op.kind, err, elapsed)

	if err == nil {
		op.c.logger.Debug("operation completed", "op", op.name, "kind", op.kind, "id", op.id, "elapsed", elapsed)
		return
	}

	switch resource.KindOf(err) {
	case resource.KindAPIError, resource.KindConnectionFailed:
		op.c.logger.Warn("operation failed", "op", op.name, "kind", op.kind, "id", op.id, "error", err)
	default:
		op.c.logger.Info("operation refused", "op", op.name, "kind", op.kind, "id", op.id, "error", err)
	}
}

// acquire resolves id, takes the resource's lock and re-reads its state under
// the lock. The returned view is the one preconditions must be checked
// against.
func (c *Controller) acquire(ctx context.Context, op *operation, id string) (Backend, resource.Resource, func(), error) {
	b, r, err := c.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, resource.Resource{}, nil, err
	}
	op.kind = r.Kind

	key := string(r.Kind) + "/" + r.ID
	release, err := c.locks.Lock(ctx, key)
	if err != nil {
		return nil, resource.Resource{}, nil, resource.APIError(fmt.Sprintf("gave up waiting for %s: %v", key, err))
	}

	r, err = b.Lookup(ctx, r.ID)
	if err != nil {
		release()
		return nil, resource.Resource{}, nil, err
	}
	return b, r, release, nil
}

// Resolve reports which backend owns id.
func (c *Controller) Resolve(ctx context.Context, id string) (resource.Kind, error) {
	b, _, err := c.resolver.Resolve(ctx, id)
	if err != nil {
		return "", err
	}
	return b.Kind(), nil
}

// Get returns the current view of the resource named by id.
func (c *Controller) Get(ctx context.Context, id string) (resource.Resource, error) {
	_, r, err := c.resolver.Resolve(ctx, id)
	return r, err
}

// List returns the resources of one kind, or of both when kind is empty.
func (c *Controller) List(ctx context.Context, kind resource.Kind) ([]resource.Resource, error) {
	var backends []Backend
	switch kind {
	case "":
		backends = c.resolver.strategies
	case resource.KindVM:
		if c.vms == nil {
			return nil, disabled(kind)
		}
		backends = []Backend{c.vms}
	case resource.KindContainer:
		if c.containers == nil {
			return nil, disabled(kind)
		}
		backends = []Backend{c.containers}
	default:
		return nil, resource.ArgumentNotFound(fmt.Sprintf("unknown resource kind %q", kind))
	}

	out := []resource.Resource{}
	for _, b := range backends {
		rs, err := b.List(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}

// Health pings every configured backend.
func (c *Controller) Health(ctx context.Context) map[resource.Kind]error {
	out := make(map[resource.Kind]error, len(c.resolver.strategies))
	for _, b := range c.resolver.strategies {
		out[b.Kind()] = b.Ping(ctx)
	}
	return out
}

// Start boots, resumes or restores the resource. With RevertSnapshot set the
// VM is reverted to that snapshot instead, whatever its state.
func (c *Controller) Start(ctx context.Context, id string, opts resource.StartOptions) (_ resource.Result, err error) {
	op := c.begin("start", id)
	defer func() { op.end(err) }()

	b, r, release, err := c.acquire(ctx, op, id)
	if err != nil {
		return resource.Result{}, err
	}
	defer release()

	if opts.RevertSnapshot != "" {
		vb, ok := b.(VMBackend)
		if !ok {
			return resource.Result{}, resource.ArgumentNotFound("revertSnapshot is only supported for VMs")
		}
		if err := vb.RevertSnapshot(ctx, r, opts.RevertSnapshot); err != nil {
			return resource.Result{}, err
		}
		return result(r, "Successfully reverted "+opts.RevertSnapshot), nil
	}

	if r.State == resource.StateRunning {
		return resource.Result{}, resource.AlreadyRunning()
	}
	if err := b.Start(ctx, r); err != nil {
		return resource.Result{}, err
	}

	switch {
	case r.Kind == resource.KindContainer:
		return result(r, "Container successfully started"), nil
	case r.State == resource.StatePaused:
		return result(r, "VM successfully resumed"), nil
	case r.State == resource.StateSaved:
		return result(r, "VM successfully restored"), nil
	default:
		return result(r, "VM successfully started"), nil
	}
}

// Stop stops a container or suspends a VM.
func (c *Controller) Stop(ctx context.Context, id string) (_ resource.Result, err error) {
	op := c.begin("stop", id)
	defer func() { op.end(err) }()

	b, r, release, err := c.acquire(ctx, op, id)
	if err != nil {
		return resource.Result{}, err
	}
	defer release()

	if r.State != resource.StateRunning {
		return resource.Result{}, resource.NotRunning()
	}
	if err := b.Stop(ctx, r); err != nil {
		return resource.Result{}, err
	}
	return result(r, label(r)+" successfully stopped"), nil
}

// Restart restarts a running resource.
func (c *Controller) Restart(ctx context.Context, id string) (_ resource.Result, err error) {
	op := c.begin("restart", id)
	defer func() { op.end(err) }()

	b, r, release, err := c.acquire(ctx, op, id)
	if err != nil {
		return resource.Result{}, err
	}
	defer release()

	if r.State != resource.StateRunning {
		return resource.Result{}, resource.NotRunning()
	}
	if err := b.Restart(ctx, r); err != nil {
		return resource.Result{}, err
	}

	if r.Kind == resource.KindVM {
		return result(r, "VM successfully rebooted"), nil
	}
	return result(r, "Container successfully restarted"), nil
}

// Shutdown brings a running resource down. A paused VM may still be saved.
func (c *Controller) Shutdown(ctx context.Context, id string, opts resource.ShutdownOptions) (_ resource.Result, err error) {
	op := c.begin("shutdown", id)
	defer func() { op.end(err) }()

	b, r, release, err := c.acquire(ctx, op, id)
	if err != nil {
		return resource.Result{}, err
	}
	defer release()

	switch {
	case r.State == resource.StateRunning:
	case r.State == resource.StatePaused && opts.Save:
	default:
		return resource.Result{}, resource.NotRunning()
	}

	if err := b.Shutdown(ctx, r, opts); err != nil {
		return resource.Result{}, err
	}

	switch {
	case opts.Save:
		return result(r, "VM successfully saved"), nil
	case opts.Force:
		return result(r, label(r)+" was forced to shutdown"), nil
	case r.Kind == resource.KindContainer:
		return result(r, "Container successfully stopped"), nil
	default:
		return result(r, "VM successfully shutdown"), nil
	}
}

// Remove deletes an inactive resource. With DeleteSnapshot set only that VM
// snapshot is deleted. A VM that still owns snapshots is refused unless Force
// is set, in which case its snapshots are deleted first. With DeleteVolume set
// the volume must exist before anything is deleted.
func (c *Controller) Remove(ctx context.Context, id string, opts resource.RemoveOptions) (_ resource.Result, err error) {
	op := c.begin("remove", id)
	defer func() { op.end(err) }()

	b, r, release, err := c.acquire(ctx, op, id)
	if err != nil {
		return resource.Result{}, err
	}
	defer release()

	vb, isVM := b.(VMBackend)

	if opts.DeleteSnapshot != "" {
		if !isVM {
			return resource.Result{}, resource.ArgumentNotFound("deleteSnapshot is only supported for VMs")
		}
		if err := vb.DeleteSnapshot(ctx, r, opts.DeleteSnapshot); err != nil {
			return resource.Result{}, err
		}
		return result(r, fmt.Sprintf("Snapshot %s successfully deleted", opts.DeleteSnapshot)), nil
	}

	if r.State.Active() {
		return resource.Result{}, resource.Running()
	}

	if isVM {
		if opts.DeleteVolume {
			if _, err := vb.LookupVolume(ctx, r); err != nil {
				return resource.Result{}, err
			}
		}
		if err := c.clearSnapshots(ctx, vb, r, opts.Force); err != nil {
			return resource.Result{}, err
		}
		if opts.DeleteVolume {
			if err := vb.DeleteVolume(ctx, r); err != nil {
				return resource.Result{}, err
			}
		}
	}

	if err := b.Remove(ctx, r, opts); err != nil {
		return resource.Result{}, err
	}
	return result(r, "Requested Resource was successfully deleted"), nil
}

// clearSnapshots refuses removal of a VM with snapshots, or deletes them all
// when force is set.
func (c *Controller) clearSnapshots(ctx context.Context, vb VMBackend, r resource.Resource, force bool) error {
	n, err := vb.SnapshotCount(ctx, r)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if !force {
		return resource.SnapshotsExist(n)
	}

	snaps, err := vb.ListSnapshots(ctx, r)
	if err != nil {
		return err
	}
	for i := len(snaps) - 1; i >= 0; i-- {
		c.logger.Info("deleting snapshot before removal", "domain", r.Name, "snapshot", snaps[i].Name)
		if err := vb.DeleteSnapshot(ctx, r, snaps[i].Name); err != nil && !errors.Is(err, resource.ErrResourceNotFound) {
			return err
		}
	}
	return nil
}

// PruneContainers removes every stopped container.
func (c *Controller) PruneContainers(ctx context.Context) (_ resource.PruneReport, err error) {
	op := c.begin("prune", "")
	op.kind = resource.KindContainer
	defer func() { op.end(err) }()

	if c.containers == nil {
		return resource.PruneReport{}, disabled(resource.KindContainer)
	}
	return c.containers.Prune(ctx)
}

func result(r resource.Resource, msg string) resource.Result {
	return resource.Result{Kind: r.Kind, ID: r.ID, Name: r.Name, Message: msg}
}

func label(r resource.Resource) string {
	if r.Kind == resource.KindVM {
		return "VM"
	}
	return "Container"
}

func disabled(kind resource.Kind) error {
	return resource.ConnectionFailed(fmt.Sprintf("%s backend is not configured", kind))
}
