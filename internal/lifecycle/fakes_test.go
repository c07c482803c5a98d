package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jbweber/anvil/internal/container"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/vm"
)

var (
	_ VMBackend        = (*vm.Adapter)(nil)
	_ ContainerBackend = (*container.Adapter)(nil)
)

type fakeItem struct {
	res       resource.Resource
	snapshots []string
}

// fakeBackend is an in-memory backend of one kind. It mirrors the state
// transitions of the real adapters without enforcing preconditions, so the
// controller's gates are what the tests observe.
type fakeBackend struct {
	mu      sync.Mutex
	kind    resource.Kind
	items   map[string]*fakeItem
	volumes map[string]bool
	images  []resource.Image
	errs    map[string]error
	calls   map[string]int
	// delay is slept inside mutating calls, outside the fake's lock.
	delay time.Duration
	seq   int
}

func newFakeBackend(kind resource.Kind) *fakeBackend {
	return &fakeBackend{
		kind:    kind,
		items:   make(map[string]*fakeItem),
		volumes: make(map[string]bool),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// add registers a resource and returns its id.
func (f *fakeBackend) add(name string, state resource.State) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("%s-%04d", f.kind, f.seq)
	f.items[id] = &fakeItem{res: resource.Resource{Kind: f.kind, ID: id, Name: name, State: state, Persistent: true}}
	return id
}

func (f *fakeBackend) state(id string) resource.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it, ok := f.items[id]; ok {
		return it.res.State
	}
	return ""
}

func (f *fakeBackend) exists(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[id]
	return ok
}

func (f *fakeBackend) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// enter records the call and returns the injected error, if any.
func (f *fakeBackend) enter(method string) error {
	f.mu.Lock()
	f.calls[method]++
	err := f.errs[method]
	d := f.delay
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if d > 0 {
		time.Sleep(d)
	}
	return nil
}

func (f *fakeBackend) setState(id string, s resource.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return resource.NotFound()
	}
	it.res.State = s
	return nil
}

func (f *fakeBackend) Kind() resource.Kind { return f.kind }

func (f *fakeBackend) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs["Ping"]
}

func (f *fakeBackend) Lookup(_ context.Context, id string) (resource.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Lookup"]++
	if err := f.errs["Lookup"]; err != nil {
		return resource.Resource{}, err
	}
	if it, ok := f.items[id]; ok {
		return it.res, nil
	}
	for _, it := range f.items {
		if it.res.Name == id {
			return it.res, nil
		}
	}
	return resource.Resource{}, resource.NotFound()
}

func (f *fakeBackend) List(context.Context) ([]resource.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["List"]; err != nil {
		return nil, err
	}
	out := make([]resource.Resource, 0, len(f.items))
	for i := 1; i <= f.seq; i++ {
		if it, ok := f.items[fmt.Sprintf("%s-%04d", f.kind, i)]; ok {
			out = append(out, it.res)
		}
	}
	return out, nil
}

func (f *fakeBackend) Start(_ context.Context, r resource.Resource) error {
	if err := f.enter("Start"); err != nil {
		return err
	}
	return f.setState(r.ID, resource.StateRunning)
}

func (f *fakeBackend) Stop(_ context.Context, r resource.Resource) error {
	if err := f.enter("Stop"); err != nil {
		return err
	}
	if f.kind == resource.KindVM {
		return f.setState(r.ID, resource.StatePaused)
	}
	return f.setState(r.ID, resource.StateStopped)
}

func (f *fakeBackend) Restart(_ context.Context, r resource.Resource) error {
	return f.enter("Restart")
}

func (f *fakeBackend) Shutdown(_ context.Context, r resource.Resource, opts resource.ShutdownOptions) error {
	if opts.Save && f.kind == resource.KindContainer {
		return resource.ArgumentNotFound("save is not supported for containers")
	}
	method := "Shutdown"
	switch {
	case opts.Save:
		method = "ShutdownSave"
	case opts.Force:
		method = "ShutdownForce"
	}
	if err := f.enter(method); err != nil {
		return err
	}
	if opts.Save {
		return f.setState(r.ID, resource.StateSaved)
	}
	return f.setState(r.ID, resource.StateStopped)
}

func (f *fakeBackend) Remove(_ context.Context, r resource.Resource, opts resource.RemoveOptions) error {
	if f.kind == resource.KindContainer && opts.DeleteVolume {
		return resource.ArgumentNotFound("deleteVolume is only supported for VMs")
	}
	if err := f.enter("Remove"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[r.ID]; !ok {
		return resource.NotFound()
	}
	delete(f.items, r.ID)
	return nil
}

func (f *fakeBackend) item(id string) (*fakeItem, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, resource.NotFound()
	}
	return it, nil
}

func (f *fakeBackend) addSnapshot(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id].snapshots = append(f.items[id].snapshots, name)
}

func (f *fakeBackend) CreateSnapshot(_ context.Context, r resource.Resource, name string) (resource.SnapshotRef, error) {
	if err := f.enter("CreateSnapshot"); err != nil {
		return resource.SnapshotRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	it, err := f.item(r.ID)
	if err != nil {
		return resource.SnapshotRef{}, err
	}
	if name == "" {
		name = fmt.Sprintf("%d", 1700000000+len(it.snapshots))
	}
	it.snapshots = append(it.snapshots, name)
	return resource.SnapshotRef{Name: name, State: "running"}, nil
}

func (f *fakeBackend) ListSnapshots(_ context.Context, r resource.Resource) ([]resource.SnapshotRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["ListSnapshots"]; err != nil {
		return nil, err
	}
	it, err := f.item(r.ID)
	if err != nil {
		return nil, err
	}
	out := make([]resource.SnapshotRef, 0, len(it.snapshots))
	for _, s := range it.snapshots {
		out = append(out, resource.SnapshotRef{Name: s})
	}
	return out, nil
}

func (f *fakeBackend) DeleteSnapshot(_ context.Context, r resource.Resource, name string) error {
	if err := f.enter("DeleteSnapshot"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	it, err := f.item(r.ID)
	if err != nil {
		return err
	}
	for i, s := range it.snapshots {
		if s == name {
			it.snapshots = append(it.snapshots[:i], it.snapshots[i+1:]...)
			return nil
		}
	}
	return resource.NotFoundf("Snapshot %s not found", name)
}

func (f *fakeBackend) RevertSnapshot(_ context.Context, r resource.Resource, name string) error {
	if err := f.enter("RevertSnapshot"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	it, err := f.item(r.ID)
	if err != nil {
		return err
	}
	for _, s := range it.snapshots {
		if s == name {
			it.res.State = resource.StateRunning
			return nil
		}
	}
	return resource.NotFoundf("Snapshot %s not found", name)
}

func (f *fakeBackend) SnapshotCount(_ context.Context, r resource.Resource) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["SnapshotCount"]; err != nil {
		return 0, err
	}
	it, err := f.item(r.ID)
	if err != nil {
		return 0, err
	}
	return len(it.snapshots), nil
}

func (f *fakeBackend) CreateVolume(_ context.Context, req resource.VolumeRequest) (resource.VolumeRef, error) {
	if err := f.enter("CreateVolume"); err != nil {
		return resource.VolumeRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := naming.VolumeName(req.Name)
	if f.volumes[name] {
		return resource.VolumeRef{}, resource.APIError(fmt.Sprintf("storage volume '%s' exists already", name))
	}
	f.volumes[name] = true
	return resource.VolumeRef{Name: name, Pool: "default", CapacityBytes: req.CapacityBytes}, nil
}

func (f *fakeBackend) LookupVolume(_ context.Context, r resource.Resource) (resource.VolumeRef, error) {
	if err := f.enter("LookupVolume"); err != nil {
		return resource.VolumeRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := naming.VolumeName(r.Name)
	if !f.volumes[name] {
		return resource.VolumeRef{}, resource.NotFoundf("Volume %s not found", name)
	}
	return resource.VolumeRef{Name: name, Pool: "default"}, nil
}

func (f *fakeBackend) DeleteVolume(_ context.Context, r resource.Resource) error {
	if err := f.enter("DeleteVolume"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := naming.VolumeName(r.Name)
	if !f.volumes[name] {
		return resource.NotFoundf("Volume %s not found", name)
	}
	delete(f.volumes, name)
	return nil
}

func (f *fakeBackend) ListVolumes(context.Context) ([]resource.VolumeRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []resource.VolumeRef{}
	for name := range f.volumes {
		out = append(out, resource.VolumeRef{Name: name, Pool: "default"})
	}
	return out, nil
}

func (f *fakeBackend) RunFromXML(_ context.Context, domainXML string) (resource.Resource, error) {
	if err := f.enter("RunFromXML"); err != nil {
		return resource.Resource{}, err
	}
	id := f.add("from-xml", resource.StateRunning)
	return f.Lookup(context.Background(), id)
}

func (f *fakeBackend) RunFromSpec(_ context.Context, spec resource.VMSpec) (resource.Resource, error) {
	if err := f.enter("RunFromSpec"); err != nil {
		return resource.Resource{}, err
	}
	id := f.add(spec.Name, resource.StateRunning)
	return f.Lookup(context.Background(), id)
}

func (f *fakeBackend) Prune(context.Context) (resource.PruneReport, error) {
	if err := f.enter("Prune"); err != nil {
		return resource.PruneReport{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	report := resource.PruneReport{Removed: []string{}}
	for id, it := range f.items {
		if it.res.State == resource.StateStopped {
			report.Removed = append(report.Removed, id)
			delete(f.items, id)
		}
	}
	return report, nil
}

func (f *fakeBackend) Run(_ context.Context, image string, opts resource.RunOptions) (resource.Resource, error) {
	if err := f.enter("Run"); err != nil {
		return resource.Resource{}, err
	}
	id := f.add(opts.Name, resource.StateRunning)
	f.mu.Lock()
	f.items[id].res.Image = image
	f.mu.Unlock()
	return f.Lookup(context.Background(), id)
}

func (f *fakeBackend) ListImages(context.Context) ([]resource.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["ListImages"]; err != nil {
		return nil, err
	}
	return f.images, nil
}

// recordingObserver keeps every observed operation.
type recordingObserver struct {
	mu     sync.Mutex
	events []observed
}

type observed struct {
	op   string
	kind resource.Kind
	err  error
}

func (o *recordingObserver) ObserveOperation(op string, kind resource.Kind, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, observed{op: op, kind: kind, err: err})
}

func newTestController() (*Controller, *fakeBackend, *fakeBackend, *recordingObserver) {
	vms := newFakeBackend(resource.KindVM)
	containers := newFakeBackend(resource.KindContainer)
	obs := &recordingObserver{}
	c := NewController(vms, containers, Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer: obs,
	})
	return c, vms, containers, obs
}
