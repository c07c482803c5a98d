package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"

	anvillibvirt "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/storage"
)

// snapshotEpoch is the creation time of the first snapshot taken in a test.
const snapshotEpoch = 1700000000

var (
	errNoDomain   = libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "Domain not found"}
	errNoSnapshot = libvirt.Error{Code: uint32(libvirt.ErrNoDomainSnapshot), Message: "Domain snapshot not found"}
	errNoVolume   = libvirt.Error{Code: uint32(libvirt.ErrNoStorageVol), Message: "Storage volume not found"}
)

type mockDomain struct {
	dom         libvirt.Domain
	xml         string
	state       libvirt.DomainState
	persistent  bool
	managedSave bool
	snapshots   []mockSnapshot
	current     string
}

type mockSnapshot struct {
	name    string
	created int64
	state   string
}

// mockLibvirtClient is an in-memory hypervisor implementing libvirtClient.
// Domains follow libvirt's state machine closely enough for the adapter:
// invalid transitions fail with ErrOperationInvalid.
type mockLibvirtClient struct {
	mu sync.Mutex

	domains map[libvirt.UUID]*mockDomain
	clock   int64

	// Error injection, keyed by method name
	errs map[string]error
	// hooks run before a method; a hook may block
	hooks map[string]func()
	// getStateErr fails DomainGetState for one domain name
	getStateErr map[string]error

	// Call tracking
	calls []string
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		domains:     make(map[libvirt.UUID]*mockDomain),
		clock:       snapshotEpoch,
		errs:        make(map[string]error),
		hooks:       make(map[string]func()),
		getStateErr: make(map[string]error),
	}
}

// addDomain registers a persistent domain in state and returns its UUID.
func (m *mockLibvirtClient) addDomain(name string, state libvirt.DomainState) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := uuid.New()
	m.domains[libvirt.UUID(u)] = &mockDomain{
		dom:        libvirt.Domain{Name: name, UUID: libvirt.UUID(u)},
		state:      state,
		persistent: true,
	}
	return u.String()
}

func (m *mockLibvirtClient) get(id string) *mockDomain {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domains[libvirt.UUID(uuid.MustParse(id))]
}

func (m *mockLibvirtClient) byName(name string) *mockDomain {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.domains {
		if d.dom.Name == name {
			return d
		}
	}
	return nil
}

func (m *mockLibvirtClient) called(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

// enter records the call, runs the hook outside the lock and returns the
// injected error for method. The caller holds the lock on return.
func (m *mockLibvirtClient) enter(method string) error {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	hook := m.hooks[method]
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	m.mu.Lock()
	return m.errs[method]
}

func (m *mockLibvirtClient) lookup(dom libvirt.Domain) (*mockDomain, error) {
	d, ok := m.domains[dom.UUID]
	if !ok {
		return nil, errNoDomain
	}
	return d, nil
}

func invalid(format string, args ...any) error {
	return libvirt.Error{Code: uint32(libvirt.ErrOperationInvalid), Message: fmt.Sprintf(format, args...)}
}

func (m *mockLibvirtClient) ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	err := m.enter("ConnectListAllDomains")
	defer m.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}

	doms := make([]libvirt.Domain, 0, len(m.domains))
	for _, d := range m.domains {
		doms = append(doms, d.dom)
	}
	sort.Slice(doms, func(i, j int) bool { return doms[i].Name < doms[j].Name })
	return doms, uint32(len(doms)), nil
}

func (m *mockLibvirtClient) DomainLookupByUUID(UUID libvirt.UUID) (libvirt.Domain, error) {
	err := m.enter("DomainLookupByUUID")
	defer m.mu.Unlock()
	if err != nil {
		return libvirt.Domain{}, err
	}
	d, ok := m.domains[UUID]
	if !ok {
		return libvirt.Domain{}, errNoDomain
	}
	return d.dom, nil
}

func (m *mockLibvirtClient) DomainLookupByName(Name string) (libvirt.Domain, error) {
	err := m.enter("DomainLookupByName")
	defer m.mu.Unlock()
	if err != nil {
		return libvirt.Domain{}, err
	}
	for _, d := range m.domains {
		if d.dom.Name == Name {
			return d.dom, nil
		}
	}
	return libvirt.Domain{}, errNoDomain
}

func (m *mockLibvirtClient) DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error) {
	err := m.enter("DomainGetState")
	defer m.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}
	if err := m.getStateErr[Dom.Name]; err != nil {
		return 0, 0, err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return 0, 0, err
	}
	return int32(d.state), 0, nil
}

func (m *mockLibvirtClient) DomainGetInfo(Dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	err := m.enter("DomainGetInfo")
	defer m.mu.Unlock()
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	var memory, cpuTime uint64
	if d.state == libvirt.DomainRunning || d.state == libvirt.DomainPaused {
		memory = 2097152
		cpuTime = 1500000000
	}
	return uint8(d.state), 2097152, memory, 2, cpuTime, nil
}

func (m *mockLibvirtClient) DomainIsPersistent(Dom libvirt.Domain) (int32, error) {
	err := m.enter("DomainIsPersistent")
	defer m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return 0, err
	}
	if d.persistent {
		return 1, nil
	}
	return 0, nil
}

func (m *mockLibvirtClient) DomainHasManagedSaveImage(Dom libvirt.Domain, Flags uint32) (int32, error) {
	err := m.enter("DomainHasManagedSaveImage")
	defer m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return 0, err
	}
	if d.managedSave {
		return 1, nil
	}
	return 0, nil
}

func (m *mockLibvirtClient) DomainGetOsType(Dom libvirt.Domain) (string, error) {
	err := m.enter("DomainGetOsType")
	defer m.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "hvm", nil
}

func (m *mockLibvirtClient) DomainHasCurrentSnapshot(Dom libvirt.Domain, Flags uint32) (int32, error) {
	err := m.enter("DomainHasCurrentSnapshot")
	defer m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return 0, err
	}
	if d.current != "" {
		return 1, nil
	}
	return 0, nil
}

func (m *mockLibvirtClient) DomainDefineXML(XML string) (libvirt.Domain, error) {
	err := m.enter("DomainDefineXML")
	defer m.mu.Unlock()
	if err != nil {
		return libvirt.Domain{}, err
	}

	parsed, err := anvillibvirt.ParseDomainXML(XML)
	if err != nil {
		return libvirt.Domain{}, invalid("%v", err)
	}
	for _, d := range m.domains {
		if d.dom.Name == parsed.Name {
			d.xml = XML
			return d.dom, nil
		}
	}

	u := uuid.New()
	d := &mockDomain{
		dom:        libvirt.Domain{Name: parsed.Name, UUID: libvirt.UUID(u)},
		xml:        XML,
		state:      libvirt.DomainShutoff,
		persistent: true,
	}
	m.domains[d.dom.UUID] = d
	return d.dom, nil
}

func (m *mockLibvirtClient) DomainCreate(Dom libvirt.Domain) error {
	err := m.enter("DomainCreate")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return err
	}
	if d.state != libvirt.DomainShutoff {
		return invalid("domain is already running")
	}
	d.state = libvirt.DomainRunning
	d.managedSave = false
	return nil
}

func (m *mockLibvirtClient) DomainSuspend(Dom libvirt.Domain) error {
	err := m.enter("DomainSuspend")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return err
	}
	if d.state != libvirt.DomainRunning {
		return invalid("domain is not running")
	}
	d.state = libvirt.DomainPaused
	return nil
}

func (m *mockLibvirtClient) DomainResume(Dom libvirt.Domain) error {
	err := m.enter("DomainResume")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return err
	}
	if d.state != libvirt.DomainPaused {
		return invalid("domain is not paused")
	}
	d.state = libvirt.DomainRunning
	return nil
}

func (m *mockLibvirtClient) DomainPmWakeup(Dom libvirt.Domain, Flags uint32) error {
	err := m.enter("DomainPmWakeup")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return err
	}
	if d.state != libvirt.DomainPmsuspended {
		return invalid("domain is not suspended by guest power management")
	}
	d.state = libvirt.DomainRunning
	return nil
}

func (m *mockLibvirtClient) DomainReboot(Dom libvirt.Domain, Flags libvirt.DomainRebootFlagValues) error {
	err := m.enter("DomainReboot")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return err
	}
	if d.state != libvirt.DomainRunning {
		return invalid("domain is not running")
	}
	return nil
}

func (m *mockLibvirtClient) DomainShutdown(Dom libvirt.Domain) error {
	err := m.enter("DomainShutdown")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return err
	}
	if d.state != libvirt.DomainRunning {
		return invalid("domain is not running")
	}
	d.state = libvirt.DomainShutoff
	return nil
}

func (m *mockLibvirtClient) DomainDestroy(Dom libvirt.Domain) error {
	err := m.enter("DomainDestroy")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return err
	}
	if d.state == libvirt.DomainShutoff {
		return invalid("domain is not running")
	}
	d.state = libvirt.DomainShutoff
	return nil
}

func (m *mockLibvirtClient) DomainManagedSave(Dom libvirt.Domain, Flags uint32) error {
	err := m.enter("DomainManagedSave")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return err
	}
	if d.state == libvirt.DomainShutoff {
		return invalid("domain is not running")
	}
	d.state = libvirt.DomainShutoff
	d.managedSave = true
	return nil
}

func (m *mockLibvirtClient) DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error {
	err := m.enter("DomainUndefineFlags")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return err
	}
	if d.managedSave && Flags&libvirt.DomainUndefineManagedSave == 0 {
		return invalid("Refusing to undefine while domain managed save image exists")
	}
	delete(m.domains, Dom.UUID)
	return nil
}

func (m *mockLibvirtClient) DomainSnapshotCreateXML(Dom libvirt.Domain, XMLDesc string, Flags uint32) (libvirt.DomainSnapshot, error) {
	err := m.enter("DomainSnapshotCreateXML")
	defer m.mu.Unlock()
	if err != nil {
		return libvirt.DomainSnapshot{}, err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return libvirt.DomainSnapshot{}, err
	}

	info, err := anvillibvirt.ParseSnapshotXML(XMLDesc)
	if err != nil {
		return libvirt.DomainSnapshot{}, invalid("%v", err)
	}
	for _, s := range d.snapshots {
		if s.name == info.Name {
			return libvirt.DomainSnapshot{}, invalid("domain snapshot '%s' already exists", info.Name)
		}
	}

	state := "shutoff"
	if d.state == libvirt.DomainRunning {
		state = "running"
	}
	d.snapshots = append(d.snapshots, mockSnapshot{name: info.Name, created: m.clock, state: state})
	d.current = info.Name
	m.clock++
	return libvirt.DomainSnapshot{Name: info.Name, Dom: d.dom}, nil
}

func (m *mockLibvirtClient) DomainListAllSnapshots(Dom libvirt.Domain, NeedResults int32, Flags uint32) ([]libvirt.DomainSnapshot, int32, error) {
	err := m.enter("DomainListAllSnapshots")
	defer m.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return nil, 0, err
	}

	// Reverse insertion order, so callers cannot rely on daemon ordering.
	snaps := make([]libvirt.DomainSnapshot, 0, len(d.snapshots))
	for i := len(d.snapshots) - 1; i >= 0; i-- {
		snaps = append(snaps, libvirt.DomainSnapshot{Name: d.snapshots[i].name, Dom: d.dom})
	}
	return snaps, int32(len(snaps)), nil
}

func (m *mockLibvirtClient) findSnapshot(snap libvirt.DomainSnapshot) (*mockDomain, int, error) {
	d, err := m.lookup(snap.Dom)
	if err != nil {
		return nil, 0, err
	}
	for i, s := range d.snapshots {
		if s.name == snap.Name {
			return d, i, nil
		}
	}
	return nil, 0, errNoSnapshot
}

func (m *mockLibvirtClient) DomainSnapshotLookupByName(Dom libvirt.Domain, Name string, Flags uint32) (libvirt.DomainSnapshot, error) {
	err := m.enter("DomainSnapshotLookupByName")
	defer m.mu.Unlock()
	if err != nil {
		return libvirt.DomainSnapshot{}, err
	}
	snap := libvirt.DomainSnapshot{Name: Name, Dom: Dom}
	if _, _, err := m.findSnapshot(snap); err != nil {
		return libvirt.DomainSnapshot{}, err
	}
	return snap, nil
}

func (m *mockLibvirtClient) DomainSnapshotGetXMLDesc(Snap libvirt.DomainSnapshot, Flags uint32) (string, error) {
	err := m.enter("DomainSnapshotGetXMLDesc")
	defer m.mu.Unlock()
	if err != nil {
		return "", err
	}
	d, i, err := m.findSnapshot(Snap)
	if err != nil {
		return "", err
	}
	s := d.snapshots[i]
	memory := "no"
	if s.state == "running" {
		memory = "internal"
	}
	return fmt.Sprintf(
		`<domainsnapshot><name>%s</name><state>%s</state><creationTime>%d</creationTime><memory snapshot="%s"/></domainsnapshot>`,
		s.name, s.state, s.created, memory,
	), nil
}

func (m *mockLibvirtClient) DomainSnapshotIsCurrent(Snap libvirt.DomainSnapshot, Flags uint32) (int32, error) {
	err := m.enter("DomainSnapshotIsCurrent")
	defer m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	d, _, err := m.findSnapshot(Snap)
	if err != nil {
		return 0, err
	}
	if d.current == Snap.Name {
		return 1, nil
	}
	return 0, nil
}

func (m *mockLibvirtClient) DomainSnapshotDelete(Snap libvirt.DomainSnapshot, Flags libvirt.DomainSnapshotDeleteFlags) error {
	err := m.enter("DomainSnapshotDelete")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, i, err := m.findSnapshot(Snap)
	if err != nil {
		return err
	}
	d.snapshots = append(d.snapshots[:i], d.snapshots[i+1:]...)
	if d.current == Snap.Name {
		d.current = ""
	}
	return nil
}

func (m *mockLibvirtClient) DomainRevertToSnapshot(Snap libvirt.DomainSnapshot, Flags uint32) error {
	err := m.enter("DomainRevertToSnapshot")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	d, i, err := m.findSnapshot(Snap)
	if err != nil {
		return err
	}
	if d.snapshots[i].state == "running" {
		d.state = libvirt.DomainRunning
	} else {
		d.state = libvirt.DomainShutoff
	}
	d.current = Snap.Name
	return nil
}

func (m *mockLibvirtClient) DomainSnapshotNum(Dom libvirt.Domain, Flags uint32) (int32, error) {
	err := m.enter("DomainSnapshotNum")
	defer m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	d, err := m.lookup(Dom)
	if err != nil {
		return 0, err
	}
	return int32(len(d.snapshots)), nil
}

// mockVolumeStore is an in-memory volumeStore over a single pool.
type mockVolumeStore struct {
	mu      sync.Mutex
	pool    string
	volumes map[string]storage.VolumeInfo
	data    map[string][]byte

	// Error injection, keyed by method name
	errs map[string]error

	// Call tracking
	created   []string
	deleted   []string
	refreshed int
}

func newMockVolumeStore() *mockVolumeStore {
	return &mockVolumeStore{
		pool:    "default",
		volumes: make(map[string]storage.VolumeInfo),
		data:    make(map[string][]byte),
		errs:    make(map[string]error),
	}
}

func (s *mockVolumeStore) addVolume(name string, capacity uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[name] = storage.VolumeInfo{
		Name:     name,
		Path:     "/var/lib/libvirt/images/" + name,
		Pool:     s.pool,
		Capacity: capacity,
	}
}

func (s *mockVolumeStore) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.volumes[name]
	return ok
}

func (s *mockVolumeStore) Pool() string {
	return s.pool
}

func (s *mockVolumeStore) CreateVolume(_ context.Context, spec storage.VolumeSpec) (*storage.VolumeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["CreateVolume"]; err != nil {
		return nil, err
	}
	if _, ok := s.volumes[spec.Name]; ok {
		return nil, libvirt.Error{Code: uint32(libvirt.ErrStorageVolExist), Message: "storage volume already exists"}
	}
	info := storage.VolumeInfo{
		Name:     spec.Name,
		Path:     "/var/lib/libvirt/images/" + spec.Name,
		Pool:     s.pool,
		Capacity: spec.CapacityBytes,
	}
	s.volumes[spec.Name] = info
	s.created = append(s.created, spec.Name)
	return &info, nil
}

func (s *mockVolumeStore) DeleteVolume(_ context.Context, volumeName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["DeleteVolume"]; err != nil {
		return err
	}
	if _, ok := s.volumes[volumeName]; !ok {
		return fmt.Errorf("failed to lookup volume %s: %w", volumeName, errNoVolume)
	}
	delete(s.volumes, volumeName)
	delete(s.data, volumeName)
	s.deleted = append(s.deleted, volumeName)
	return nil
}

func (s *mockVolumeStore) LookupVolume(_ context.Context, volumeName string) (*storage.VolumeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["LookupVolume"]; err != nil {
		return nil, err
	}
	info, ok := s.volumes[volumeName]
	if !ok {
		return nil, errNoVolume
	}
	return &info, nil
}

func (s *mockVolumeStore) ListVolumes(_ context.Context) ([]storage.VolumeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["ListVolumes"]; err != nil {
		return nil, err
	}
	out := make([]storage.VolumeInfo, 0, len(s.volumes))
	for _, v := range s.volumes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *mockVolumeStore) RefreshPool(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["RefreshPool"]; err != nil {
		return err
	}
	s.refreshed++
	return nil
}

func (s *mockVolumeStore) VolumeExists(_ context.Context, volumeName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["VolumeExists"]; err != nil {
		return false, err
	}
	_, ok := s.volumes[volumeName]
	return ok, nil
}

func (s *mockVolumeStore) WriteVolumeData(_ context.Context, volumeName string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs["WriteVolumeData"]; err != nil {
		return err
	}
	if _, ok := s.volumes[volumeName]; !ok {
		return errNoVolume
	}
	s.data[volumeName] = data
	return nil
}

// mockConnection is a connectionGuard with a fixed outcome.
type mockConnection struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (c *mockConnection) EnsureConnected(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

// newTestAdapter wires an Adapter to fresh mocks with a quiet logger.
func newTestAdapter() (*Adapter, *mockLibvirtClient, *mockVolumeStore, *mockConnection) {
	lv := newMockLibvirtClient()
	store := newMockVolumeStore()
	conn := &mockConnection{}
	a := newWithDeps(lv, store, conn, Options{
		Timeout: time.Second,
		Network: "default",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return a, lv, store, conn
}
