package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type mockContainer struct {
	id      string
	name    string
	image   string
	running bool
	config  *container.Config
	host    *container.HostConfig
}

// mockDockerClient is an in-memory Docker Engine implementing dockerClient.
// Failures use the same errdefs classes the real client returns.
type mockDockerClient struct {
	mu sync.Mutex

	containers map[string]*mockContainer
	images     map[string]image.Summary
	// pullable lists references ImagePull can fetch
	pullable map[string]bool
	// pullStreamErr reports an error inside the pull progress stream
	pullStreamErr map[string]string
	nextID        int

	// Error injection, keyed by method name
	errs map[string]error

	// Call tracking
	calls []string
}

func newMockDockerClient() *mockDockerClient {
	return &mockDockerClient{
		containers:    make(map[string]*mockContainer),
		images:        make(map[string]image.Summary),
		pullable:      make(map[string]bool),
		pullStreamErr: make(map[string]string),
		errs:          make(map[string]error),
	}
}

func (m *mockDockerClient) addImage(ref string, created int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[ref] = image.Summary{
		ID:       fmt.Sprintf("sha256:%064x", len(m.images)+1),
		RepoTags: []string{ref},
		Created:  created,
	}
}

// addContainer registers a container and returns its full id.
func (m *mockDockerClient) addContainer(name, imageRef string, running bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("%012x%052d", 0xabc000+m.nextID, 0)
	m.containers[id] = &mockContainer{id: id, name: name, image: imageRef, running: running}
	return id
}

func (m *mockDockerClient) get(id string) *mockContainer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(id)
}

func (m *mockDockerClient) called(method string) int {
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

// enter records the call and returns the injected error. The caller holds
// the lock on return.
func (m *mockDockerClient) enter(method string) error {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	return m.errs[method]
}

// find resolves a full id, a unique id prefix or a name.
func (m *mockDockerClient) find(ref string) *mockContainer {
	if c, ok := m.containers[ref]; ok {
		return c
	}
	var match *mockContainer
	for _, c := range m.containers {
		if c.name == ref {
			return c
		}
		if strings.HasPrefix(c.id, ref) {
			if match != nil {
				return nil
			}
			match = c
		}
	}
	return match
}

func noSuchContainer(ref string) error {
	return errdefs.NotFound(fmt.Errorf("Error response from daemon: No such container: %s", ref))
}

func (m *mockDockerClient) Ping(context.Context) (types.Ping, error) {
	err := m.enter("Ping")
	defer m.mu.Unlock()
	if err != nil {
		return types.Ping{}, err
	}
	return types.Ping{APIVersion: "1.51"}, nil
}

func (m *mockDockerClient) ContainerList(_ context.Context, options container.ListOptions) ([]container.Summary, error) {
	err := m.enter("ContainerList")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]container.Summary, 0, len(m.containers))
	for _, c := range m.containers {
		if !options.All && !c.running {
			continue
		}
		s := container.Summary{ID: c.id, Names: []string{"/" + c.name}, Image: c.image, State: "exited"}
		if c.running {
			s.State = "running"
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Names[0] < out[j].Names[0] })
	return out, nil
}

func (m *mockDockerClient) ContainerInspect(_ context.Context, containerID string) (container.InspectResponse, error) {
	err := m.enter("ContainerInspect")
	defer m.mu.Unlock()
	if err != nil {
		return container.InspectResponse{}, err
	}
	c := m.find(containerID)
	if c == nil {
		return container.InspectResponse{}, noSuchContainer(containerID)
	}

	state := &container.State{Status: "exited"}
	if c.running {
		state = &container.State{Status: "running", Running: true}
	}
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:    c.id,
			Name:  "/" + c.name,
			State: state,
		},
		Config: &container.Config{Image: c.image},
	}, nil
}

func (m *mockDockerClient) ContainerStart(_ context.Context, containerID string, _ container.StartOptions) error {
	err := m.enter("ContainerStart")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	c := m.find(containerID)
	if c == nil {
		return noSuchContainer(containerID)
	}
	c.running = true
	return nil
}

func (m *mockDockerClient) ContainerStop(_ context.Context, containerID string, _ container.StopOptions) error {
	err := m.enter("ContainerStop")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	c := m.find(containerID)
	if c == nil {
		return noSuchContainer(containerID)
	}
	c.running = false
	return nil
}

func (m *mockDockerClient) ContainerRestart(_ context.Context, containerID string, _ container.StopOptions) error {
	err := m.enter("ContainerRestart")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	c := m.find(containerID)
	if c == nil {
		return noSuchContainer(containerID)
	}
	c.running = true
	return nil
}

func (m *mockDockerClient) ContainerKill(_ context.Context, containerID, signal string) error {
	err := m.enter("ContainerKill")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	c := m.find(containerID)
	if c == nil {
		return noSuchContainer(containerID)
	}
	if !c.running {
		return errdefs.Conflict(fmt.Errorf("Error response from daemon: cannot kill container: %s: container %s is not running", containerID, c.id))
	}
	c.running = false
	return nil
}

func (m *mockDockerClient) ContainerRemove(_ context.Context, containerID string, options container.RemoveOptions) error {
	err := m.enter("ContainerRemove")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	c := m.find(containerID)
	if c == nil {
		return noSuchContainer(containerID)
	}
	if c.running && !options.Force {
		return errdefs.Conflict(fmt.Errorf("Error response from daemon: cannot remove container %q: container is running: stop the container before removing or force remove", "/"+c.name))
	}
	delete(m.containers, c.id)
	return nil
}

func (m *mockDockerClient) ContainersPrune(_ context.Context, _ filters.Args) (container.PruneReport, error) {
	err := m.enter("ContainersPrune")
	defer m.mu.Unlock()
	if err != nil {
		return container.PruneReport{}, err
	}

	var report container.PruneReport
	for id, c := range m.containers {
		if c.running {
			continue
		}
		delete(m.containers, id)
		report.ContainersDeleted = append(report.ContainersDeleted, id)
		report.SpaceReclaimed += 1024
	}
	sort.Strings(report.ContainersDeleted)
	return report, nil
}

func (m *mockDockerClient) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	err := m.enter("ContainerCreate")
	defer m.mu.Unlock()
	if err != nil {
		return container.CreateResponse{}, err
	}

	if _, ok := m.images[config.Image]; !ok {
		return container.CreateResponse{}, errdefs.NotFound(fmt.Errorf("Error response from daemon: No such image: %s", config.Image))
	}
	if containerName != "" {
		for _, c := range m.containers {
			if c.name == containerName {
				return container.CreateResponse{}, errdefs.Conflict(fmt.Errorf("Error response from daemon: Conflict. The container name %q is already in use by container %q", "/"+containerName, c.id))
			}
		}
	}

	m.nextID++
	id := fmt.Sprintf("%012x%052d", 0xdef000+m.nextID, 0)
	name := containerName
	if name == "" {
		name = fmt.Sprintf("auto_%d", m.nextID)
	}
	m.containers[id] = &mockContainer{id: id, name: name, image: config.Image, config: config, host: hostConfig}
	return container.CreateResponse{ID: id}, nil
}

func (m *mockDockerClient) ContainerWait(_ context.Context, containerID string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)

	err := m.enter("ContainerWait")
	defer m.mu.Unlock()
	if err != nil {
		errCh <- err
		return statusCh, errCh
	}
	c := m.find(containerID)
	if c == nil {
		errCh <- noSuchContainer(containerID)
		return statusCh, errCh
	}
	c.running = false
	statusCh <- container.WaitResponse{StatusCode: 0}
	return statusCh, errCh
}

func (m *mockDockerClient) ImageList(_ context.Context, _ image.ListOptions) ([]image.Summary, error) {
	err := m.enter("ImageList")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]image.Summary, 0, len(m.images))
	for _, img := range m.images {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockDockerClient) ImagePull(_ context.Context, refStr string, _ image.PullOptions) (io.ReadCloser, error) {
	err := m.enter("ImagePull")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if msg, ok := m.pullStreamErr[refStr]; ok {
		stream := fmt.Sprintf(`{"status":"Pulling from library/%s"}`+"\n"+`{"errorDetail":{"message":%q},"error":%q}`+"\n", refStr, msg, msg)
		return io.NopCloser(strings.NewReader(stream)), nil
	}
	if !m.pullable[refStr] {
		return nil, errdefs.NotFound(fmt.Errorf("Error response from daemon: pull access denied for %s, repository does not exist or may require 'docker login'", refStr))
	}

	m.images[refStr] = image.Summary{ID: "sha256:pulled", RepoTags: []string{refStr}, Created: time.Now().Unix()}
	stream := `{"status":"Pulling fs layer"}` + "\n" + `{"status":"Download complete"}` + "\n"
	return io.NopCloser(strings.NewReader(stream)), nil
}

// newTestAdapter wires an Adapter to a fresh mock with a quiet logger.
func newTestAdapter() (*Adapter, *mockDockerClient) {
	cli := newMockDockerClient()
	a := newWithDeps(cli, Options{
		Timeout: time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return a, cli
}
