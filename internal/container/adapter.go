package container

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
)

// DefaultTimeout bounds each daemon call when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures an Adapter.
type Options struct {
	// Timeout bounds every daemon call.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Adapter exposes Docker containers as resources.
type Adapter struct {
	cli     dockerClient
	timeout time.Duration
	logger  *slog.Logger
}

// Connect opens a Docker Engine client from the environment (DOCKER_HOST and
// friends) and verifies the daemon answers. host and apiVersion override the
// environment when set; without apiVersion the version is negotiated.
func Connect(ctx context.Context, host, apiVersion string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	if apiVersion != "" {
		opts = append(opts, client.WithVersion(apiVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, resource.ConnectionFailed(fmt.Sprintf("failed to create docker client: %v", err))
	}

	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, resource.ConnectionFailed(fmt.Sprintf("failed to ping docker daemon: %v", err))
	}

	return cli, nil
}

// New creates an Adapter over a Docker Engine client.
func New(cli *client.Client, opts Options) *Adapter {
	return newWithDeps(cli, opts)
}

// newWithDeps creates an Adapter with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func newWithDeps(cli dockerClient, opts Options) *Adapter {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Adapter{
		cli:     cli,
		timeout: opts.Timeout,
		logger:  opts.Logger.With("component", "container"),
	}
}

// Kind returns resource.KindContainer.
func (a *Adapter) Kind() resource.Kind {
	return resource.KindContainer
}

// Ping checks that the daemon answers.
func (a *Adapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if _, err := a.cli.Ping(ctx); err != nil {
		return resource.ConnectionFailed(err.Error())
	}
	return nil
}

// Lookup returns the current view of the container id resolves to. The
// daemon accepts full ids, unique id prefixes and names.
func (a *Adapter) Lookup(ctx context.Context, id string) (resource.Resource, error) {
	if id == "" {
		return resource.Resource{}, resource.NotFound()
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return resource.Resource{}, translate(err)
	}
	return view(info), nil
}

// List returns every container, stopped ones included.
func (a *Adapter) List(ctx context.Context) ([]resource.Resource, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	summaries, err := a.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, translate(fmt.Errorf("failed to list containers: %w", err))
	}

	out := make([]resource.Resource, 0, len(summaries))
	for _, s := range summaries {
		name := ""
		if len(s.Names) > 0 {
			name = strings.TrimPrefix(s.Names[0], "/")
		}
		out = append(out, resource.Resource{
			Kind:       resource.KindContainer,
			ID:         naming.ShortID(s.ID),
			Name:       name,
			State:      mapState(string(s.State)),
			Persistent: true,
			Image:      s.Image,
		})
	}
	return out, nil
}

// view builds the resource projection of an inspected container.
func view(info container.InspectResponse) resource.Resource {
	r := resource.Resource{
		Kind:       resource.KindContainer,
		Persistent: true,
		State:      resource.StateUnknown,
	}
	if info.ContainerJSONBase != nil {
		r.ID = naming.ShortID(info.ID)
		r.Name = strings.TrimPrefix(info.Name, "/")
		if info.State != nil {
			r.State = mapState(string(info.State.Status))
		}
	}
	if info.Config != nil {
		r.Image = info.Config.Image
	}
	return r
}

// mapState converts a Docker status to the uniform state. Containers are
// either Running or Stopped; a restarting or paused container still holds
// its process and counts as Running.
func mapState(status string) resource.State {
	switch status {
	case "running", "restarting", "paused":
		return resource.StateRunning
	case "":
		return resource.StateUnknown
	default:
		return resource.StateStopped
	}
}
