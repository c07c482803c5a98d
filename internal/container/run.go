package container

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"

	"github.com/jbweber/anvil/internal/resource"
)

// Run creates a container from imageRef and starts it.
//
// This orchestrates:
//  1. Translate RunOptions into container and host config
//  2. Create the container, pulling imageRef once if it is not present
//  3. Start it; a container that fails to start is removed again
//  4. Without Detach, wait for the container to exit
func (a *Adapter) Run(ctx context.Context, imageRef string, opts resource.RunOptions) (resource.Resource, error) {
	if imageRef == "" {
		return resource.Resource{}, resource.ArgumentNotFound("image is required")
	}

	cfg, hostCfg, err := buildConfig(imageRef, opts)
	if err != nil {
		return resource.Resource{}, err
	}

	// Create, pulling on a missing image
	id, err := a.create(ctx, cfg, hostCfg, opts.Name)
	if errdefs.IsNotFound(err) {
		a.logger.Info("image not present, pulling", "image", imageRef)
		if perr := a.pull(ctx, imageRef); perr != nil {
			return resource.Resource{}, perr
		}
		id, err = a.create(ctx, cfg, hostCfg, opts.Name)
	}
	if err != nil {
		return resource.Resource{}, translateRun(err)
	}
	a.logger.Info("created container", "id", id, "image", imageRef, "name", opts.Name)

	// Start
	if err := a.start(ctx, id); err != nil {
		a.logger.Warn("start failed, removing container", "id", id, "error", err)
		if rerr := a.remove(ctx, id); rerr != nil {
			a.logger.Warn("failed to remove container", "id", id, "error", rerr)
		}
		return resource.Resource{}, translateRun(err)
	}

	// Attached runs block until the container exits
	if !opts.Detach {
		if err := a.wait(ctx, id); err != nil {
			return resource.Resource{}, err
		}
	}

	return a.Lookup(ctx, id)
}

func (a *Adapter) create(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", err
	}
	for _, w := range resp.Warnings {
		a.logger.Warn("container create warning", "id", resp.ID, "warning", w)
	}
	return resp.ID, nil
}

func (a *Adapter) start(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (a *Adapter) remove(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

// pull fetches imageRef and drains the progress stream. Errors reported
// inside the stream surface here too.
func (a *Adapter) pull(ctx context.Context, imageRef string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rc, err := a.cli.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return translateRun(err)
	}
	defer rc.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(rc, io.Discard, 0, false, nil); err != nil {
		if isMissingImage(err.Error()) {
			return resource.ImageNotFound(err.Error())
		}
		return translate(fmt.Errorf("failed to pull %s: %w", imageRef, err))
	}
	return nil
}

// wait blocks until the container is no longer running. Attached runs are
// not bounded by the per-call timeout; ctx still cancels them.
func (a *Adapter) wait(ctx context.Context, id string) error {
	statusCh, errCh := a.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return translate(err)
	case status := <-statusCh:
		if status.Error != nil {
			return resource.APIError(status.Error.Message)
		}
		a.logger.Info("container exited", "id", id, "status", status.StatusCode)
		return nil
	case <-ctx.Done():
		return translate(ctx.Err())
	}
}

func isMissingImage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "manifest unknown")
}

// buildConfig translates RunOptions. Ports map "5000/tcp" to a host port
// (0 picks a free one); volumes are "host:container[:mode]" bind mounts.
func buildConfig(imageRef string, opts resource.RunOptions) (*container.Config, *container.HostConfig, error) {
	cfg := &container.Config{
		Image: imageRef,
		Env:   opts.Env,
		Cmd:   opts.Command,
	}
	hostCfg := &container.HostConfig{}

	if len(opts.Ports) > 0 {
		cfg.ExposedPorts = nat.PortSet{}
		hostCfg.PortBindings = nat.PortMap{}
		for spec, hostPort := range opts.Ports {
			proto, port := nat.SplitProtoPort(spec)
			p, err := nat.NewPort(proto, port)
			if err != nil {
				return nil, nil, resource.ArgumentNotFound(fmt.Sprintf("invalid port %q: %v", spec, err))
			}
			if hostPort < 0 || hostPort > 65535 {
				return nil, nil, resource.ArgumentNotFound(fmt.Sprintf("invalid host port %d for %q", hostPort, spec))
			}

			binding := nat.PortBinding{}
			if hostPort > 0 {
				binding.HostPort = fmt.Sprint(hostPort)
			}
			cfg.ExposedPorts[p] = struct{}{}
			hostCfg.PortBindings[p] = append(hostCfg.PortBindings[p], binding)
		}
	}

	for _, bind := range opts.Volumes {
		parts := strings.Split(bind, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, nil, resource.ArgumentNotFound(fmt.Sprintf("invalid volume %q, want host:container[:mode]", bind))
		}
	}
	hostCfg.Binds = opts.Volumes

	return cfg, hostCfg, nil
}
