package container

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
)

// Start starts a stopped container.
func (a *Adapter) Start(ctx context.Context, r resource.Resource) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.logger.Info("starting container", "id", r.ID, "name", r.Name)
	return translate(a.cli.ContainerStart(ctx, r.ID, container.StartOptions{}))
}

// Stop stops a running container gracefully.
func (a *Adapter) Stop(ctx context.Context, r resource.Resource) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.logger.Info("stopping container", "id", r.ID, "name", r.Name)
	return translate(a.cli.ContainerStop(ctx, r.ID, container.StopOptions{}))
}

// Restart restarts a running container in place.
func (a *Adapter) Restart(ctx context.Context, r resource.Resource) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.logger.Info("restarting container", "id", r.ID, "name", r.Name)
	return translate(a.cli.ContainerRestart(ctx, r.ID, container.StopOptions{}))
}

// Shutdown kills the container when forced and stops it otherwise. Containers
// cannot be saved.
func (a *Adapter) Shutdown(ctx context.Context, r resource.Resource, opts resource.ShutdownOptions) error {
	if opts.Save {
		return resource.ArgumentNotFound("save is not supported for containers")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if opts.Force {
		a.logger.Info("killing container", "id", r.ID, "name", r.Name)
		return translate(a.cli.ContainerKill(ctx, r.ID, "SIGKILL"))
	}

	a.logger.Info("stopping container", "id", r.ID, "name", r.Name)
	return translate(a.cli.ContainerStop(ctx, r.ID, container.StopOptions{}))
}

// Remove deletes the container. Force is passed through to the daemon.
// Snapshot and volume options belong to VMs and are rejected.
func (a *Adapter) Remove(ctx context.Context, r resource.Resource, opts resource.RemoveOptions) error {
	if opts.DeleteSnapshot != "" {
		return resource.ArgumentNotFound("deleteSnapshot is not supported for containers")
	}
	if opts.DeleteVolume {
		return resource.ArgumentNotFound("deleteVolume is not supported for containers")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.logger.Info("removing container", "id", r.ID, "name", r.Name, "force", opts.Force)
	return translate(a.cli.ContainerRemove(ctx, r.ID, container.RemoveOptions{Force: opts.Force}))
}

// Prune removes every stopped container.
func (a *Adapter) Prune(ctx context.Context) (resource.PruneReport, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	report, err := a.cli.ContainersPrune(ctx, filters.NewArgs())
	if err != nil {
		return resource.PruneReport{}, translate(fmt.Errorf("failed to prune containers: %w", err))
	}

	removed := make([]string, 0, len(report.ContainersDeleted))
	for _, id := range report.ContainersDeleted {
		removed = append(removed, naming.ShortID(id))
	}
	a.logger.Info("pruned containers", "count", len(removed), "bytes", report.SpaceReclaimed)

	return resource.PruneReport{
		Removed:        removed,
		SpaceReclaimed: report.SpaceReclaimed,
	}, nil
}
