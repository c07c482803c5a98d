package lifecycle

import (
	"context"

	"github.com/jbweber/anvil/internal/resource"
)

// RunContainer creates a container from image and starts it.
func (c *Controller) RunContainer(ctx context.Context, image string, opts resource.RunOptions) (_ resource.Result, err error) {
	op := c.begin("run", image)
	op.kind = resource.KindContainer
	defer func() { op.end(err) }()

	if c.containers == nil {
		return resource.Result{}, disabled(resource.KindContainer)
	}
	r, err := c.containers.Run(ctx, image, opts)
	if err != nil {
		return resource.Result{}, err
	}
	return result(r, "Following container successfully created"), nil
}

// RunVMFromXML defines a domain from libvirt XML and boots it.
func (c *Controller) RunVMFromXML(ctx context.Context, domainXML string) (_ resource.Result, err error) {
	op := c.begin("run_vm", "")
	op.kind = resource.KindVM
	defer func() { op.end(err) }()

	if c.vms == nil {
		return resource.Result{}, disabled(resource.KindVM)
	}
	r, err := c.vms.RunFromXML(ctx, domainXML)
	if err != nil {
		return resource.Result{}, err
	}
	return result(r, "Following guest successfully booted"), nil
}

// RunVMFromSpec defines a domain from a descriptor and boots it.
func (c *Controller) RunVMFromSpec(ctx context.Context, spec resource.VMSpec) (_ resource.Result, err error) {
	op := c.begin("run_vm", spec.Name)
	op.kind = resource.KindVM
	defer func() { op.end(err) }()

	if c.vms == nil {
		return resource.Result{}, disabled(resource.KindVM)
	}
	r, err := c.vms.RunFromSpec(ctx, spec)
	if err != nil {
		return resource.Result{}, err
	}
	return result(r, "Following guest successfully booted"), nil
}

// ListImages returns the images known to the container daemon.
func (c *Controller) ListImages(ctx context.Context) ([]resource.Image, error) {
	if c.containers == nil {
		return nil, disabled(resource.KindContainer)
	}
	return c.containers.ListImages(ctx)
}
