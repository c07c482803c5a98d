package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/jbweber/anvil/internal/resource"
)

// translate maps a Docker Engine failure onto the resource taxonomy. Taxonomy
// errors pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var rerr *resource.Error
	if errors.As(err, &rerr) {
		return rerr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return resource.APIError(fmt.Sprintf("docker call timed out: %v", err))
	}

	if client.IsErrConnectionFailed(err) {
		return resource.ConnectionFailed(err.Error())
	}

	if errdefs.IsNotFound(err) {
		nf := resource.NotFound()
		nf.Detail = err.Error()
		return nf
	}

	return resource.APIError(err.Error())
}

// translateRun maps failures of container creation. A missing object at that
// point is the image; a rejected option is an unknown argument.
func translateRun(err error) error {
	if err == nil {
		return nil
	}

	var rerr *resource.Error
	if errors.As(err, &rerr) {
		return rerr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return translate(err)
	case errdefs.IsNotFound(err):
		return resource.ImageNotFound(err.Error())
	case errdefs.IsInvalidParameter(err):
		return resource.ArgumentNotFound(err.Error())
	default:
		return translate(err)
	}
}
