package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jbweber/anvil/internal/resource"
)

// Health returns the per-backend health map. A degraded server answers with
// an error; the map is still filled in when the body carried one.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, &out)
	return out, err
}

// List returns resources of kind, or all of them when kind is empty.
func (c *Client) List(ctx context.Context, kind resource.Kind) ([]resource.Resource, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("type", string(kind))
	}
	var out []resource.Resource
	err := c.do(ctx, http.MethodGet, "/resources", q, nil, &out)
	return out, err
}

// Get returns one resource, with its snapshots when snapshots is set.
func (c *Client) Get(ctx context.Context, id string, snapshots bool) (resource.Detail, error) {
	q := url.Values{}
	boolParam(q, "snapshots", snapshots)
	var out resource.Detail
	err := c.do(ctx, http.MethodGet, resourcePath(id), q, nil, &out)
	return out, err
}

func (c *Client) Start(ctx context.Context, id string, opts resource.StartOptions) (resource.Result, error) {
	q := url.Values{}
	if opts.RevertSnapshot != "" {
		q.Set("revertSnapshot", opts.RevertSnapshot)
	}
	var out resource.Result
	err := c.do(ctx, http.MethodPut, resourcePath(id, "start"), q, nil, &out)
	return out, err
}

func (c *Client) Stop(ctx context.Context, id string) (resource.Result, error) {
	var out resource.Result
	err := c.do(ctx, http.MethodPut, resourcePath(id, "stop"), nil, nil, &out)
	return out, err
}

func (c *Client) Restart(ctx context.Context, id string) (resource.Result, error) {
	var out resource.Result
	err := c.do(ctx, http.MethodPut, resourcePath(id, "restart"), nil, nil, &out)
	return out, err
}

func (c *Client) Shutdown(ctx context.Context, id string, opts resource.ShutdownOptions) (resource.Result, error) {
	q := url.Values{}
	boolParam(q, "save", opts.Save)
	boolParam(q, "force", opts.Force)
	var out resource.Result
	err := c.do(ctx, http.MethodPut, resourcePath(id, "shutdown"), q, nil, &out)
	return out, err
}

func (c *Client) Remove(ctx context.Context, id string, opts resource.RemoveOptions) (resource.Result, error) {
	q := url.Values{}
	boolParam(q, "force", opts.Force)
	boolParam(q, "deleteVolume", opts.DeleteVolume)
	if opts.DeleteSnapshot != "" {
		q.Set("deleteSnapshot", opts.DeleteSnapshot)
	}
	var out resource.Result
	err := c.do(ctx, http.MethodDelete, resourcePath(id), q, nil, &out)
	return out, err
}

func (c *Client) Prune(ctx context.Context) (resource.PruneReport, error) {
	var out resource.PruneReport
	err := c.do(ctx, http.MethodDelete, "/containers/prune", nil, nil, &out)
	return out, err
}

func (c *Client) RunContainer(ctx context.Context, image string, opts resource.RunOptions) (resource.Result, error) {
	q := url.Values{"image": {image}}
	var out resource.Result
	err := c.do(ctx, http.MethodPost, "/containers/run", q, opts, &out)
	return out, err
}

func (c *Client) ListImages(ctx context.Context) ([]resource.Image, error) {
	var out []resource.Image
	err := c.do(ctx, http.MethodGet, "/images", nil, nil, &out)
	return out, err
}

// RunVMFromXML posts raw domain XML.
func (c *Client) RunVMFromXML(ctx context.Context, domainXML string) (resource.Result, error) {
	var out resource.Result
	err := c.do(ctx, http.MethodPost, "/vms/xml", nil, domainXML, &out)
	return out, err
}

func (c *Client) RunVMFromSpec(ctx context.Context, spec resource.VMSpec) (resource.Result, error) {
	var out resource.Result
	err := c.do(ctx, http.MethodPost, "/vms", nil, spec, &out)
	return out, err
}
