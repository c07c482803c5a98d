package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jbweber/anvil/internal/resource"
)

func (c *Client) CreateSnapshot(ctx context.Context, id, name string) (resource.Result, error) {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	var out resource.Result
	err := c.do(ctx, http.MethodPut, resourcePath(id, "snapshot"), q, nil, &out)
	return out, err
}

func (c *Client) ListSnapshots(ctx context.Context, id string) ([]resource.SnapshotRef, error) {
	var out []resource.SnapshotRef
	err := c.do(ctx, http.MethodGet, resourcePath(id, "snapshots"), nil, nil, &out)
	return out, err
}

func (c *Client) DeleteSnapshot(ctx context.Context, id, name string) (resource.Result, error) {
	var out resource.Result
	err := c.do(ctx, http.MethodDelete, resourcePath(id, "snapshots", url.PathEscape(name)), nil, nil, &out)
	return out, err
}

func (c *Client) ListVolumes(ctx context.Context) ([]resource.VolumeRef, error) {
	var out []resource.VolumeRef
	err := c.do(ctx, http.MethodGet, "/volumes", nil, nil, &out)
	return out, err
}

func (c *Client) CreateVolume(ctx context.Context, req resource.VolumeRequest) (resource.Result, error) {
	var out resource.Result
	err := c.do(ctx, http.MethodPost, "/volumes", nil, req, &out)
	return out, err
}

// DeleteVolume deletes the disk volume of the VM named by id.
func (c *Client) DeleteVolume(ctx context.Context, id string) (resource.Result, error) {
	var out resource.Result
	err := c.do(ctx, http.MethodDelete, resourcePath(id, "volume"), nil, nil, &out)
	return out, err
}
