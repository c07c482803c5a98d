package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jbweber/anvil/internal/resource"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// encode writes v as indented JSON. Nil slices are rendered as [].
func (f *JSONFormatter) encode(what string, v any) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(v); err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}

	return buf.String(), nil
}

// FormatResource formats a single resource as JSON.
func (f *JSONFormatter) FormatResource(d resource.Detail) (string, error) {
	return f.encode("resource", d)
}

// FormatResourceList formats a list of resources as a JSON array.
func (f *JSONFormatter) FormatResourceList(rs []resource.Resource) (string, error) {
	if len(rs) == 0 {
		return "[]\n", nil
	}
	return f.encode("resources", rs)
}

// FormatSnapshots formats snapshots as a JSON array.
func (f *JSONFormatter) FormatSnapshots(snaps []resource.SnapshotRef) (string, error) {
	if len(snaps) == 0 {
		return "[]\n", nil
	}
	return f.encode("snapshots", snaps)
}

// FormatVolumes formats volumes as a JSON array.
func (f *JSONFormatter) FormatVolumes(vols []resource.VolumeRef) (string, error) {
	if len(vols) == 0 {
		return "[]\n", nil
	}
	return f.encode("volumes", vols)
}

// FormatImages formats images as a JSON array.
func (f *JSONFormatter) FormatImages(images []resource.Image) (string, error) {
	if len(images) == 0 {
		return "[]\n", nil
	}
	return f.encode("images", images)
}

// FormatResult formats an operation result as JSON.
func (f *JSONFormatter) FormatResult(r resource.Result) (string, error) {
	return f.encode("result", r)
}

// FormatPrune formats a prune report as JSON.
func (f *JSONFormatter) FormatPrune(p resource.PruneReport) (string, error) {
	if p.Removed == nil {
		p.Removed = []string{}
	}
	return f.encode("prune report", p)
}

// FormatHealth formats backend health as a JSON object.
func (f *JSONFormatter) FormatHealth(h map[string]string) (string, error) {
	return f.encode("health", h)
}
