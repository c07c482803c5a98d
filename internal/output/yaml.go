package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/resource"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) marshal(what string, v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to YAML: %w", what, err)
	}
	return string(data), nil
}

// FormatResource formats a single resource as YAML.
func (f *YAMLFormatter) FormatResource(d resource.Detail) (string, error) {
	return f.marshal("resource", d)
}

// FormatResourceList formats a list of resources as YAML.
// Outputs as a YAML stream (multiple documents separated by ---).
func (f *YAMLFormatter) FormatResourceList(rs []resource.Resource) (string, error) {
	if len(rs) == 0 {
		return "", nil
	}

	var buf bytes.Buffer

	for i, r := range rs {
		data, err := yaml.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s %s to YAML: %w", r.Kind, r.Name, err)
		}

		// Add document separator between resources (but not before the first one)
		if i > 0 {
			buf.WriteString("---\n")
		}

		buf.Write(data)
	}

	return buf.String(), nil
}

// FormatSnapshots formats snapshots as a YAML sequence.
func (f *YAMLFormatter) FormatSnapshots(snaps []resource.SnapshotRef) (string, error) {
	if len(snaps) == 0 {
		return "", nil
	}
	return f.marshal("snapshots", snaps)
}

// FormatVolumes formats volumes as a YAML sequence.
func (f *YAMLFormatter) FormatVolumes(vols []resource.VolumeRef) (string, error) {
	if len(vols) == 0 {
		return "", nil
	}
	return f.marshal("volumes", vols)
}

// FormatImages formats images as a YAML sequence.
func (f *YAMLFormatter) FormatImages(images []resource.Image) (string, error) {
	if len(images) == 0 {
		return "", nil
	}
	return f.marshal("images", images)
}

// FormatResult formats an operation result as YAML.
func (f *YAMLFormatter) FormatResult(r resource.Result) (string, error) {
	return f.marshal("result", r)
}

// FormatPrune formats a prune report as YAML.
func (f *YAMLFormatter) FormatPrune(p resource.PruneReport) (string, error) {
	return f.marshal("prune report", p)
}

// FormatHealth formats backend health as a YAML mapping.
func (f *YAMLFormatter) FormatHealth(h map[string]string) (string, error) {
	return f.marshal("health", h)
}
