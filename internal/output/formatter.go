// Package output renders anvil resources and operation results for the
// command line in various formats (table, YAML, JSON).
package output

import (
	"fmt"

	"github.com/jbweber/anvil/internal/resource"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Formatter formats anvil resources for output.
type Formatter interface {
	// FormatResource formats a single resource, with its snapshots if any.
	FormatResource(d resource.Detail) (string, error)

	// FormatResourceList formats a list of resources.
	FormatResourceList(rs []resource.Resource) (string, error)

	FormatSnapshots(snaps []resource.SnapshotRef) (string, error)
	FormatVolumes(vols []resource.VolumeRef) (string, error)
	FormatImages(images []resource.Image) (string, error)

	// FormatResult formats the outcome of a mutating operation.
	FormatResult(r resource.Result) (string, error)
	FormatPrune(p resource.PruneReport) (string, error)

	// FormatHealth formats the per-backend health map ("ok" or an error).
	FormatHealth(h map[string]string) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable, "":
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	f := Format(format)
	switch f {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
