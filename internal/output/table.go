package output

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jbweber/anvil/internal/resource"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// table runs fn against a tabwriter and returns the rendered text.
func (f *TableFormatter) table(header string, fn func(w *tabwriter.Writer)) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	// Write header unless NoHeaders is set
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, header)
	}
	fn(w)

	_ = w.Flush()
	return buf.String()
}

// FormatResource formats a single resource as a table row, followed by its
// snapshots when present.
func (f *TableFormatter) FormatResource(d resource.Detail) (string, error) {
	out, err := f.FormatResourceList([]resource.Resource{d.Resource})
	if err != nil || len(d.Snapshots) == 0 {
		return out, err
	}

	snaps, err := f.FormatSnapshots(d.Snapshots)
	if err != nil {
		return "", err
	}
	return out + "\n" + snaps, nil
}

// FormatResourceList formats a list of resources as a table.
func (f *TableFormatter) FormatResourceList(rs []resource.Resource) (string, error) {
	if len(rs) == 0 {
		return "No resources found\n", nil
	}

	return f.table("NAME\tKIND\tID\tSTATE\tDETAIL", func(w *tabwriter.Writer) {
		for _, r := range rs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				dash(r.Name), r.Kind, r.ID, r.State, detail(r))
		}
	}), nil
}

// detail summarizes the kind-specific part of a resource.
func detail(r resource.Resource) string {
	switch {
	case r.VM != nil:
		return fmt.Sprintf("%d vCPU, %s", r.VM.VCPUs, formatBytes(r.VM.MaxMemoryKiB*1024))
	case r.Image != "":
		return r.Image
	default:
		return "-"
	}
}

// FormatSnapshots formats VM snapshots as a table.
func (f *TableFormatter) FormatSnapshots(snaps []resource.SnapshotRef) (string, error) {
	if len(snaps) == 0 {
		return "No snapshots found\n", nil
	}

	return f.table("SNAPSHOT\tSTATE\tCURRENT\tAGE", func(w *tabwriter.Writer) {
		for _, s := range snaps {
			current := ""
			if s.Current {
				current = "*"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, dash(s.State), current, age(s.CreatedAt))
		}
	}), nil
}

// FormatVolumes formats storage volumes as a table.
func (f *TableFormatter) FormatVolumes(vols []resource.VolumeRef) (string, error) {
	if len(vols) == 0 {
		return "No volumes found\n", nil
	}

	return f.table("VOLUME\tPOOL\tCAPACITY\tALLOCATED\tPATH", func(w *tabwriter.Writer) {
		for _, v := range vols {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				v.Name, v.Pool, formatBytes(v.CapacityBytes), formatBytes(v.AllocatedBytes), dash(v.Path))
		}
	}), nil
}

// FormatImages formats container images as a table.
func (f *TableFormatter) FormatImages(images []resource.Image) (string, error) {
	if len(images) == 0 {
		return "No images found\n", nil
	}

	return f.table("IMAGE ID\tTAGS\tAGE", func(w *tabwriter.Writer) {
		for _, img := range images {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", img.ID, dash(strings.Join(img.Tags, ",")), age(img.Created))
		}
	}), nil
}

// FormatResult prints the result message, naming the resource it applied to.
func (f *TableFormatter) FormatResult(r resource.Result) (string, error) {
	target := r.Name
	if target == "" {
		target = r.ID
	}
	if target == "" {
		return r.Message + "\n", nil
	}
	return fmt.Sprintf("%s: %s\n", target, r.Message), nil
}

// FormatPrune lists removed containers and the space reclaimed.
func (f *TableFormatter) FormatPrune(p resource.PruneReport) (string, error) {
	var b strings.Builder
	for _, id := range p.Removed {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Removed %d containers, reclaimed %s\n", len(p.Removed), formatBytes(p.SpaceReclaimed))
	return b.String(), nil
}

// FormatHealth formats backend health sorted by backend name.
func (f *TableFormatter) FormatHealth(h map[string]string) (string, error) {
	kinds := make([]string, 0, len(h))
	for k := range h {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	return f.table("BACKEND\tSTATUS", func(w *tabwriter.Writer) {
		for _, k := range kinds {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", k, h[k])
		}
	}), nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return formatAge(time.Since(t))
}

// formatBytes renders n with a binary unit suffix, e.g. "4.0 GiB".
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	// Less than ~2 months (8 weeks)
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	years := days / 365
	if years > 0 {
		return fmt.Sprintf("%dy", years)
	}

	return fmt.Sprintf("%dd", days)
}
