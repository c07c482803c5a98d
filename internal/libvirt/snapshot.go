package libvirt

import (
	"fmt"
	"strconv"
	"time"

	"libvirt.org/go/libvirtxml"
)

// SnapshotInfo is the subset of <domainsnapshot> anvil reports.
type SnapshotInfo struct {
	Name      string
	CreatedAt time.Time
	State     string
	Memory    bool
}

// GenerateSnapshotXML returns the minimal snapshot descriptor; libvirt fills
// in disks and memory according to the domain's state.
func GenerateSnapshotXML(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("snapshot name is required")
	}

	snap := &libvirtxml.DomainSnapshot{
		Name: name,
	}

	xml, err := snap.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot XML: %w", err)
	}
	return xml, nil
}

// ParseSnapshotXML extracts name, creation time, state and memory capture
// from a snapshot's XML description.
func ParseSnapshotXML(xml string) (SnapshotInfo, error) {
	snap := &libvirtxml.DomainSnapshot{}
	if err := snap.Unmarshal(xml); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to parse snapshot XML: %w", err)
	}

	info := SnapshotInfo{
		Name:  snap.Name,
		State: snap.State,
	}

	if snap.CreationTime != "" {
		secs, err := strconv.ParseInt(snap.CreationTime, 10, 64)
		if err != nil {
			return SnapshotInfo{}, fmt.Errorf("invalid snapshot creationTime %q: %w", snap.CreationTime, err)
		}
		info.CreatedAt = time.Unix(secs, 0).UTC()
	}

	// <memory snapshot='no'/> for disk-only snapshots; 'internal' or
	// 'external' when guest memory was captured.
	if snap.Memory != nil && snap.Memory.Snapshot != "" && snap.Memory.Snapshot != "no" {
		info.Memory = true
	}

	return info, nil
}
