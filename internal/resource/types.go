// Package resource defines the backend-neutral view of the compute resources
// anvil manages, and the closed error taxonomy every backend failure is
// translated into before it leaves the core.
//
// A Resource is never stored. Adapters build a fresh view from the owning
// daemon on every query, so preconditions are always checked against the
// daemon's current state.
package resource

import "time"

// Kind identifies which backend owns a resource.
type Kind string

const (
	KindVM        Kind = "vm"
	KindContainer Kind = "container"
)

// State is the uniform lifecycle state of a resource.
//
// Containers only ever report Running or Stopped. VMs additionally use
// Paused (suspended, memory held) and Saved (state serialized to disk).
type State string

const (
	StateRunning State = "Running"
	StateStopped State = "Stopped"
	StatePaused  State = "Paused"
	StateSaved   State = "Saved"
	StateUnknown State = "Unknown"
)

// Active reports whether the resource still holds a live process. Active
// resources may not be removed.
func (s State) Active() bool {
	return s == StateRunning || s == StatePaused
}

// Resource is a projected view of a container or a VM domain.
type Resource struct {
	Kind       Kind   `json:"kind" yaml:"kind"`
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	State      State  `json:"state" yaml:"state"`
	Persistent bool   `json:"persistent" yaml:"persistent"`

	// Container only.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// VM only.
	VM *VMDetail `json:"vm,omitempty" yaml:"vm,omitempty"`
}

// VMDetail carries the hypervisor-reported hardware info of a domain.
type VMDetail struct {
	OSType             string `json:"osType,omitempty" yaml:"osType,omitempty"`
	MaxMemoryKiB       uint64 `json:"maxMemoryKiB" yaml:"maxMemoryKiB"`
	MemoryKiB          uint64 `json:"memoryKiB" yaml:"memoryKiB"`
	VCPUs              uint16 `json:"vcpus" yaml:"vcpus"`
	CPUTimeNs          uint64 `json:"cpuTimeNs" yaml:"cpuTimeNs"`
	HasCurrentSnapshot bool   `json:"hasCurrentSnapshot" yaml:"hasCurrentSnapshot"`
}

// SnapshotRef describes one snapshot of a VM domain.
type SnapshotRef struct {
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	// State is the domain state recorded at capture time (e.g. "running").
	State   string `json:"state" yaml:"state"`
	Current bool   `json:"current" yaml:"current"`
	Memory  bool   `json:"memory" yaml:"memory"`
}

// VolumeRef describes a storage volume in the hypervisor's pool.
type VolumeRef struct {
	Name           string `json:"name" yaml:"name"`
	Pool           string `json:"pool" yaml:"pool"`
	Path           string `json:"path" yaml:"path"`
	CapacityBytes  uint64 `json:"capacityBytes" yaml:"capacityBytes"`
	AllocatedBytes uint64 `json:"allocatedBytes" yaml:"allocatedBytes"`
}

// Image describes a container image known to the container daemon.
type Image struct {
	ID      string    `json:"id" yaml:"id"`
	Tags    []string  `json:"tags" yaml:"tags"`
	Created time.Time `json:"created" yaml:"created"`
}

// Result is the success payload of a mutating operation.
type Result struct {
	Kind    Kind   `json:"kind,omitempty" yaml:"kind,omitempty"`
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// PruneReport lists containers removed by a prune.
type PruneReport struct {
	Removed        []string `json:"removed" yaml:"removed"`
	SpaceReclaimed uint64   `json:"spaceReclaimed" yaml:"spaceReclaimed"`
}

// Detail is a resource view with the VM's snapshots attached.
type Detail struct {
	Resource  `yaml:",inline"`
	Snapshots []SnapshotRef `json:"snapshots,omitempty" yaml:"snapshots,omitempty"`
}
