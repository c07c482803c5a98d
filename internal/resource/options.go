package resource

// StartOptions modifies Start. RevertSnapshot is honoured by VMs only.
type StartOptions struct {
	RevertSnapshot string `json:"revertSnapshot,omitempty"`
}

// ShutdownOptions selects how a running resource is brought down. When
// several are set the priority is Save, then Force, then graceful.
type ShutdownOptions struct {
	// Save serializes VM state to disk (managed save). VMs only.
	Save bool `json:"save,omitempty"`
	// Force kills the resource without giving the guest a chance to react.
	Force bool `json:"force,omitempty"`
}

// RemoveOptions modifies Remove.
type RemoveOptions struct {
	// Force is passed to the container daemon.
	Force bool `json:"force,omitempty"`
	// DeleteSnapshot retargets the call at one VM snapshot; the domain
	// itself is left alone.
	DeleteSnapshot string `json:"deleteSnapshot,omitempty"`
	// DeleteVolume also deletes the domain's {name}.qcow2 volume.
	DeleteVolume bool `json:"deleteVolume,omitempty"`
}

// RunOptions are the container creation parameters.
type RunOptions struct {
	Name string `json:"name,omitempty"`
	// Detach starts the container after creating it and returns at once.
	Detach bool `json:"detach"`
	// Ports maps "containerPort/proto" to a host port, e.g. {"5000/tcp": 1000}.
	Ports map[string]int `json:"ports,omitempty"`
	// Volumes are bind mounts "host:container[:ro]".
	Volumes []string `json:"volumes,omitempty"`
	Env     []string `json:"environment,omitempty"`
	Command []string `json:"command,omitempty"`
}

// CloudInitSpec seeds a new VM through a NoCloud ISO.
type CloudInitSpec struct {
	Hostname          string   `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	SSHAuthorizedKeys []string `json:"sshAuthorizedKeys,omitempty" yaml:"ssh_authorized_keys,omitempty"`
	// UserData replaces the generated #cloud-config document when set.
	UserData string `json:"userData,omitempty" yaml:"user_data,omitempty"`
}

// VMSpec is the JSON descriptor a VM is defined from.
type VMSpec struct {
	Name      string `json:"name" yaml:"name"`
	MemoryKiB uint64 `json:"memory" yaml:"memory"`
	VCPUs     uint   `json:"vcpu" yaml:"vcpu"`
	// SourceISO is an installer image path on the hypervisor host.
	SourceISO string `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	// DiskBytes creates {name}.qcow2 with this capacity when it does not
	// exist yet. Zero expects the volume to be present.
	DiskBytes uint64         `json:"diskBytes,omitempty" yaml:"disk_bytes,omitempty"`
	Network   string         `json:"network,omitempty" yaml:"network,omitempty"`
	CloudInit *CloudInitSpec `json:"cloudInit,omitempty" yaml:"cloud_init,omitempty"`
}

// VolumeRequest asks for a new VM disk volume.
type VolumeRequest struct {
	// Name is the domain name; the volume is created as {name}.qcow2.
	Name          string `json:"name"`
	CapacityBytes uint64 `json:"capacityBytes"`
}
