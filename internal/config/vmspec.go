package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
)

// VMDescriptor is the on-disk form of a VM definition request. It accepts
// everything resource.VMSpec does plus GiB shorthands for memory and disk.
type VMDescriptor struct {
	resource.VMSpec `yaml:",inline"`

	MemoryGiB uint64 `yaml:"memory_gib,omitempty"`
	DiskGiB   uint64 `yaml:"disk_gib,omitempty"`
}

var fqdnPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// Normalize sanitizes user input and folds the GiB shorthands into the VMSpec fields.
func (d *VMDescriptor) Normalize() {
	// Normalize VM name to lowercase
	d.Name = strings.ToLower(strings.TrimSpace(d.Name))

	if d.MemoryKiB == 0 && d.MemoryGiB > 0 {
		d.MemoryKiB = d.MemoryGiB << 20
	}
	if d.DiskBytes == 0 && d.DiskGiB > 0 {
		d.DiskBytes = d.DiskGiB << 30
	}

	if d.CloudInit != nil {
		d.CloudInit.Hostname = strings.ToLower(strings.TrimSpace(d.CloudInit.Hostname))
	}
}

// Validate checks the descriptor structure. Hypervisor resources (ISO,
// network) are not checked.
func (d *VMDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := naming.ValidateDomainName(d.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if d.VCPUs == 0 {
		return fmt.Errorf("vcpu must be > 0")
	}
	if d.MemoryKiB == 0 {
		return fmt.Errorf("memory must be > 0 (set memory in KiB or memory_gib)")
	}

	if d.CloudInit != nil {
		if err := validateCloudInit(d.CloudInit); err != nil {
			return fmt.Errorf("cloud_init: %w", err)
		}
	}
	return nil
}

func validateCloudInit(c *resource.CloudInitSpec) error {
	if c.Hostname != "" && !fqdnPattern.MatchString(c.Hostname) {
		return fmt.Errorf("hostname must be a valid host or domain name, got %q", c.Hostname)
	}

	// Validate SSH keys using golang.org/x/crypto/ssh parser
	for i, key := range c.SSHAuthorizedKeys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return fmt.Errorf("ssh_authorized_keys[%d] is not a valid SSH public key: %w", i, err)
		}
	}

	if c.UserData != "" && !strings.HasPrefix(c.UserData, "#") {
		return fmt.Errorf("user_data must start with a cloud-init header such as #cloud-config")
	}
	return nil
}

// LoadVMSpec loads a VM descriptor from a YAML (or JSON) file.
func LoadVMSpec(path string) (*resource.VMSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	return ParseVMSpec(data)
}

// ParseVMSpec parses, normalizes and validates a VM descriptor.
func ParseVMSpec(data []byte) (*resource.VMSpec, error) {
	var d VMDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	d.Normalize()

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}

	spec := d.VMSpec
	return &spec, nil
}
