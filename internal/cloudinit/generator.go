// Package cloudinit builds NoCloud seed data for VMs defined from a
// descriptor.
//
// The seed carries user-data and meta-data only. Networking is left to the
// guest's DHCP default, which matches the libvirt "default" network VMs are
// attached to.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/resource"
)

// Seed is everything written into a NoCloud ISO.
type Seed struct {
	InstanceID string
	Hostname   string
	FQDN       string
	SSHKeys    []string
	// RawUserData, when set, is written verbatim instead of the generated
	// #cloud-config document.
	RawUserData string
}

// UserData represents the cloud-config user-data structure.
// This is marshaled to YAML and prefixed with "#cloud-config" header.
type UserData struct {
	Hostname          string   `yaml:"hostname"`
	FQDN              string   `yaml:"fqdn"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
	SSHPasswordAuth   bool     `yaml:"ssh_pwauth"`
	Output            *Output  `yaml:"output,omitempty"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData represents the cloud-init meta-data structure.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NewSeed builds the seed for domain vmName. Every SSH key is parsed so a
// typo fails the request instead of producing an unreachable guest.
//
// The instance-id is a fresh UUID, so cloud-init runs again when a domain is
// recreated under the same name.
func NewSeed(vmName string, spec *resource.CloudInitSpec) (*Seed, error) {
	if vmName == "" {
		return nil, fmt.Errorf("VM name cannot be empty")
	}
	if spec == nil {
		spec = &resource.CloudInitSpec{}
	}

	fqdn := vmName
	if spec.Hostname != "" {
		fqdn = spec.Hostname
	}
	hostname := strings.SplitN(fqdn, ".", 2)[0]

	for i, key := range spec.SSHAuthorizedKeys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return nil, fmt.Errorf("ssh_authorized_keys[%d]: invalid SSH public key: %w", i, err)
		}
	}

	return &Seed{
		InstanceID:  uuid.NewString(),
		Hostname:    hostname,
		FQDN:        fqdn,
		SSHKeys:     spec.SSHAuthorizedKeys,
		RawUserData: spec.UserData,
	}, nil
}

// GenerateUserData generates the user-data content.
//
// Returns the complete user-data file content including the "#cloud-config" header.
func GenerateUserData(seed *Seed) (string, error) {
	if seed == nil {
		return "", fmt.Errorf("seed cannot be nil")
	}
	if seed.RawUserData != "" {
		return seed.RawUserData, nil
	}

	userData := UserData{
		Hostname:          seed.Hostname,
		FQDN:              seed.FQDN,
		SSHAuthorizedKeys: seed.SSHKeys,
		SSHPasswordAuth:   false,
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	// Prepend #cloud-config header (required by cloud-init)
	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData generates the meta-data YAML content.
func GenerateMetaData(seed *Seed) (string, error) {
	if seed == nil {
		return "", fmt.Errorf("seed cannot be nil")
	}

	metaData := MetaData{
		InstanceID:    seed.InstanceID,
		LocalHostname: seed.Hostname,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}
