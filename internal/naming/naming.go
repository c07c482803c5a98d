// Package naming provides the deterministic naming conventions anvil relies on
// to tie backend objects together: VM backing volumes are found by domain
// name, container ids are shortened the way the Docker CLI does.
package naming

import (
	"fmt"
	"regexp"
)

// shortIDLength matches the Docker CLI short id.
const shortIDLength = 12

var domainNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// VolumeName returns the backing volume name for a VM domain.
// Format: {domainName}.qcow2
//
// The volume is located by this name only, so it must be resolved while the
// domain is still defined.
func VolumeName(domainName string) string {
	return fmt.Sprintf("%s.qcow2", domainName)
}

// VolumeNameCloudInit returns the volume name for a VM's cloud-init seed ISO.
// Format: {domainName}_cloudinit.iso
func VolumeNameCloudInit(domainName string) string {
	return fmt.Sprintf("%s_cloudinit.iso", domainName)
}

// ShortID truncates a full container id to the 12 character short form.
func ShortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// ValidateDomainName checks a VM name against what libvirt and the volume
// naming convention accept.
func ValidateDomainName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("name must be at most 64 characters, got %d", len(name))
	}
	if !domainNamePattern.MatchString(name) {
		return fmt.Errorf("name must start with an alphanumeric character and contain only alphanumerics, '.', '_' or '-', got %q", name)
	}
	return nil
}
