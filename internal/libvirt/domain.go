package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/anvil/internal/naming"
)

const (
	// BaseStoragePath is the default base path for VM storage
	BaseStoragePath = "/var/lib/libvirt/images"

	// DefaultStoragePool is the pool holding VM backing volumes.
	DefaultStoragePool = "default"

	// DefaultNetwork is the libvirt network new VMs attach to.
	DefaultNetwork = "default"
)

// DomainSpec is the descriptor a VM is defined from.
type DomainSpec struct {
	Name      string `json:"name" yaml:"name"`
	MemoryKiB uint64 `json:"memory" yaml:"memory"`
	VCPUs     uint   `json:"vcpu" yaml:"vcpu"`
	// SourceISO is an installer image attached as a cdrom (optional).
	SourceISO string `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	// StoragePool holds the boot volume {name}.qcow2 (default: "default").
	StoragePool string `json:"storage_pool,omitempty" yaml:"storage_pool,omitempty"`
	// Network is the libvirt network for the NIC (default: "default").
	Network string `json:"network,omitempty" yaml:"network,omitempty"`
	// CloudInitVolume, when set, is attached read-only as a second cdrom.
	CloudInitVolume string `json:"-" yaml:"-"`
}

// Validate checks the descriptor for errors before XML is generated.
func (s *DomainSpec) Validate() error {
	if err := naming.ValidateDomainName(s.Name); err != nil {
		return err
	}
	if s.MemoryKiB == 0 {
		return fmt.Errorf("memory must be > 0")
	}
	if s.VCPUs == 0 {
		return fmt.Errorf("vcpu must be > 0")
	}
	return nil
}

// GetStoragePool returns the storage pool name, using default if not set.
func (s *DomainSpec) GetStoragePool() string {
	if s.StoragePool == "" {
		return DefaultStoragePool
	}
	return s.StoragePool
}

// GetNetwork returns the network name, using default if not set.
func (s *DomainSpec) GetNetwork() string {
	if s.Network == "" {
		return DefaultNetwork
	}
	return s.Network
}

// GenerateDomainXML generates libvirt domain XML from a DomainSpec.
//
// The boot disk is the volume naming.VolumeName(spec.Name) in the DomainSpec's
// storage pool; it is expected to exist (see CreateVolume).
func GenerateDomainXML(spec *DomainSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid domain spec: %w", err)
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: spec.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(spec.MemoryKiB),
			Unit:  "KiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     spec.VCPUs,
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Type: "hvm",
			},
			BootDevices: []libvirtxml.DomainBootDevice{
				{Dev: "hd"},
				{Dev: "cdrom"},
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "destroy",
		Devices: &libvirtxml.DomainDeviceList{
			Inputs: []libvirtxml.DomainInput{
				{Type: "mouse", Bus: "ps2"},
			},
			Graphics: []libvirtxml.DomainGraphic{
				{
					VNC: &libvirtxml.DomainGraphicVNC{
						Port:     -1,
						AutoPort: "yes",
						Listen:   "127.0.0.1",
					},
				},
			},
		},
	}

	// Boot disk (volume-based)
	bootDisk := libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: "qcow2",
		},
		Source: &libvirtxml.DomainDiskSource{
			Volume: &libvirtxml.DomainDiskSourceVolume{
				Pool:   spec.GetStoragePool(),
				Volume: naming.VolumeName(spec.Name),
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: "vda",
			Bus: "virtio",
		},
	}
	domain.Devices.Disks = append(domain.Devices.Disks, bootDisk)

	// Installer ISO (file-based)
	if spec.SourceISO != "" {
		cdrom := libvirtxml.DomainDisk{
			Device: "cdrom",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: "raw",
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{
					File: spec.SourceISO,
				},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: "hda",
				Bus: "ide",
			},
			ReadOnly: &libvirtxml.DomainDiskReadOnly{},
		}
		domain.Devices.Disks = append(domain.Devices.Disks, cdrom)
	}

	// Cloud-init seed ISO (volume-based)
	if spec.CloudInitVolume != "" {
		seed := libvirtxml.DomainDisk{
			Device: "cdrom",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: "raw",
			},
			Source: &libvirtxml.DomainDiskSource{
				Volume: &libvirtxml.DomainDiskSourceVolume{
					Pool:   spec.GetStoragePool(),
					Volume: spec.CloudInitVolume,
				},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: "sda",
				Bus: "sata",
			},
			ReadOnly: &libvirtxml.DomainDiskReadOnly{},
		}
		domain.Devices.Disks = append(domain.Devices.Disks, seed)
	}

	domain.Devices.Interfaces = []libvirtxml.DomainInterface{
		{
			Source: &libvirtxml.DomainInterfaceSource{
				Network: &libvirtxml.DomainInterfaceSourceNetwork{
					Network: spec.GetNetwork(),
				},
			},
			Model: &libvirtxml.DomainInterfaceModel{
				Type: "virtio",
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}

// ParseDomainXML parses a caller-supplied domain descriptor. It is used to
// reject malformed XML before it reaches the daemon and to learn the name.
func ParseDomainXML(xml string) (*libvirtxml.Domain, error) {
	domain := &libvirtxml.Domain{}
	if err := domain.Unmarshal(xml); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	if domain.Name == "" {
		return nil, fmt.Errorf("domain XML is missing <name>")
	}
	return domain, nil
}
