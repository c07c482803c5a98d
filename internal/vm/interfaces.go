package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/storage"
)

// libvirtClient defines the libvirt operations needed for VM management.
// This wraps operations from *libvirt.Libvirt to allow for testing.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) (rDomains []libvirt.Domain, rRet uint32, err error)
	DomainLookupByUUID(UUID libvirt.UUID) (libvirt.Domain, error)
	DomainLookupByName(Name string) (libvirt.Domain, error)

	DomainGetState(Dom libvirt.Domain, Flags uint32) (rState int32, rReason int32, err error)
	DomainGetInfo(Dom libvirt.Domain) (rState uint8, rMaxMem uint64, rMemory uint64, rNrVirtCPU uint16, rCPUTime uint64, err error)
	DomainIsPersistent(Dom libvirt.Domain) (int32, error)
	DomainHasManagedSaveImage(Dom libvirt.Domain, Flags uint32) (int32, error)
	DomainGetOsType(Dom libvirt.Domain) (string, error)
	DomainHasCurrentSnapshot(Dom libvirt.Domain, Flags uint32) (int32, error)

	DomainDefineXML(XML string) (libvirt.Domain, error)
	DomainCreate(Dom libvirt.Domain) error
	DomainSuspend(Dom libvirt.Domain) error
	DomainResume(Dom libvirt.Domain) error
	DomainPmWakeup(Dom libvirt.Domain, Flags uint32) error
	DomainReboot(Dom libvirt.Domain, Flags libvirt.DomainRebootFlagValues) error
	DomainShutdown(Dom libvirt.Domain) error
	DomainDestroy(Dom libvirt.Domain) error
	DomainManagedSave(Dom libvirt.Domain, Flags uint32) error
	DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error

	DomainSnapshotCreateXML(Dom libvirt.Domain, XMLDesc string, Flags uint32) (libvirt.DomainSnapshot, error)
	DomainListAllSnapshots(Dom libvirt.Domain, NeedResults int32, Flags uint32) ([]libvirt.DomainSnapshot, int32, error)
	DomainSnapshotLookupByName(Dom libvirt.Domain, Name string, Flags uint32) (libvirt.DomainSnapshot, error)
	DomainSnapshotGetXMLDesc(Snap libvirt.DomainSnapshot, Flags uint32) (string, error)
	DomainSnapshotIsCurrent(Snap libvirt.DomainSnapshot, Flags uint32) (int32, error)
	DomainSnapshotDelete(Snap libvirt.DomainSnapshot, Flags libvirt.DomainSnapshotDeleteFlags) error
	DomainRevertToSnapshot(Snap libvirt.DomainSnapshot, Flags uint32) error
	DomainSnapshotNum(Dom libvirt.Domain, Flags uint32) (int32, error)
}

// volumeStore defines the storage operations needed for VM management.
//
// In production, this is satisfied by *storage.Manager.
// In tests, this is satisfied by mock implementations.
type volumeStore interface {
	Pool() string
	CreateVolume(ctx context.Context, spec storage.VolumeSpec) (*storage.VolumeInfo, error)
	DeleteVolume(ctx context.Context, volumeName string) error
	LookupVolume(ctx context.Context, volumeName string) (*storage.VolumeInfo, error)
	ListVolumes(ctx context.Context) ([]storage.VolumeInfo, error)
	RefreshPool(ctx context.Context) error
	VolumeExists(ctx context.Context, volumeName string) (bool, error)
	WriteVolumeData(ctx context.Context, volumeName string, data []byte) error
}

// connectionGuard re-establishes a dead daemon session before an operation.
// Satisfied by *anvil/internal/libvirt.Client.
type connectionGuard interface {
	EnsureConnected(ctx context.Context) error
}
