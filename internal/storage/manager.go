package storage

import (
	"errors"
	"io"
	"log/slog"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the interface for libvirt operations.
// This allows for dependency injection and testing.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolGetInfo(Pool libvirt.StoragePool) (rState uint8, rCapacity uint64, rAllocation uint64, rAvailable uint64, err error)
	StoragePoolGetXMLDesc(Pool libvirt.StoragePool, Flags libvirt.StorageXMLFlags) (string, error)
	StoragePoolListAllVolumes(Pool libvirt.StoragePool, NeedResults int32, Flags uint32) ([]libvirt.StorageVol, uint32, error)
	StoragePoolRefresh(Pool libvirt.StoragePool, Flags uint32) error
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolGetInfo(Vol libvirt.StorageVol) (rType int8, rCapacity uint64, rAllocation uint64, err error)
	StorageVolUpload(Vol libvirt.StorageVol, outStream io.Reader, Offset uint64, Length uint64, Flags libvirt.StorageVolUploadFlags) error
}

// Manager owns the volumes of one storage pool, the pool VM disks
// ({domain}.qcow2) and cloud-init seeds are created in.
type Manager struct {
	client LibvirtClient
	pool   string
	owner  Owner
	logger *slog.Logger
}

// NewManager creates a storage manager for poolName (DefaultPool if empty).
func NewManager(client LibvirtClient, poolName string, logger *slog.Logger) *Manager {
	if poolName == "" {
		poolName = DefaultPool
	}
	if logger == nil {
		logger = slog.Default()
	}

	owner, err := QEMUOwner()
	if err != nil {
		logger.Warn("failed to detect qemu user", "error", err, "uid", owner.UID, "gid", owner.GID)
	}

	return &Manager{
		client: client,
		pool:   poolName,
		owner:  owner,
		logger: logger.With("component", "storage", "pool", poolName),
	}
}

// Pool returns the name of the managed pool.
func (m *Manager) Pool() string {
	return m.pool
}

// hasErrorCode reports whether err wraps a libvirt error with the given code.
func hasErrorCode(err error, code uint32) bool {
	var lerr libvirt.Error
	if errors.As(err, &lerr) {
		return lerr.Code == code
	}
	return false
}

// IsPoolNotFound reports whether err is libvirt's "no storage pool".
func IsPoolNotFound(err error) bool {
	return hasErrorCode(err, uint32(libvirt.ErrNoStoragePool))
}

// IsVolumeNotFound reports whether err is libvirt's "no storage vol".
func IsVolumeNotFound(err error) bool {
	return hasErrorCode(err, uint32(libvirt.ErrNoStorageVol))
}
