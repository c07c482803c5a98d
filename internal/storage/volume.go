package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// CreateVolume creates a new volume in the managed pool.
func (m *Manager) CreateVolume(ctx context.Context, spec VolumeSpec) (*VolumeInfo, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid volume spec: %w", err)
	}

	pool, err := m.client.StoragePoolLookupByName(m.pool)
	if err != nil {
		return nil, fmt.Errorf("pool %s not found: %w", m.pool, err)
	}

	volumeXML, err := generateVolumeXML(spec, m.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to generate volume XML: %w", err)
	}

	vol, err := m.client.StorageVolCreateXML(pool, volumeXML, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create volume %s: %w", spec.Name, err)
	}
	m.logger.Info("created volume", "volume", spec.Name, "capacity", spec.CapacityBytes)

	return m.volumeInfo(vol)
}

// DeleteVolume deletes a volume from the managed pool.
func (m *Manager) DeleteVolume(ctx context.Context, volumeName string) error {
	vol, err := m.lookup(volumeName)
	if err != nil {
		return err
	}

	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume %s: %w", volumeName, err)
	}
	m.logger.Info("deleted volume", "volume", volumeName)

	return nil
}

// LookupVolume returns path and sizes of a single volume.
func (m *Manager) LookupVolume(ctx context.Context, volumeName string) (*VolumeInfo, error) {
	vol, err := m.lookup(volumeName)
	if err != nil {
		return nil, err
	}
	return m.volumeInfo(vol)
}

// ListVolumes lists all volumes in the managed pool.
func (m *Manager) ListVolumes(ctx context.Context) ([]VolumeInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(m.pool)
	if err != nil {
		return nil, fmt.Errorf("pool %s not found: %w", m.pool, err)
	}

	volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	volumeInfos := make([]VolumeInfo, 0, len(volumes))
	for _, vol := range volumes {
		info, err := m.volumeInfo(vol)
		if err != nil {
			// Deleted between list and lookup, or unreadable; skip it
			m.logger.Warn("failed to inspect volume", "volume", vol.Name, "error", err)
			continue
		}
		volumeInfos = append(volumeInfos, *info)
	}

	return volumeInfos, nil
}

// WriteVolumeData uploads data to a volume (used for cloud-init ISOs).
func (m *Manager) WriteVolumeData(ctx context.Context, volumeName string, data []byte) error {
	vol, err := m.lookup(volumeName)
	if err != nil {
		return err
	}

	reader := bytes.NewReader(data)
	if err := m.client.StorageVolUpload(vol, reader, 0, uint64(len(data)), 0); err != nil {
		return fmt.Errorf("failed to upload data to volume %s: %w", volumeName, err)
	}

	return nil
}

// VolumeExists checks if a volume exists in the managed pool. Lookup
// failures other than "no such volume" are returned.
func (m *Manager) VolumeExists(ctx context.Context, volumeName string) (bool, error) {
	_, err := m.lookup(volumeName)
	if err == nil {
		return true, nil
	}
	if IsVolumeNotFound(err) {
		return false, nil
	}
	return false, err
}

func (m *Manager) lookup(volumeName string) (libvirt.StorageVol, error) {
	pool, err := m.client.StoragePoolLookupByName(m.pool)
	if err != nil {
		return libvirt.StorageVol{}, fmt.Errorf("pool %s not found: %w", m.pool, err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return libvirt.StorageVol{}, fmt.Errorf("volume %s not found: %w", volumeName, err)
	}
	return vol, nil
}

func (m *Manager) volumeInfo(vol libvirt.StorageVol) (*VolumeInfo, error) {
	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return nil, fmt.Errorf("failed to get volume path: %w", err)
	}

	_, capacity, allocation, err := m.client.StorageVolGetInfo(vol)
	if err != nil {
		return nil, fmt.Errorf("failed to get volume info: %w", err)
	}

	return &VolumeInfo{
		Name:       vol.Name,
		Path:       path,
		Pool:       m.pool,
		Capacity:   capacity,
		Allocation: allocation,
	}, nil
}

// generateVolumeXML generates XML for a file-backed storage volume.
func generateVolumeXML(spec VolumeSpec, owner Owner) (string, error) {
	vol := &libvirtxml.StorageVolume{
		Type: "file",
		Name: spec.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: spec.CapacityBytes,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(spec.Format),
			},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Owner: owner.UID,
				Group: owner.GID,
				Mode:  "0644",
			},
		},
	}

	xml, err := vol.Marshal()
	if err != nil {
		return "", err
	}

	xml = strings.TrimPrefix(xml, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>")
	return strings.TrimSpace(xml), nil
}
