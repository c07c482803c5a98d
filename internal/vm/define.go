package vm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"

	"github.com/jbweber/anvil/internal/cloudinit"
	anvillibvirt "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/storage"
)

// RunFromXML defines a persistent domain from caller-supplied XML and boots
// it. If the boot fails the definition is removed again.
func (a *Adapter) RunFromXML(ctx context.Context, domainXML string) (resource.Resource, error) {
	if _, err := anvillibvirt.ParseDomainXML(domainXML); err != nil {
		return resource.Resource{}, resource.APIError(err.Error())
	}
	if err := a.ensureConnected(ctx); err != nil {
		return resource.Resource{}, err
	}

	return a.defineAndBoot(ctx, domainXML, nil)
}

// RunFromSpec defines and boots a domain from a descriptor.
//
// This orchestrates:
//  1. Validate the descriptor and check the name is free
//  2. Create {name}.qcow2 if DiskBytes is set and it does not exist yet
//  3. Build and upload the cloud-init seed ISO (if configured)
//  4. Generate domain XML, define, boot
//
// On any failure, resources created by this call are removed again.
func (a *Adapter) RunFromSpec(ctx context.Context, spec resource.VMSpec) (resource.Resource, error) {
	domSpec := &anvillibvirt.DomainSpec{
		Name:        spec.Name,
		MemoryKiB:   spec.MemoryKiB,
		VCPUs:       spec.VCPUs,
		SourceISO:   a.isoPath(spec.SourceISO),
		StoragePool: a.store.Pool(),
		Network:     spec.Network,
	}
	if domSpec.Network == "" {
		domSpec.Network = a.network
	}
	if err := domSpec.Validate(); err != nil {
		return resource.Resource{}, resource.ArgumentNotFound(err.Error())
	}

	var seed *cloudinit.Seed
	if spec.CloudInit != nil {
		var err error
		if seed, err = cloudinit.NewSeed(spec.Name, spec.CloudInit); err != nil {
			return resource.Resource{}, resource.ArgumentNotFound(err.Error())
		}
	}

	if err := a.ensureConnected(ctx); err != nil {
		return resource.Resource{}, err
	}

	// Step 1: the name must be free
	err := a.do(ctx, "DomainLookupByName", func() error {
		_, lerr := a.lv.DomainLookupByName(spec.Name)
		return lerr
	})
	switch {
	case err == nil:
		return resource.Resource{}, resource.APIError(fmt.Sprintf("domain '%s' already exists", spec.Name))
	case !errors.Is(err, resource.ErrResourceNotFound):
		return resource.Resource{}, err
	}

	// State tracking for cleanup
	var created []string
	var runErr error
	defer func() {
		if runErr != nil {
			a.cleanupVolumes(ctx, created)
		}
	}()

	// Step 2: boot disk
	if spec.DiskBytes > 0 {
		diskName := naming.VolumeName(spec.Name)
		var exists bool
		exists, runErr = call(ctx, a, "StorageVolLookupByName", func() (bool, error) {
			return a.store.VolumeExists(ctx, diskName)
		})
		if runErr != nil {
			return resource.Resource{}, runErr
		}
		if !exists {
			a.logger.Info("creating boot disk", "volume", diskName, "bytes", spec.DiskBytes)
			runErr = a.do(ctx, "StorageVolCreateXML", func() error {
				_, serr := a.store.CreateVolume(ctx, storage.VolumeSpec{
					Name:          diskName,
					Format:        storage.VolumeFormatQCOW2,
					CapacityBytes: spec.DiskBytes,
				})
				return serr
			})
			if runErr != nil {
				return resource.Resource{}, runErr
			}
			created = append(created, diskName)
		}
	}

	// Step 3: cloud-init seed
	if seed != nil {
		var seedVolume string
		seedVolume, runErr = a.writeSeed(ctx, spec.Name, seed)
		if seedVolume != "" {
			created = append(created, seedVolume)
		}
		if runErr != nil {
			return resource.Resource{}, runErr
		}
		domSpec.CloudInitVolume = seedVolume
	}

	// Step 4: define and boot
	var domainXML string
	domainXML, runErr = anvillibvirt.GenerateDomainXML(domSpec)
	if runErr != nil {
		runErr = resource.APIError(runErr.Error())
		return resource.Resource{}, runErr
	}

	var r resource.Resource
	r, runErr = a.defineAndBoot(ctx, domainXML, seed)
	return r, runErr
}

// writeSeed uploads the NoCloud ISO as {name}_cloudinit.iso, replacing a
// stale one. It returns the volume name once the volume exists.
func (a *Adapter) writeSeed(ctx context.Context, name string, seed *cloudinit.Seed) (string, error) {
	iso, err := cloudinit.GenerateISO(seed)
	if err != nil {
		return "", resource.APIError(fmt.Sprintf("failed to generate cloud-init ISO: %v", err))
	}

	volName := naming.VolumeNameCloudInit(name)
	err = a.do(ctx, "StorageVolUpload", func() error {
		exists, err := a.store.VolumeExists(ctx, volName)
		if err != nil {
			return err
		}
		if exists {
			a.logger.Warn("replacing stale cloud-init volume", "volume", volName)
			if err := a.store.DeleteVolume(ctx, volName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	a.logger.Info("writing cloud-init ISO", "volume", volName, "bytes", len(iso))
	err = a.do(ctx, "StorageVolCreateXML", func() error {
		_, err := a.store.CreateVolume(ctx, storage.VolumeSpec{
			Name:          volName,
			Format:        storage.VolumeFormatRaw,
			CapacityBytes: uint64(len(iso)),
		})
		return err
	})
	if err != nil {
		return "", err
	}

	err = a.do(ctx, "StorageVolUpload", func() error {
		return a.store.WriteVolumeData(ctx, volName, iso)
	})
	return volName, err
}

// defineAndBoot defines domainXML and starts it; a domain that fails to boot
// is undefined again. seed only feeds the log line.
func (a *Adapter) defineAndBoot(ctx context.Context, domainXML string, seed *cloudinit.Seed) (resource.Resource, error) {
	dom, err := call(ctx, a, "DomainDefineXML", func() (libvirt.Domain, error) {
		return a.lv.DomainDefineXML(domainXML)
	})
	if err != nil {
		return resource.Resource{}, err
	}

	logAttrs := []any{"domain", dom.Name, "uuid", uuid.UUID(dom.UUID).String()}
	if seed != nil {
		logAttrs = append(logAttrs, "instance_id", seed.InstanceID)
	}
	a.logger.Info("defined domain", logAttrs...)

	err = a.do(ctx, "DomainCreate", func() error {
		return a.lv.DomainCreate(dom)
	})
	if err != nil {
		a.logger.Warn("boot failed, undefining domain", "domain", dom.Name, "error", err)
		if uerr := a.do(ctx, "DomainUndefineFlags", func() error {
			return a.lv.DomainUndefineFlags(dom, libvirt.DomainUndefineNvram)
		}); uerr != nil {
			a.logger.Warn("failed to undefine domain", "domain", dom.Name, "error", uerr)
		}
		return resource.Resource{}, err
	}

	return call(ctx, a, "DomainGetInfo", func() (resource.Resource, error) {
		return a.view(dom)
	})
}

// cleanupVolumes deletes volumes created by a failed RunFromSpec.
//
// This is best-effort: it logs errors but continues trying to clean up
// as much as possible. It never returns an error.
func (a *Adapter) cleanupVolumes(ctx context.Context, volumes []string) {
	for _, name := range volumes {
		err := a.do(ctx, "StorageVolDelete", func() error {
			return a.store.DeleteVolume(ctx, name)
		})
		if err != nil {
			a.logger.Warn("failed to delete volume during cleanup", "volume", name, "error", err)
		}
	}
}

// isoPath resolves a relative installer path against the image directory.
func (a *Adapter) isoPath(p string) string {
	if p == "" || a.imageDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.imageDir, p)
}
