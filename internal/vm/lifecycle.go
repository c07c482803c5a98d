package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
)

// Start boots a stopped or saved domain, or resumes a paused one. Booting a
// domain with a managed-save image restores it. A guest suspended by its own
// power management is woken instead of resumed.
func (a *Adapter) Start(ctx context.Context, r resource.Resource) error {
	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return err
	}

	if r.State == resource.StatePaused {
		state, err := call(ctx, a, "DomainGetState", func() (int32, error) {
			state, _, err := a.lv.DomainGetState(dom, 0)
			return state, err
		})
		if err != nil {
			return err
		}
		if libvirt.DomainState(state) == libvirt.DomainPmsuspended {
			a.logger.Info("waking domain", "domain", dom.Name)
			return a.do(ctx, "DomainPmWakeup", func() error {
				return a.lv.DomainPmWakeup(dom, 0)
			})
		}

		a.logger.Info("resuming domain", "domain", dom.Name)
		return a.do(ctx, "DomainResume", func() error {
			return a.lv.DomainResume(dom)
		})
	}

	a.logger.Info("starting domain", "domain", dom.Name)
	return a.do(ctx, "DomainCreate", func() error {
		return a.lv.DomainCreate(dom)
	})
}

// Stop suspends a running domain; memory stays allocated.
func (a *Adapter) Stop(ctx context.Context, r resource.Resource) error {
	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return err
	}

	a.logger.Info("suspending domain", "domain", dom.Name)
	return a.do(ctx, "DomainSuspend", func() error {
		return a.lv.DomainSuspend(dom)
	})
}

// Restart asks the guest to reboot.
func (a *Adapter) Restart(ctx context.Context, r resource.Resource) error {
	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return err
	}

	a.logger.Info("rebooting domain", "domain", dom.Name)
	return a.do(ctx, "DomainReboot", func() error {
		return a.lv.DomainReboot(dom, 0)
	})
}

// Shutdown brings a running domain down: managed save, hard destroy, or an
// ACPI shutdown request, in that order of precedence.
func (a *Adapter) Shutdown(ctx context.Context, r resource.Resource, opts resource.ShutdownOptions) error {
	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return err
	}

	switch {
	case opts.Save:
		a.logger.Info("saving domain", "domain", dom.Name)
		return a.do(ctx, "DomainManagedSave", func() error {
			return a.lv.DomainManagedSave(dom, 0)
		})
	case opts.Force:
		a.logger.Info("destroying domain", "domain", dom.Name)
		return a.do(ctx, "DomainDestroy", func() error {
			return a.lv.DomainDestroy(dom)
		})
	default:
		a.logger.Info("shutting down domain", "domain", dom.Name)
		return a.do(ctx, "DomainShutdown", func() error {
			return a.lv.DomainShutdown(dom)
		})
	}
}

// Remove undefines an inactive domain together with its managed-save image
// and NVRAM. A cloud-init seed volume left from RunFromSpec is deleted too;
// the boot disk is only deleted through DeleteVolume.
func (a *Adapter) Remove(ctx context.Context, r resource.Resource, _ resource.RemoveOptions) error {
	dom, err := a.domain(ctx, r.ID)
	if err != nil {
		return err
	}

	a.logger.Info("undefining domain", "domain", dom.Name)
	err = a.do(ctx, "DomainUndefineFlags", func() error {
		return a.lv.DomainUndefineFlags(dom, libvirt.DomainUndefineManagedSave|libvirt.DomainUndefineNvram)
	})
	if err != nil {
		return err
	}

	if a.store != nil {
		seed := naming.VolumeNameCloudInit(dom.Name)
		exists, err := a.store.VolumeExists(ctx, seed)
		if err != nil {
			a.logger.Warn("failed to check cloud-init volume", "volume", seed, "error", err)
		} else if exists {
			if err := a.store.DeleteVolume(ctx, seed); err != nil {
				a.logger.Warn("failed to delete cloud-init volume", "volume", seed, "error", err)
			}
		}
	}

	return nil
}
