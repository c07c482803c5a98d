// Package vm adapts libvirt domains to the uniform resource lifecycle.
//
// Domains are addressed by UUID. Every operation looks the domain up again
// and projects a fresh resource.Resource from the daemon, so callers never
// act on stale state.
//
// Verb mapping:
//   - Start: DomainCreate, or DomainResume for a paused domain. A domain with a
//     managed-save image is restored by DomainCreate.
//   - Stop: DomainSuspend (memory stays allocated)
//   - Restart: DomainReboot
//   - Shutdown: DomainManagedSave (save), DomainDestroy (force) or
//     DomainShutdown
//   - Remove: DomainUndefineFlags with managed-save and NVRAM cleanup
//
// Every libvirt call is bounded by Options.Timeout and its failure is
// translated into a *resource.Error before it is returned.
//
// RunFromSpec creates the boot disk and cloud-init seed it needs and removes
// them again if a later step fails. Cleanup errors are logged but do not
// replace the original error.
package vm
