// Package libvirt provides a client wrapper for interacting with libvirt.
//
// This package wraps github.com/digitalocean/go-libvirt to provide:
//   - Connection management (connect, reconnect, disconnect, ping)
//   - Domain XML generation from a DomainSpec descriptor
//   - Snapshot XML generation and parsing
//
// Connection Management:
//
// The package establishes connections to the local libvirt daemon via Unix socket:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Every connection failure wraps ErrConnection, so the VM adapter can report
// an unreachable daemon as a typed error instead of an opaque API fault.
// EnsureConnected reconnects once when the session has died (for example
// after libvirtd restarted); the *libvirt.Libvirt handle stays the same, so
// consumers holding it keep working.
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces. Consumers (internal/vm,
// internal/storage) define their own LibvirtClient interfaces specifying only
// the operations they need. The *libvirt.Libvirt type satisfies these
// interfaces implicitly.
package libvirt
