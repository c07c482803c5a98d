package libvirt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultSocket is the qemu:///system UNIX socket.
	DefaultSocket = "/var/run/libvirt/libvirt-sock"

	// DefaultTimeout bounds the socket dial.
	DefaultTimeout = 5 * time.Second
)

// ErrConnection marks every failure to reach the libvirt daemon. Callers
// match it with errors.Is to tell an unreachable daemon from an API fault.
var ErrConnection = errors.New("libvirt connection failed")

// Client wraps a go-libvirt connection. It is explicitly constructed and
// owned by its caller; there is no process-wide connection.
type Client struct {
	mu         sync.Mutex
	libvirt    *libvirt.Libvirt
	socketPath string
	timeout    time.Duration
	connected  bool
	// session counts successful dials; a reconnect bumps it.
	session    uint64
}

// Connect establishes a connection to the local libvirt daemon.
// It returns a Client that must be closed via Close() when done.
//
// If socketPath is empty, defaults to DefaultSocket (qemu:///system).
// If timeout is zero, defaults to DefaultTimeout.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	c := &Client{
		libvirt:    libvirt.NewWithDialer(dialer),
		socketPath: socketPath,
		timeout:    timeout,
	}
	if err := c.libvirt.Connect(); err != nil {
		return nil, fmt.Errorf("%w: failed to connect to libvirt at %s: %w", ErrConnection, socketPath, err)
	}
	c.connected = true
	c.session = 1

	return c, nil
}

// ConnectWithContext establishes a connection with context support for cancellation.
func ConnectWithContext(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, timeout)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: connection cancelled: %w", ErrConnection, ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Close closes the libvirt connection and releases resources.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.libvirt == nil || !c.connected {
		return nil
	}
	c.connected = false

	if err := c.libvirt.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Libvirt returns the underlying go-libvirt client for direct API access.
// The pointer stays valid across Reconnect.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// SocketPath returns the socket this client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Ping verifies the connection is still alive by calling a simple libvirt API.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("%w: client not connected", ErrConnection)
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("%w: libvirt connection is dead: %w", ErrConnection, err)
	}

	return nil
}

// Reconnect drops the current session, if any, and dials the daemon again on
// the same go-libvirt handle.
func (c *Client) Reconnect() error {
	return c.reconnect(c.currentSession())
}

func (c *Client) currentSession() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// reconnect redials unless seen is stale: a caller that observed a dead
// session must not tear down the one another caller has since rebuilt.
func (c *Client) reconnect(seen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.libvirt == nil {
		return fmt.Errorf("%w: client not initialized", ErrConnection)
	}
	if c.connected && c.session != seen {
		return nil
	}
	if c.connected {
		// The old session is usually already broken; a failed disconnect is expected.
		_ = c.libvirt.Disconnect()
		c.connected = false
	}
	if err := c.libvirt.Connect(); err != nil {
		return fmt.Errorf("%w: failed to reconnect to libvirt at %s: %w", ErrConnection, c.socketPath, err)
	}
	c.connected = true
	c.session++

	return nil
}

// EnsureConnected pings the daemon and reconnects once if the session is
// dead. The check is abandoned when ctx ends; go-libvirt calls cannot be
// cancelled, so a hung daemon only holds the background goroutine.
func (c *Client) EnsureConnected(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seen := c.currentSession()
	errCh := make(chan error, 1)
	go func() {
		if err := c.Ping(); err == nil {
			errCh <- nil
			return
		}
		errCh <- c.reconnect(seen)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: session check abandoned: %w", ErrConnection, ctx.Err())
	case err := <-errCh:
		return err
	}
}
