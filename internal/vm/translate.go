package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/digitalocean/go-libvirt"

	anvillibvirt "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/resource"
)

// translate maps a libvirt failure onto the resource taxonomy. Taxonomy
// errors pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var rerr *resource.Error
	if errors.As(err, &rerr) {
		return rerr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return resource.APIError(fmt.Sprintf("libvirt call timed out: %v", err))
	}

	var lerr libvirt.Error
	if errors.As(err, &lerr) {
		switch lerr.Code {
		case uint32(libvirt.ErrNoDomain),
			uint32(libvirt.ErrNoDomainSnapshot),
			uint32(libvirt.ErrNoStorageVol),
			uint32(libvirt.ErrNoStoragePool):
			nf := resource.NotFound()
			nf.Detail = lerr.Message
			return nf
		default:
			return resource.APIError(lerr.Message)
		}
	}

	if isTransportError(err) {
		return resource.ConnectionFailed(err.Error())
	}

	return resource.APIError(err.Error())
}

// isTransportError reports failures of the RPC socket itself.
func isTransportError(err error) bool {
	if errors.Is(err, anvillibvirt.ErrConnection) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// do runs fn bounded by the adapter's per-call timeout. go-libvirt calls do
// not take a context, so fn runs in its own goroutine and is abandoned on
// timeout; the daemon may still complete it.
func (a *Adapter) do(ctx context.Context, op string, fn func() error) error {
	_, err := call(ctx, a, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// call is do for operations that produce a value. The value travels with the
// error over the result channel, so an abandoned fn never shares memory with
// the caller. On failure the zero value is returned.
func call[T any](ctx context.Context, a *Adapter, op string, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		val, err := fn()
		resultCh <- outcome{val: val, err: err}
	}()

	var zero T
	select {
	case <-ctx.Done():
		a.logger.Warn("libvirt call abandoned", "op", op, "error", ctx.Err())
		return zero, resource.APIError(fmt.Sprintf("%s timed out after %s", op, a.timeout))
	case res := <-resultCh:
		if res.err != nil {
			return zero, translate(res.err)
		}
		return res.val, nil
	}
}
