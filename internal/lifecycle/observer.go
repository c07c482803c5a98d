package lifecycle

import (
	"time"

	"github.com/jbweber/anvil/internal/resource"
)

// Observer receives one event per completed controller operation. kind is
// empty when the operation failed before a resource was resolved.
//
// Satisfied by *metrics.Recorder.
type Observer interface {
	ObserveOperation(op string, kind resource.Kind, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, resource.Kind, error, time.Duration) {}
