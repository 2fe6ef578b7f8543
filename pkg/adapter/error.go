package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("adapter error (status=%d)", e.Status)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ModelUnavailableError reports that a provider could not produce a
// completion: unreachable endpoint, rejected credentials, unknown model or an
// error response.
type ModelUnavailableError struct {
	Adapter string
	Model   string
	Err     error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %s/%s unavailable: %v", e.Adapter, e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// ToolLoopError wraps a failure raised while running the tool calls of a
// completion. It is never transient, whatever the tool's own error says.
type ToolLoopError struct {
	Err error
}

func (e *ToolLoopError) Error() string {
	return e.Err.Error()
}

func (e *ToolLoopError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var loopErr *ToolLoopError
	if errors.As(err, &loopErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.Temporary {
			return true
		}
		if adapterErr.Status == 429 || (adapterErr.Status >= 500 && adapterErr.Status <= 599) {
			return true
		}
	}
	return false
}

// unavailable wraps a provider failure. status is the HTTP status reported by
// the SDK, or 0 when none is known.
func unavailable(adapterName, model string, status int, err error) error {
	if err == nil {
		return nil
	}
	if status != 0 {
		err = &AdapterError{Status: status, Err: err}
	}
	return &ModelUnavailableError{Adapter: adapterName, Model: model, Err: err}
}
