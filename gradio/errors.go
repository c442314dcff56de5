package gradio

import (
	"errors"
	"fmt"
)

var (
	// ErrConnect covers every failure to reach the Space: host resolution, config fetch
	// and transport errors on later calls.
	ErrConnect       = errors.New("gradio: cannot reach space")
	ErrRouteNotFound = errors.New("gradio: route not found")
	ErrProtocol      = errors.New("gradio: unexpected response")
)

// RemoteError is returned when the Space answered but reported a failure.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gradio: remote error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gradio: remote error: %s", e.Message)
}

func connectError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnect, step, err)
}
