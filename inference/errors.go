package inference

import (
	"errors"
	"fmt"

	"github.com/Tutortoise/ovaquick/gradio"
)

type Kind int

const (
	KindConnection Kind = iota + 1
	KindRemoteCall
	// KindUnexpectedShape is part of the taxonomy but never returned: unknown response
	// shapes surface as models.ShapeUnrecognized on the result instead.
	KindUnexpectedShape
)

var (
	ErrConnection      = errors.New("inference: cannot reach model service")
	ErrRemoteCall      = errors.New("inference: model service call failed")
	ErrUnexpectedShape = errors.New("inference: unexpected response shape")
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection_error"
	case KindRemoteCall:
		return "remote_error"
	case KindUnexpectedShape:
		return "unexpected_shape"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindRemoteCall:
		return ErrRemoteCall
	case KindUnexpectedShape:
		return ErrUnexpectedShape
	default:
		return nil
	}
}

// InferenceError is the single error type Predict returns. Cause keeps the transport error.
type InferenceError struct {
	Op    string
	Kind  Kind
	Cause error
}

func (e *InferenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *InferenceError) Unwrap() error {
	return e.Cause
}

func (e *InferenceError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf reports the kind of an error returned by Predict, or 0 when err is not one.
func KindOf(err error) Kind {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return 0
}

func classify(op string, err error) *InferenceError {
	kind := KindRemoteCall
	if errors.Is(err, gradio.ErrConnect) {
		kind = KindConnection
	}
	return &InferenceError{Op: op, Kind: kind, Cause: err}
}
