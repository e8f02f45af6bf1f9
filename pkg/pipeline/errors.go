package pipeline

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is matched by every ModelUnavailableError
var ErrModelUnavailable = errors.New("model is not available")

// ErrInvalidFrameRate is returned for a video whose frame rate rounds to zero
var ErrInvalidFrameRate = errors.New("invalid frame rate")

// ModelUnavailableError means that a model failed to load at startup.
// This persists until the process is restarted with a working model config.
type ModelUnavailableError struct {
	Model string // eg "CNN"
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("%v model is not available.", e.Model)
}

func (e *ModelUnavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}

// InferenceError is a failure inside the model runtime
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("Inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
