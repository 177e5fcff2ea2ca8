package classifier

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNotReady is returned by Classify before the first successful Reconfigure.
	ErrNotReady = errors.New("classifier: not configured")

	// ErrUnknownDevice is returned for an unrecognized device name.
	ErrUnknownDevice = errors.New("classifier: unknown device")

	// ErrInvalidInput is returned when the pixel buffer does not match the stated geometry.
	ErrInvalidInput = errors.New("classifier: invalid input")
)

// DeviceError wraps a backend failure with the device it happened on.
type DeviceError struct {
	Device Device
	Err    error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("classifier [%s]: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with device context.
func WrapError(device Device, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Device: device, Err: err}
}
