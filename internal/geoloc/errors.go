package geoloc

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode mirrors the platform's position error codes.
type ErrorCode int

const (
	CodePermissionDenied    ErrorCode = 1
	CodePositionUnavailable ErrorCode = 2
	CodeTimeout             ErrorCode = 3
)

// PositionError is returned by a Geolocator that could not produce a position.
type PositionError struct {
	Code    ErrorCode
	Message string
}

func (e *PositionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("position error %d", e.Code)
}

var ErrUnsupported = errors.New("geolocation is not supported on this device")

// User-facing messages, one per error class.
const (
	MsgUnsupported = "Location detection is not supported on this device. Search for a place instead."
	MsgDenied      = "Location access was denied. Allow location access or search for a place instead."
	MsgTimeout     = "Finding your location took too long. Try again or search for a place."
	MsgUnavailable = "Your location is unavailable right now. Try again or search for a place."
	MsgGeneric     = "Unable to determine your location."
)

// codeOf classifies err, treating an expired attempt deadline as a timeout.
// Zero means unrecognised.
func codeOf(err error) ErrorCode {
	var pe *PositionError
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return 0
}

// retryable errors move the ladder on to its next attempt.
func retryable(err error) bool {
	c := codeOf(err)
	return c == CodeTimeout || c == CodePositionUnavailable
}

// Message picks the user-facing message for a failed request.
func Message(err error) string {
	switch codeOf(err) {
	case CodePermissionDenied:
		return MsgDenied
	case CodeTimeout:
		return MsgTimeout
	case CodePositionUnavailable:
		return MsgUnavailable
	}
	if errors.Is(err, ErrUnsupported) {
		return MsgUnsupported
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return MsgGeneric
}

// failureState is the terminal state a failed request ends in.
func failureState(err error) State {
	switch codeOf(err) {
	case CodePermissionDenied:
		return StatePermissionDenied
	case CodeTimeout:
		return StateTimedOut
	case CodePositionUnavailable:
		return StateUnavailable
	}
	return StateFailed
}
