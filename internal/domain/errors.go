package domain

import "errors"

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrSettingsNotFound    = errors.New("user settings not found")
	ErrDeviceNotConfigured = errors.New("device not configured")
	ErrUnknownAttribute    = errors.New("unknown attribute")
	ErrDeviceUnreachable   = errors.New("device unreachable")
	ErrDeviceRejected      = errors.New("device rejected request")
	ErrBusy                = errors.New("busy")
	ErrNoArtifact          = errors.New("no artifact provided")
)

// IsConfigError reports whether err is something the user can fix in their
// settings or data rather than a transport failure.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSettingsNotFound) ||
		errors.Is(err, ErrDeviceNotConfigured) ||
		errors.Is(err, ErrUnknownAttribute)
}

func IsTransportError(err error) bool {
	return errors.Is(err, ErrDeviceUnreachable) || errors.Is(err, ErrDeviceRejected)
}
