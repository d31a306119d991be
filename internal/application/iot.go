package application

import (
	"context"
	"io"

	"home-control/internal/domain"
)

// DeviceClient talks to the embedded controller. Every call is bounded by
// the client's own timeout; failures come back as errors wrapping
// domain.ErrDeviceUnreachable or domain.ErrDeviceRejected.
type DeviceClient interface {
	Probe(ctx context.Context, address string, checkInterval int) error
	Control(ctx context.Context, address string, cmd domain.ControlCommand) (string, error)
	UploadFirmware(ctx context.Context, address, filename string, firmware io.Reader) (string, error)
}

type SettingsStore interface {
	UserIDs(ctx context.Context) ([]int64, error)
	GetSettings(ctx context.Context, userID int64) (domain.UserSettings, error)
	// UpdateSettings applies fn to the stored record and persists the result
	// as one atomic read-modify-write.
	UpdateSettings(ctx context.Context, userID int64, fn func(*domain.UserSettings) error) (domain.UserSettings, error)
}

type LightStore interface {
	FindLight(ctx context.Context, owner int64, room, light string) (domain.Light, error)
	SetLightState(ctx context.Context, owner int64, room, light string, state domain.LightState) error
	ListLights(ctx context.Context, owner int64) ([]domain.Light, error)
}

// SessionTracker answers whether anybody is currently using the hub.
type SessionTracker interface {
	AnyActive() bool
}
