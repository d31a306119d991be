package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"home-control/internal/domain"
)

const (
	ToggleOK           = "ok"
	ToggleConfigError  = "config_error"
	ToggleDeviceError  = "device_error"
	ToggleBusy         = "busy"
	ToggleStorageError = "storage_error"
)

// ControlService switches lights on the user's device and records the new
// state only once the device has acknowledged it.
type ControlService struct {
	lights   LightStore
	settings SettingsStore
	device   DeviceClient
	metrics  Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[domain.LightKey]struct{}
}

func NewControlService(lights LightStore, settings SettingsStore, device DeviceClient, metrics Metrics, logger *slog.Logger) *ControlService {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &ControlService{
		lights:   lights,
		settings: settings,
		device:   device,
		metrics:  metrics,
		logger:   logger,
		inFlight: make(map[domain.LightKey]struct{}),
	}
}

// Toggle flips one light. A second toggle for the same light while the
// first is still talking to the device fails with domain.ErrBusy.
func (s *ControlService) Toggle(ctx context.Context, owner int64, room, light string) (domain.ToggleResult, error) {
	result, err := s.toggle(ctx, owner, room, light)
	s.metrics.ToggleCompleted(toggleOutcome(err))
	return result, err
}

func (s *ControlService) toggle(ctx context.Context, owner int64, room, light string) (domain.ToggleResult, error) {
	key := domain.LightKey{Owner: owner, Room: room, Name: light}
	if !s.acquire(key) {
		return domain.ToggleResult{}, fmt.Errorf("toggling %s/%s: %w", room, light, domain.ErrBusy)
	}
	defer s.release(key)

	current, err := s.lights.FindLight(ctx, owner, room, light)
	if err != nil {
		return domain.ToggleResult{}, fmt.Errorf("finding light: %w", err)
	}

	settings, err := s.settings.GetSettings(ctx, owner)
	if err != nil {
		return domain.ToggleResult{State: current.State}, fmt.Errorf("reading settings: %w", err)
	}
	cfg := settings.DeviceConfig()
	if !cfg.Configured() {
		return domain.ToggleResult{State: current.State}, domain.ErrDeviceNotConfigured
	}

	action := domain.ToggleAction(current.State)

	if err := s.device.Probe(ctx, cfg.Address, 0); err != nil {
		s.logger.Warn("device unreachable, light left unchanged",
			"user_id", owner, "room", room, "light", light, "error", err)
		return domain.ToggleResult{State: current.State}, fmt.Errorf("checking device: %w", err)
	}

	resp, err := s.device.Control(ctx, cfg.Address, domain.ControlCommand{
		Room:   room,
		Light:  light,
		Action: action,
	})
	if err != nil {
		s.logger.Warn("device refused control command",
			"user_id", owner, "room", room, "light", light, "action", action, "error", err)
		return domain.ToggleResult{State: current.State, DeviceResponse: resp}, fmt.Errorf("sending control command: %w", err)
	}

	next := action.ResultingState()
	if err := s.lights.SetLightState(ctx, owner, room, light, next); err != nil {
		return domain.ToggleResult{State: current.State, DeviceResponse: resp}, fmt.Errorf("saving light state: %w", err)
	}

	s.logger.Info("light toggled", "user_id", owner, "room", room, "light", light, "state", next)
	return domain.ToggleResult{State: next, DeviceResponse: resp}, nil
}

func (s *ControlService) acquire(key domain.LightKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *ControlService) release(key domain.LightKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

func toggleOutcome(err error) string {
	switch {
	case err == nil:
		return ToggleOK
	case errors.Is(err, domain.ErrBusy):
		return ToggleBusy
	case domain.IsConfigError(err):
		return ToggleConfigError
	case domain.IsTransportError(err):
		return ToggleDeviceError
	default:
		return ToggleStorageError
	}
}
