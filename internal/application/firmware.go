package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"home-control/internal/domain"
)

const (
	FirmwareStepReceive = "receive"
	FirmwareStepPush    = "push"
)

// FirmwareStage is the single slot an uploaded binary waits in before it is
// forwarded to a device. Store must not replace the slot with an empty
// artifact; Open returns domain.ErrNoArtifact when nothing usable is staged.
type FirmwareStage interface {
	Store(ctx context.Context, name string, r io.Reader) (domain.FirmwareArtifact, error)
	Open(ctx context.Context) (io.ReadCloser, domain.FirmwareArtifact, error)
}

// FirmwarePipeline runs the two transfer stages. Both take the same lock,
// so a push never reads a half written artifact.
type FirmwarePipeline struct {
	stage    FirmwareStage
	device   DeviceClient
	settings SettingsStore
	metrics  Metrics
	logger   *slog.Logger

	mu sync.Mutex
}

func NewFirmwarePipeline(stage FirmwareStage, device DeviceClient, settings SettingsStore, metrics Metrics, logger *slog.Logger) *FirmwarePipeline {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &FirmwarePipeline{
		stage:    stage,
		device:   device,
		settings: settings,
		metrics:  metrics,
		logger:   logger,
	}
}

// Receive stages a new artifact, replacing the current one.
func (p *FirmwarePipeline) Receive(ctx context.Context, name string, r io.Reader) (domain.FirmwareArtifact, error) {
	artifact, err := p.receive(ctx, name, r)
	p.metrics.FirmwareStep(FirmwareStepReceive, err == nil)
	return artifact, err
}

func (p *FirmwarePipeline) receive(ctx context.Context, name string, r io.Reader) (domain.FirmwareArtifact, error) {
	if r == nil {
		return domain.FirmwareArtifact{}, domain.ErrNoArtifact
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	artifact, err := p.stage.Store(ctx, name, r)
	if err != nil {
		return domain.FirmwareArtifact{}, fmt.Errorf("staging firmware: %w", err)
	}

	p.logger.Info("firmware staged", "id", artifact.ID, "name", artifact.Name, "bytes", artifact.Size)
	return artifact, nil
}

// Push forwards the staged artifact to the device at address. There is no
// automatic retry.
func (p *FirmwarePipeline) Push(ctx context.Context, address string) (string, error) {
	msg, err := p.push(ctx, address)
	p.metrics.FirmwareStep(FirmwareStepPush, err == nil)
	return msg, err
}

// PushForUser resolves the user's device address and pushes to it.
func (p *FirmwarePipeline) PushForUser(ctx context.Context, userID int64) (string, error) {
	settings, err := p.settings.GetSettings(ctx, userID)
	if err != nil {
		p.metrics.FirmwareStep(FirmwareStepPush, false)
		return "", fmt.Errorf("reading settings: %w", err)
	}
	cfg := settings.DeviceConfig()
	if !cfg.Configured() {
		p.metrics.FirmwareStep(FirmwareStepPush, false)
		return "", domain.ErrDeviceNotConfigured
	}
	return p.Push(ctx, cfg.Address)
}

func (p *FirmwarePipeline) push(ctx context.Context, address string) (string, error) {
	if address == "" {
		return "", domain.ErrDeviceNotConfigured
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rc, artifact, err := p.stage.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("opening staged firmware: %w", err)
	}
	defer rc.Close()

	resp, err := p.device.UploadFirmware(ctx, address, artifact.Name, rc)
	if err != nil {
		p.logger.Warn("firmware push failed", "id", artifact.ID, "address", address, "error", err)
		return resp, fmt.Errorf("uploading firmware: %w", err)
	}

	p.logger.Info("firmware delivered", "id", artifact.ID, "address", address, "bytes", artifact.Size)
	return resp, nil
}
