package application_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"home-control/internal/application"
	"home-control/internal/domain"
)

func TestFirmwarePipeline_PushWithoutArtifact(t *testing.T) {
	device := &fakeDevice{}
	pipeline := application.NewFirmwarePipeline(&memoryStage{}, device, newFakeSettings(), nil, discardLogger())

	_, err := pipeline.Push(context.Background(), "10.0.0.2")
	if !errors.Is(err, domain.ErrNoArtifact) {
		t.Fatalf("error: got %v, want ErrNoArtifact", err)
	}
	if device.calls() != 0 {
		t.Errorf("device calls: got %d, want 0", device.calls())
	}
}

func TestFirmwarePipeline_ReceiveRejectsEmpty(t *testing.T) {
	stage := &memoryStage{}
	pipeline := application.NewFirmwarePipeline(stage, &fakeDevice{}, newFakeSettings(), nil, discardLogger())

	if _, err := pipeline.Receive(context.Background(), "firmware.bin", nil); !errors.Is(err, domain.ErrNoArtifact) {
		t.Errorf("nil reader: got %v, want ErrNoArtifact", err)
	}
	if _, err := pipeline.Receive(context.Background(), "firmware.bin", strings.NewReader("")); !errors.Is(err, domain.ErrNoArtifact) {
		t.Errorf("empty reader: got %v, want ErrNoArtifact", err)
	}
	if stage.stored != 0 {
		t.Errorf("stage writes: got %d, want 0", stage.stored)
	}
}

func TestFirmwarePipeline_ReceiveThenPush(t *testing.T) {
	device := &fakeDevice{}
	settings := newFakeSettings(configuredSettings(1, "10.0.0.2"))
	pipeline := application.NewFirmwarePipeline(&memoryStage{}, device, settings, nil, discardLogger())
	ctx := context.Background()

	if _, err := pipeline.Receive(ctx, "firmware.bin", strings.NewReader("old image")); err != nil {
		t.Fatalf("first receive: %v", err)
	}
	artifact, err := pipeline.Receive(ctx, "firmware.bin", strings.NewReader("new image"))
	if err != nil {
		t.Fatalf("second receive: %v", err)
	}
	if artifact.Size != int64(len("new image")) {
		t.Errorf("artifact size: got %d", artifact.Size)
	}

	if _, err := pipeline.PushForUser(ctx, 1); err != nil {
		t.Fatalf("push: %v", err)
	}

	if len(device.uploads) != 1 || !bytes.Equal(device.uploads[0], []byte("new image")) {
		t.Errorf("uploaded: got %q", device.uploads)
	}
}

func TestFirmwarePipeline_PushFailure(t *testing.T) {
	device := &fakeDevice{uploadErr: fmt.Errorf("status 500: %w", domain.ErrDeviceRejected)}
	pipeline := application.NewFirmwarePipeline(&memoryStage{}, device, newFakeSettings(), nil, discardLogger())
	ctx := context.Background()

	if _, err := pipeline.Receive(ctx, "firmware.bin", strings.NewReader("image")); err != nil {
		t.Fatalf("receive: %v", err)
	}

	msg, err := pipeline.Push(ctx, "10.0.0.2")
	if !errors.Is(err, domain.ErrDeviceRejected) {
		t.Fatalf("error: got %v, want ErrDeviceRejected", err)
	}
	if msg != "Update Failed" {
		t.Errorf("device message: got %q", msg)
	}
}

func TestFirmwarePipeline_PushForUserWithoutAddress(t *testing.T) {
	device := &fakeDevice{}
	settings := newFakeSettings(configuredSettings(1, ""))
	pipeline := application.NewFirmwarePipeline(&memoryStage{}, device, settings, nil, discardLogger())

	_, err := pipeline.PushForUser(context.Background(), 1)
	if !errors.Is(err, domain.ErrDeviceNotConfigured) {
		t.Fatalf("error: got %v, want ErrDeviceNotConfigured", err)
	}
	if device.calls() != 0 {
		t.Errorf("device calls: got %d, want 0", device.calls())
	}
}
