package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"home-control/internal/application"
	"home-control/internal/domain"
)

type recordingListener struct {
	mu      sync.Mutex
	changes []application.StatusChange
}

func (r *recordingListener) StatusChanged(_ context.Context, change application.StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recordingListener) all() []application.StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]application.StatusChange(nil), r.changes...)
}

func newMonitor(settings *fakeSettings, sessions application.SessionTracker, device *fakeDevice, status *application.StatusTable, opts ...application.MonitorOption) *application.Monitor {
	globals := application.NewGlobals("test", false)
	return application.NewMonitor(settings, sessions, device, status, globals, discardLogger(), opts...)
}

func TestMonitor_TestModeTogglesEachSweep(t *testing.T) {
	s := domain.DefaultUserSettings(1)
	s.TestMode = true
	settings := newFakeSettings(s)
	device := &fakeDevice{}
	status := application.NewStatusTable()

	monitor := newMonitor(settings, staticSessions(true), device, status)
	ctx := context.Background()

	want := []bool{true, false, true}
	for i, w := range want {
		if err := monitor.Sweep(ctx); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
		if got := status.Online(1); got != w {
			t.Errorf("after sweep %d: online = %v, want %v", i+1, got, w)
		}
	}

	if device.calls() != 0 {
		t.Errorf("test mode issued %d device calls, want 0", device.calls())
	}
}

func TestMonitor_ProbeFailureMarksOffline(t *testing.T) {
	s := domain.DefaultUserSettings(1)
	s.TestMode = false
	s.DeviceAddress = "192.168.1.50"
	settings := newFakeSettings(s)
	device := &fakeDevice{probeErr: errors.New("connection refused")}
	status := application.NewStatusTable()
	status.Set(1, true)

	monitor := newMonitor(settings, staticSessions(true), device, status)

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	online, known := status.Get(1)
	if !known || online {
		t.Errorf("status = (%v, %v), want offline and known", online, known)
	}
}

func TestMonitor_ProbeSendsCheckInterval(t *testing.T) {
	s := domain.DefaultUserSettings(7)
	s.TestMode = false
	s.DeviceAddress = "10.0.0.7"
	s.CheckInterval = 42
	settings := newFakeSettings(s)
	device := &fakeDevice{}
	status := application.NewStatusTable()

	monitor := newMonitor(settings, staticSessions(true), device, status)

	next := monitor.CheckUser(context.Background(), 7)

	if next != 42*time.Second {
		t.Errorf("next check: got %v, want 42s", next)
	}
	if len(device.probes) != 1 {
		t.Fatalf("probes: got %d, want 1", len(device.probes))
	}
	if device.probes[0].address != "10.0.0.7" || device.probes[0].interval != 42 {
		t.Errorf("probe call: got %+v", device.probes[0])
	}
	if !status.Online(7) {
		t.Error("user should be online after successful probe")
	}
}

func TestMonitor_SkipsSweepWithoutSessions(t *testing.T) {
	s := domain.DefaultUserSettings(1)
	s.TestMode = false
	s.DeviceAddress = "10.0.0.1"
	settings := newFakeSettings(s)
	device := &fakeDevice{}
	status := application.NewStatusTable()

	monitor := newMonitor(settings, staticSessions(false), device, status)

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if device.calls() != 0 {
		t.Errorf("device calls: got %d, want 0", device.calls())
	}
	if _, known := status.Get(1); known {
		t.Error("status should not be recorded when no session is active")
	}
}

func TestMonitor_SkipsUserWithoutSettings(t *testing.T) {
	s := domain.DefaultUserSettings(1)
	s.TestMode = true
	settings := newFakeSettings(s)
	settings.addUserWithoutSettings(2)
	device := &fakeDevice{}
	status := application.NewStatusTable()

	monitor := newMonitor(settings, staticSessions(true), device, status)

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, known := status.Get(2); known {
		t.Error("user without settings should be skipped")
	}
	if !status.Online(1) {
		t.Error("user 1 should still be processed")
	}
	if next := monitor.CheckUser(context.Background(), 2); next != application.DefaultFallbackInterval {
		t.Errorf("fallback interval: got %v, want %v", next, application.DefaultFallbackInterval)
	}
}

func TestMonitor_EmitsOnlyOnChange(t *testing.T) {
	s := domain.DefaultUserSettings(3)
	s.TestMode = false
	s.DeviceAddress = "10.0.0.3"
	s.SilenceMode = true
	settings := newFakeSettings(s)
	device := &fakeDevice{}
	status := application.NewStatusTable()
	listener := &recordingListener{}

	monitor := newMonitor(settings, staticSessions(true), device, status,
		application.WithStatusListeners(listener))
	ctx := context.Background()

	monitor.CheckUser(ctx, 3)
	monitor.CheckUser(ctx, 3)

	device.mu.Lock()
	device.probeErr = errors.New("timeout")
	device.mu.Unlock()
	monitor.CheckUser(ctx, 3)

	changes := listener.all()
	if len(changes) != 2 {
		t.Fatalf("changes: got %d, want 2", len(changes))
	}
	if !changes[0].First || !changes[0].Online {
		t.Errorf("first change: got %+v", changes[0])
	}
	if changes[1].First || changes[1].Online {
		t.Errorf("second change: got %+v", changes[1])
	}
	if !changes[1].SilenceMode || !changes[1].Push || changes[1].TestMode {
		t.Errorf("settings flags not passed through: %+v", changes[1])
	}
}

func TestMonitor_NotificationsFollowUserSettings(t *testing.T) {
	tests := []struct {
		name     string
		testMode bool
		push     bool
		want     []string
	}{
		{name: "test mode with push on", testMode: true, push: true},
		{name: "test mode with push off", testMode: true, push: false},
		{name: "real device with push off", testMode: false, push: false},
		{
			name:     "real device with push on",
			testMode: false,
			push:     true,
			want:     []string{"Home of user 1 is offline", "Home of user 1 is back online"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := domain.DefaultUserSettings(1)
			s.TestMode = tt.testMode
			s.PushNotifications = tt.push
			s.DeviceAddress = "10.0.0.1"
			device := &fakeDevice{}
			notifier := &recordingNotifier{}
			recorder := &recordingListener{}

			monitor := newMonitor(newFakeSettings(s), staticSessions(true), device, application.NewStatusTable(),
				application.WithStatusListeners(application.NewNotifyOnChange(notifier, discardLogger()), recorder))
			ctx := context.Background()

			for i, failing := range []bool{false, true, false, false} {
				device.mu.Lock()
				device.probeErr = nil
				if failing {
					device.probeErr = errors.New("connection refused")
				}
				device.mu.Unlock()
				if err := monitor.Sweep(ctx); err != nil {
					t.Fatalf("sweep %d: %v", i, err)
				}
			}

			if len(notifier.messages) != len(tt.want) {
				t.Fatalf("notifications: got %v, want %v", notifier.messages, tt.want)
			}
			for i := range tt.want {
				if notifier.messages[i] != tt.want[i] {
					t.Errorf("notification %d: got %q, want %q", i, notifier.messages[i], tt.want[i])
				}
			}
			if len(recorder.all()) < 2 {
				t.Errorf("listeners should still see every transition, got %d", len(recorder.all()))
			}
		})
	}
}

type panickingDevice struct{ fakeDevice }

func (p *panickingDevice) Probe(context.Context, string, int) error {
	panic("boom")
}

func TestMonitor_CheckUserRecoversPanics(t *testing.T) {
	s := domain.DefaultUserSettings(1)
	s.TestMode = false
	s.DeviceAddress = "10.0.0.1"
	settings := newFakeSettings(s)
	status := application.NewStatusTable()
	globals := application.NewGlobals("test", false)

	monitor := application.NewMonitor(settings, staticSessions(true), &panickingDevice{}, status, globals, discardLogger())

	next := monitor.CheckUser(context.Background(), 1)
	if next != application.DefaultFallbackInterval {
		t.Errorf("next check after panic: got %v, want fallback", next)
	}
}

func TestMonitor_RunChecksUsersIndependently(t *testing.T) {
	fast := domain.DefaultUserSettings(1)
	fast.TestMode = true
	fast.CheckInterval = 1
	settings := newFakeSettings(fast)
	status := application.NewStatusTable()

	monitor := newMonitor(settings, staticSessions(true), &fakeDevice{}, status)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	deadline := time.After(3 * time.Second)
	for {
		if _, known := status.Get(1); known {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for first check")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
