package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"home-control/internal/domain"
)

// Monitor keeps the StatusTable current. Run gives every known user an
// independent task with its own timer, so a slow device never delays the
// checks of another user.
type Monitor struct {
	settings  SettingsStore
	sessions  SessionTracker
	device    DeviceClient
	status    *StatusTable
	globals   *Globals
	listeners []StatusListener
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type MonitorOption func(*Monitor)

func WithStatusListeners(listeners ...StatusListener) MonitorOption {
	return func(m *Monitor) { m.listeners = append(m.listeners, listeners...) }
}

func WithMonitorMetrics(metrics Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = metrics }
}

func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(
	settings SettingsStore,
	sessions SessionTracker,
	device DeviceClient,
	status *StatusTable,
	globals *Globals,
	logger *slog.Logger,
	opts ...MonitorOption,
) *Monitor {
	m := &Monitor{
		settings: settings,
		sessions: sessions,
		device:   device,
		status:   status,
		globals:  globals,
		metrics:  NoopMetrics{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run blocks until ctx is cancelled. The user list is re-read every
// fallback interval; tasks are started for new users and stopped for users
// that no longer exist.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("connectivity monitor started")

	var wg sync.WaitGroup
	tasks := make(map[int64]context.CancelFunc)
	defer func() {
		for _, cancel := range tasks {
			cancel()
		}
		wg.Wait()
		m.logger.Info("connectivity monitor stopped")
	}()

	for {
		m.reconcile(ctx, tasks, &wg)

		timer := time.NewTimer(m.globals.FallbackInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Monitor) reconcile(ctx context.Context, tasks map[int64]context.CancelFunc, wg *sync.WaitGroup) {
	ids, err := m.settings.UserIDs(ctx)
	if err != nil {
		m.logger.Error("listing users", "error", err)
		return
	}

	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
		if _, running := tasks[id]; running {
			continue
		}

		taskCtx, cancel := context.WithCancel(ctx)
		tasks[id] = cancel
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			m.runUser(taskCtx, userID)
		}(id)
		m.logger.Debug("monitor task started", "user_id", id)
	}

	for id, cancel := range tasks {
		if !seen[id] {
			cancel()
			delete(tasks, id)
			m.logger.Debug("monitor task stopped", "user_id", id)
		}
	}
}

func (m *Monitor) runUser(ctx context.Context, userID int64) {
	for {
		interval := m.CheckUser(ctx, userID)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Sweep checks every known user once, in order. Nothing is probed when no
// session is active.
func (m *Monitor) Sweep(ctx context.Context) error {
	if !m.sessions.AnyActive() {
		m.logger.Debug("no active sessions, skipping sweep")
		return nil
	}

	ids, err := m.settings.UserIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.CheckUser(ctx, id)
	}
	return nil
}

// CheckUser updates the status of a single user and returns how long to
// wait before checking that user again. It never panics or returns an
// error: every failure ends up as "offline" or as a skipped check.
func (m *Monitor) CheckUser(ctx context.Context, userID int64) (next time.Duration) {
	next = m.globals.FallbackInterval()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor check panicked", "user_id", userID, "panic", r)
		}
	}()

	if !m.sessions.AnyActive() {
		return next
	}

	settings, err := m.settings.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) || errors.Is(err, domain.ErrUserNotFound) {
			m.logger.Debug("no settings for user, skipping", "user_id", userID)
		} else {
			m.logger.Warn("reading user settings", "user_id", userID, "error", err)
		}
		return next
	}

	cfg := settings.DeviceConfig()
	m.observe(ctx, cfg)
	return time.Duration(cfg.CheckInterval) * time.Second
}

func (m *Monitor) observe(ctx context.Context, cfg domain.UserDeviceConfig) {
	if cfg.TestMode {
		online, known := m.status.Toggle(cfg.UserID)
		m.emit(ctx, cfg, online, !known)
		return
	}

	online := m.probe(ctx, cfg)
	previous, known := m.status.Set(cfg.UserID, online)
	if !known || previous != online {
		m.emit(ctx, cfg, online, !known)
	}
}

func (m *Monitor) probe(ctx context.Context, cfg domain.UserDeviceConfig) bool {
	if !cfg.Configured() {
		m.logger.Debug("device address not configured", "user_id", cfg.UserID)
		return false
	}

	start := m.now()
	err := m.device.Probe(ctx, cfg.Address, cfg.CheckInterval)
	m.metrics.ProbeCompleted(err == nil, m.now().Sub(start))

	if err != nil {
		m.logger.Warn("home offline", "user_id", cfg.UserID, "address", cfg.Address, "error", err)
		return false
	}

	m.logger.Debug("home online", "user_id", cfg.UserID, "address", cfg.Address)
	return true
}

func (m *Monitor) emit(ctx context.Context, cfg domain.UserDeviceConfig, online, first bool) {
	change := StatusChange{
		UserID:      cfg.UserID,
		Online:      online,
		First:       first,
		SilenceMode: cfg.SilenceMode,
		TestMode:    cfg.TestMode,
		Push:        cfg.Push,
		At:          m.now(),
	}
	for _, l := range m.listeners {
		l.StatusChanged(ctx, change)
	}
}
