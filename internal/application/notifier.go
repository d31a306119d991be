package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}

// StatusChange is emitted by the monitor whenever a user's home flips
// between online and offline, and on the first observation. TestMode marks
// simulated flips; Push mirrors the user's push_notifications setting.
type StatusChange struct {
	UserID      int64
	Online      bool
	First       bool
	SilenceMode bool
	TestMode    bool
	Push        bool
	At          time.Time
}

type StatusListener interface {
	StatusChanged(ctx context.Context, change StatusChange)
}

type StatusListenerFunc func(ctx context.Context, change StatusChange)

func (f StatusListenerFunc) StatusChanged(ctx context.Context, change StatusChange) {
	f(ctx, change)
}

// NotifyOnChange forwards real status transitions to a Notifier. First
// observations, simulated flips and users who are silenced or have push
// notifications off are not announced.
type NotifyOnChange struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewNotifyOnChange(notifier Notifier, logger *slog.Logger) *NotifyOnChange {
	return &NotifyOnChange{notifier: notifier, logger: logger}
}

func (n *NotifyOnChange) StatusChanged(ctx context.Context, change StatusChange) {
	if change.First || change.TestMode || change.SilenceMode || !change.Push {
		return
	}

	state := "offline"
	if change.Online {
		state = "back online"
	}
	msg := fmt.Sprintf("Home of user %d is %s", change.UserID, state)

	if err := n.notifier.Notify(ctx, msg); err != nil {
		n.logger.Error("notifying status change", "user_id", change.UserID, "error", err)
	}
}
