package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"home-control/internal/application"
	"home-control/internal/infra"
)

const (
	DefaultTopicPrefix = "home-control"

	publishTimeout = 5 * time.Second
)

type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// client is the part of paho.Client the publisher needs.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher mirrors home status changes to retained MQTT topics:
// <prefix>/<user>/status carries "online" or "offline", and
// <prefix>/<user>/event a JSON record of each change.
type Publisher struct {
	client client
	prefix string
	logger *slog.Logger
}

var _ application.StatusListener = (*Publisher)(nil)

type statusEvent struct {
	UserID int64     `json:"user_id"`
	Online bool      `json:"online"`
	First  bool      `json:"first"`
	At     time.Time `json:"at"`
}

// Connect dials the broker, retrying with backoff, and announces the hub
// itself as online. The broker publishes "offline" for the hub if the
// connection is lost.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	prefix, err := normalizePrefix(cfg.TopicPrefix)
	if err != nil {
		return nil, err
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(10*time.Second).
		SetWill(prefix+"/hub/status", "offline", 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	c := paho.NewClient(opts)
	retry := infra.DefaultRetryConfig()
	retry.MaxAttempts = 5
	retry.OnRetry = func(attempt int, wait time.Duration, err error) {
		logger.Warn("mqtt connect failed, retrying", "broker", cfg.Broker, "attempt", attempt, "wait", wait, "error", err)
	}
	err = infra.WithRetry(ctx, retry, func() error {
		token := c.Connect()
		if !token.WaitTimeout(15 * time.Second) {
			return errors.New("mqtt connect timed out")
		}
		return token.Error()
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", cfg.Broker, err)
	}

	p := newPublisher(c, prefix, logger)
	if err := p.publish(prefix+"/hub/status", 1, true, "online"); err != nil {
		logger.Warn("announcing hub online", "error", err)
	}
	logger.Info("connected to mqtt broker", "broker", cfg.Broker, "prefix", prefix)
	return p, nil
}

func newPublisher(c client, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{client: c, prefix: prefix, logger: logger}
}

func (p *Publisher) StatusChanged(_ context.Context, change application.StatusChange) {
	user := strconv.FormatInt(change.UserID, 10)

	status := "offline"
	if change.Online {
		status = "online"
	}
	if err := p.publish(p.prefix+"/"+user+"/status", 1, true, status); err != nil {
		p.logger.Error("publishing home status", "user_id", change.UserID, "error", err)
		return
	}

	event, err := json.Marshal(statusEvent{
		UserID: change.UserID,
		Online: change.Online,
		First:  change.First,
		At:     change.At.UTC(),
	})
	if err != nil {
		p.logger.Error("encoding status event", "error", err)
		return
	}
	if err := p.publish(p.prefix+"/"+user+"/event", 0, false, event); err != nil {
		p.logger.Warn("publishing status event", "user_id", change.UserID, "error", err)
	}
}

// Close marks the hub offline and disconnects.
func (p *Publisher) Close() {
	if err := p.publish(p.prefix+"/hub/status", 1, true, "offline"); err != nil {
		p.logger.Warn("announcing hub offline", "error", err)
	}
	p.client.Disconnect(250)
}

func (p *Publisher) publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s timed out", topic)
	}
	return token.Error()
}

func normalizePrefix(prefix string) (string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if strings.ContainsAny(prefix, "+#\x00") {
		return "", fmt.Errorf("invalid mqtt topic prefix %q", prefix)
	}
	return prefix, nil
}
