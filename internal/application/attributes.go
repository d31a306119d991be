package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"home-control/internal/domain"
)

type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindBool
)

// GlobalAttribute is a process-wide value with a typed getter and setter.
type GlobalAttribute struct {
	Kind Kind
	Get  func() any
	Set  func(v any) error
}

// UserAttribute reads and writes one field of a UserSettings record.
type UserAttribute struct {
	Kind Kind
	Get  func(s domain.UserSettings) any
	Set  func(s *domain.UserSettings, v any) error
}

// NewValueAttribute returns a global attribute backed by its own slot that
// stores whatever coerced value it is given.
func NewValueAttribute(initial any) GlobalAttribute {
	var mu sync.RWMutex
	value := initial
	return GlobalAttribute{
		Kind: KindAny,
		Get: func() any {
			mu.RLock()
			defer mu.RUnlock()
			return value
		},
		Set: func(v any) error {
			mu.Lock()
			defer mu.Unlock()
			value = v
			return nil
		},
	}
}

// GlobalAttributes exposes the Globals fields by name.
func GlobalAttributes(g *Globals) map[string]GlobalAttribute {
	return map[string]GlobalAttribute{
		"site_name": {
			Kind: KindString,
			Get:  func() any { return g.SiteName() },
			Set: func(v any) error {
				s, err := asString(v)
				if err != nil {
					return err
				}
				g.SetSiteName(s)
				return nil
			},
		},
		"debug": {
			Kind: KindBool,
			Get:  func() any { return g.Debug() },
			Set: func(v any) error {
				b, err := asBool(v)
				if err != nil {
					return err
				}
				g.SetDebug(b)
				return nil
			},
		},
		"fallback_check_interval": {
			Kind: KindInt,
			Get:  func() any { return int(g.FallbackInterval().Seconds()) },
			Set: func(v any) error {
				n, err := asInt(v)
				if err != nil {
					return err
				}
				g.SetFallbackInterval(n)
				return nil
			},
		},
	}
}

// AddValueAttributes registers a free-form global for every entry of values,
// seeded with its value. Names that are already registered are kept and
// returned in skipped.
func AddValueAttributes(registry map[string]GlobalAttribute, values map[string]any) (skipped []string) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, taken := registry[name]; taken || name == "" {
			skipped = append(skipped, name)
			continue
		}
		registry[name] = NewValueAttribute(values[name])
	}
	return skipped
}

func stringField(get func(domain.UserSettings) string, set func(*domain.UserSettings, string), validate func(string) error) UserAttribute {
	return UserAttribute{
		Kind: KindString,
		Get:  func(s domain.UserSettings) any { return get(s) },
		Set: func(s *domain.UserSettings, v any) error {
			str, err := asString(v)
			if err != nil {
				return err
			}
			if validate != nil {
				if err := validate(str); err != nil {
					return err
				}
			}
			set(s, str)
			return nil
		},
	}
}

func boolField(get func(domain.UserSettings) bool, set func(*domain.UserSettings, bool)) UserAttribute {
	return UserAttribute{
		Kind: KindBool,
		Get:  func(s domain.UserSettings) any { return get(s) },
		Set: func(s *domain.UserSettings, v any) error {
			b, err := asBool(v)
			if err != nil {
				return err
			}
			set(s, b)
			return nil
		},
	}
}

// UserAttributes is the whitelist of settings fields reachable by name.
func UserAttributes() map[string]UserAttribute {
	return map[string]UserAttribute{
		"server_check_interval": {
			Kind: KindInt,
			Get:  func(s domain.UserSettings) any { return s.CheckInterval },
			Set: func(s *domain.UserSettings, v any) error {
				n, err := asInt(v)
				if err != nil {
					return err
				}
				s.CheckInterval = domain.ClampCheckInterval(n)
				return nil
			},
		},
		"device_address": stringField(
			func(s domain.UserSettings) string { return s.DeviceAddress },
			func(s *domain.UserSettings, v string) { s.DeviceAddress = v }, nil),
		"display_name": stringField(
			func(s domain.UserSettings) string { return s.DisplayName },
			func(s *domain.UserSettings, v string) { s.DisplayName = v }, nil),
		"email": stringField(
			func(s domain.UserSettings) string { return s.Email },
			func(s *domain.UserSettings, v string) { s.Email = v }, nil),
		"preferred_language": stringField(
			func(s domain.UserSettings) string { return s.PreferredLanguage },
			func(s *domain.UserSettings, v string) { s.PreferredLanguage = v },
			oneOf("en", "fr", "de")),
		"timezone": stringField(
			func(s domain.UserSettings) string { return s.Timezone },
			func(s *domain.UserSettings, v string) { s.Timezone = v }, nil),
		"theme": stringField(
			func(s domain.UserSettings) string { return string(s.Theme) },
			func(s *domain.UserSettings, v string) { s.Theme = domain.Theme(v) },
			oneOf(string(domain.ThemeLight), string(domain.ThemeDark))),
		"font_size": stringField(
			func(s domain.UserSettings) string { return s.FontSize },
			func(s *domain.UserSettings, v string) { s.FontSize = v },
			oneOf("small", "medium", "large")),
		"primary_color": stringField(
			func(s domain.UserSettings) string { return s.PrimaryColor },
			func(s *domain.UserSettings, v string) { s.PrimaryColor = v }, nil),
		"test_mode": boolField(
			func(s domain.UserSettings) bool { return s.TestMode },
			func(s *domain.UserSettings, v bool) { s.TestMode = v }),
		"silence_mode": boolField(
			func(s domain.UserSettings) bool { return s.SilenceMode },
			func(s *domain.UserSettings, v bool) { s.SilenceMode = v }),
		"email_notifications": boolField(
			func(s domain.UserSettings) bool { return s.EmailNotifications },
			func(s *domain.UserSettings, v bool) { s.EmailNotifications = v }),
		"push_notifications": boolField(
			func(s domain.UserSettings) bool { return s.PushNotifications },
			func(s *domain.UserSettings, v bool) { s.PushNotifications = v }),
		"two_factor_authentication": boolField(
			func(s domain.UserSettings) bool { return s.TwoFactorAuthentication },
			func(s *domain.UserSettings, v bool) { s.TwoFactorAuthentication = v }),
		"scheduled_lights": boolField(
			func(s domain.UserSettings) bool { return s.ScheduledLights },
			func(s *domain.UserSettings, v bool) { s.ScheduledLights = v }),
	}
}

// AttributeHandler serves the get/set attribute protocol. Every call to
// Handle yields exactly one result, either a value or an error.
type AttributeHandler struct {
	globals  map[string]GlobalAttribute
	users    map[string]UserAttribute
	settings SettingsStore
	metrics  Metrics
	logger   *slog.Logger
}

func NewAttributeHandler(
	globals map[string]GlobalAttribute,
	users map[string]UserAttribute,
	settings SettingsStore,
	metrics Metrics,
	logger *slog.Logger,
) *AttributeHandler {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &AttributeHandler{
		globals:  globals,
		users:    users,
		settings: settings,
		metrics:  metrics,
		logger:   logger,
	}
}

// Names lists every registered attribute, globals first.
func (h *AttributeHandler) Names() []string {
	names := make([]string, 0, len(h.globals)+len(h.users))
	for n := range h.globals {
		names = append(names, n)
	}
	sort.Strings(names)
	users := make([]string, 0, len(h.users))
	for n := range h.users {
		users = append(users, n)
	}
	sort.Strings(users)
	return append(names, users...)
}

// Handle resolves req for the given connection user. callerID is used when
// the request carries no user_id of its own; zero means anonymous.
func (h *AttributeHandler) Handle(ctx context.Context, req domain.AttributeRequest, callerID int64) (result domain.AttributeResult) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("attribute request panicked", "attribute", req.AttributeName, "panic", r)
			result = domain.AttributeError("an internal error occurred")
		}
		h.metrics.AttributeHandled(req.Action, result.Error == "")
	}()

	if req.Action == "" || req.AttributeName == "" {
		return domain.AttributeError("action or attribute name was not provided or is invalid")
	}

	switch req.Action {
	case domain.AttributeGet:
	case domain.AttributeSet:
		if req.Value == nil {
			return domain.AttributeError("value for setting the attribute was not provided")
		}
	default:
		return domain.AttributeError("invalid action, supported actions are 'get' and 'set'")
	}

	if attr, ok := h.globals[req.AttributeName]; ok {
		return h.handleGlobal(req, attr)
	}

	userID, err := resolveUserID(req.UserID, callerID)
	if err != nil {
		return domain.AttributeError(err.Error())
	}
	return h.handleUser(ctx, req, userID)
}

func (h *AttributeHandler) handleGlobal(req domain.AttributeRequest, attr GlobalAttribute) domain.AttributeResult {
	if req.Action == domain.AttributeGet {
		return domain.AttributeValue(req.AttributeName, attr.Get())
	}

	if err := attr.Set(coerceFor(attr.Kind, req.Value)); err != nil {
		return domain.AttributeError(fmt.Sprintf("invalid value for attribute '%s': %v", req.AttributeName, err))
	}
	h.logger.Info("global attribute set", "attribute", req.AttributeName)
	return domain.AttributeValue(req.AttributeName, attr.Get())
}

func (h *AttributeHandler) handleUser(ctx context.Context, req domain.AttributeRequest, userID int64) domain.AttributeResult {
	attr, known := h.users[req.AttributeName]

	if req.Action == domain.AttributeGet {
		settings, err := h.settings.GetSettings(ctx, userID)
		if err != nil {
			return h.storeError(err, userID)
		}
		if !known {
			return unknownAttribute(req.AttributeName)
		}
		return domain.AttributeValue(req.AttributeName, attr.Get(settings))
	}

	if !known {
		if _, err := h.settings.GetSettings(ctx, userID); err != nil {
			return h.storeError(err, userID)
		}
		return unknownAttribute(req.AttributeName)
	}

	var invalid error
	updated, err := h.settings.UpdateSettings(ctx, userID, func(s *domain.UserSettings) error {
		if err := attr.Set(s, coerceFor(attr.Kind, req.Value)); err != nil {
			invalid = err
			return err
		}
		return nil
	})
	if invalid != nil {
		return domain.AttributeError(fmt.Sprintf("invalid value for attribute '%s': %v", req.AttributeName, invalid))
	}
	if err != nil {
		return h.storeError(err, userID)
	}

	h.logger.Info("user attribute set", "user_id", userID, "attribute", req.AttributeName)
	return domain.AttributeValue(req.AttributeName, attr.Get(updated))
}

func (h *AttributeHandler) storeError(err error, userID int64) domain.AttributeResult {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return domain.AttributeError(fmt.Sprintf("user with ID '%d' does not exist", userID))
	case errors.Is(err, domain.ErrSettingsNotFound):
		return domain.AttributeError(fmt.Sprintf("user settings for user ID '%d' do not exist", userID))
	default:
		h.logger.Error("settings store failure", "user_id", userID, "error", err)
		return domain.AttributeError("an internal error occurred")
	}
}

func unknownAttribute(name string) domain.AttributeResult {
	return domain.AttributeError(fmt.Sprintf("attribute '%s' does not exist in user settings", name))
}

// coerceFor keeps free-text values as typed for string attributes, so a
// display name of "007" is not turned into the number 7.
func coerceFor(kind Kind, v any) any {
	if kind == KindString {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return CoerceValue(v)
}

func resolveUserID(raw json.Number, callerID int64) (int64, error) {
	if raw == "" {
		if callerID == 0 {
			return 0, fmt.Errorf("user_id was not provided")
		}
		return callerID, nil
	}
	id, err := strconv.ParseInt(raw.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user_id must be an integer")
	}
	return id, nil
}
