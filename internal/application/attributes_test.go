package application_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"home-control/internal/application"
	"home-control/internal/domain"
)

func newAttributeHandler(settings *fakeSettings) (*application.AttributeHandler, *application.Globals) {
	globals := application.NewGlobals("Home", false)
	registry := application.GlobalAttributes(globals)
	application.AddValueAttributes(registry, map[string]any{"threshold": nil})
	return application.NewAttributeHandler(registry, application.UserAttributes(), settings, nil, discardLogger()), globals
}

func TestAttributeHandler_SetThenGetCoercesValues(t *testing.T) {
	handler, _ := newAttributeHandler(newFakeSettings())
	ctx := context.Background()

	tests := []struct {
		input string
		want  any
	}{
		{input: "42", want: int64(42)},
		{input: "True", want: true},
		{input: "FALSE", want: false},
		{input: "3.14", want: 3.14},
		{input: "abc", want: "abc"},
		{input: "-5", want: -5.0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			set := handler.Handle(ctx, domain.AttributeRequest{
				Action: "set", AttributeName: "threshold", Value: tt.input,
			}, 0)
			if set.Error != "" {
				t.Fatalf("set error: %s", set.Error)
			}

			got := handler.Handle(ctx, domain.AttributeRequest{Action: "get", AttributeName: "threshold"}, 0)
			if got.Error != "" {
				t.Fatalf("get error: %s", got.Error)
			}
			if got.Value != tt.want {
				t.Errorf("value: got %#v, want %#v", got.Value, tt.want)
			}
		})
	}
}

func TestAttributeHandler_Validation(t *testing.T) {
	handler, _ := newAttributeHandler(newFakeSettings())

	tests := []struct {
		name    string
		req     domain.AttributeRequest
		wantErr string
	}{
		{name: "missing action", req: domain.AttributeRequest{AttributeName: "debug"}, wantErr: "not provided"},
		{name: "missing name", req: domain.AttributeRequest{Action: "get"}, wantErr: "not provided"},
		{name: "unknown action", req: domain.AttributeRequest{Action: "delete", AttributeName: "debug"}, wantErr: "invalid action"},
		{name: "set without value", req: domain.AttributeRequest{Action: "set", AttributeName: "debug"}, wantErr: "value for setting"},
		{name: "user attribute without user", req: domain.AttributeRequest{Action: "get", AttributeName: "theme"}, wantErr: "user_id"},
		{name: "malformed user id", req: domain.AttributeRequest{Action: "get", AttributeName: "theme", UserID: "1.5"}, wantErr: "integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := handler.Handle(context.Background(), tt.req, 0)
			if res.Error == "" {
				t.Fatalf("expected error, got value %#v", res.Value)
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Errorf("error: got %q, want it to contain %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestAttributeHandler_UnknownAttributeIsAnError(t *testing.T) {
	settings := newFakeSettings(domain.DefaultUserSettings(1))
	handler, _ := newAttributeHandler(settings)

	for _, action := range []string{"get", "set"} {
		res := handler.Handle(context.Background(), domain.AttributeRequest{
			Action: action, AttributeName: "api_password", Value: "x", UserID: "1",
		}, 0)
		if res.Error == "" {
			t.Errorf("%s: expected error for unknown attribute, got %#v", action, res)
		}
	}
}

func TestAttributeHandler_UserSettings(t *testing.T) {
	settings := newFakeSettings(domain.DefaultUserSettings(1))
	handler, _ := newAttributeHandler(settings)
	ctx := context.Background()

	res := handler.Handle(ctx, domain.AttributeRequest{Action: "set", AttributeName: "server_check_interval", Value: "9000"}, 1)
	if res.Error != "" {
		t.Fatalf("set interval: %s", res.Error)
	}
	if res.Value != domain.MaxCheckInterval {
		t.Errorf("interval should be clamped: got %#v", res.Value)
	}

	res = handler.Handle(ctx, domain.AttributeRequest{Action: "set", AttributeName: "display_name", Value: "007"}, 1)
	if res.Error != "" || res.Value != "007" {
		t.Errorf("display name: got %#v", res)
	}

	res = handler.Handle(ctx, domain.AttributeRequest{Action: "set", AttributeName: "test_mode", Value: "False", UserID: "1"}, 0)
	if res.Error != "" || res.Value != false {
		t.Errorf("test mode: got %#v", res)
	}

	stored, _ := settings.GetSettings(ctx, 1)
	if stored.TestMode {
		t.Error("test mode should be persisted as false")
	}

	res = handler.Handle(ctx, domain.AttributeRequest{Action: "set", AttributeName: "test_mode", Value: "maybe"}, 1)
	if res.Error == "" {
		t.Error("non-boolean value for test_mode should be rejected")
	}

	res = handler.Handle(ctx, domain.AttributeRequest{Action: "set", AttributeName: "theme", Value: "neon"}, 1)
	if res.Error == "" {
		t.Error("unsupported theme should be rejected")
	}

	res = handler.Handle(ctx, domain.AttributeRequest{Action: "get", AttributeName: "theme"}, 1)
	if res.Value != "light" {
		t.Errorf("theme: got %#v, want light", res.Value)
	}
}

func TestAttributeHandler_MissingUserAndSettings(t *testing.T) {
	settings := newFakeSettings()
	settings.addUserWithoutSettings(2)
	handler, _ := newAttributeHandler(settings)

	res := handler.Handle(context.Background(), domain.AttributeRequest{Action: "get", AttributeName: "theme", UserID: "99"}, 0)
	if !strings.Contains(res.Error, "user with ID '99' does not exist") {
		t.Errorf("missing user: got %q", res.Error)
	}

	res = handler.Handle(context.Background(), domain.AttributeRequest{Action: "set", AttributeName: "theme", Value: "dark", UserID: "2"}, 0)
	if !strings.Contains(res.Error, "user settings for user ID '2' do not exist") {
		t.Errorf("missing settings: got %q", res.Error)
	}
}

func TestAttributeHandler_GlobalsAreShared(t *testing.T) {
	var debugCalls []bool
	globals := application.NewGlobals("Home", false, application.WithDebugHook(func(on bool) {
		debugCalls = append(debugCalls, on)
	}))
	handler := application.NewAttributeHandler(application.GlobalAttributes(globals), application.UserAttributes(), newFakeSettings(), nil, discardLogger())

	res := handler.Handle(context.Background(), domain.AttributeRequest{Action: "set", AttributeName: "debug", Value: "true"}, 5)
	if res.Error != "" {
		t.Fatalf("set debug: %s", res.Error)
	}
	if !globals.Debug() || len(debugCalls) != 1 || !debugCalls[0] {
		t.Errorf("debug hook not applied: debug=%v calls=%v", globals.Debug(), debugCalls)
	}

	res = handler.Handle(context.Background(), domain.AttributeRequest{Action: "set", AttributeName: "fallback_check_interval", Value: "30"}, 0)
	if res.Error != "" || res.Value != 30 {
		t.Errorf("fallback interval: got %#v", res)
	}
	if globals.FallbackInterval().Seconds() != 30 {
		t.Errorf("globals not updated: %v", globals.FallbackInterval())
	}
}

func TestAttributeResult_JSONShape(t *testing.T) {
	data, err := json.Marshal(domain.AttributeValue("debug", false))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"attribute_name":"debug","value":false}` {
		t.Errorf("value shape: got %s", data)
	}

	data, err = json.Marshal(domain.AttributeError("nope"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"error":"nope"}` {
		t.Errorf("error shape: got %s", data)
	}
}

func TestAddValueAttributes(t *testing.T) {
	globals := application.NewGlobals("Home", false)
	registry := application.GlobalAttributes(globals)

	skipped := application.AddValueAttributes(registry, map[string]any{
		"threshold": 10,
		"site_name": "shadowed",
		"":          "empty",
	})
	if len(skipped) != 2 || skipped[0] != "" || skipped[1] != "site_name" {
		t.Errorf("skipped: got %q", skipped)
	}

	handler := application.NewAttributeHandler(registry, application.UserAttributes(), newFakeSettings(), nil, discardLogger())
	ctx := context.Background()

	got := handler.Handle(ctx, domain.AttributeRequest{Action: "get", AttributeName: "threshold"}, 0)
	if got.Error != "" || got.Value != 10 {
		t.Errorf("seeded value: got %+v", got)
	}
	got = handler.Handle(ctx, domain.AttributeRequest{Action: "get", AttributeName: "site_name"}, 0)
	if got.Value != "Home" {
		t.Errorf("built-in attribute replaced: got %+v", got)
	}

	handler.Handle(ctx, domain.AttributeRequest{Action: "set", AttributeName: "threshold", Value: "3.14"}, 0)
	got = handler.Handle(ctx, domain.AttributeRequest{Action: "get", AttributeName: "threshold"}, 0)
	if got.Value != 3.14 {
		t.Errorf("after set: got %+v", got)
	}
}
