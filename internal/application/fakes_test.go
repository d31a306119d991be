package application_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"home-control/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSettings struct {
	mu       sync.Mutex
	users    map[int64]bool
	settings map[int64]*domain.UserSettings
}

func newFakeSettings(records ...domain.UserSettings) *fakeSettings {
	f := &fakeSettings{
		users:    make(map[int64]bool),
		settings: make(map[int64]*domain.UserSettings),
	}
	for _, r := range records {
		r := r
		f.users[r.UserID] = true
		f.settings[r.UserID] = &r
	}
	return f
}

func (f *fakeSettings) addUserWithoutSettings(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = true
}

func (f *fakeSettings) UserIDs(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeSettings) GetSettings(_ context.Context, userID int64) (domain.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.users[userID] {
		return domain.UserSettings{}, domain.ErrUserNotFound
	}
	s, ok := f.settings[userID]
	if !ok {
		return domain.UserSettings{}, domain.ErrSettingsNotFound
	}
	return *s, nil
}

func (f *fakeSettings) UpdateSettings(_ context.Context, userID int64, fn func(*domain.UserSettings) error) (domain.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.users[userID] {
		return domain.UserSettings{}, domain.ErrUserNotFound
	}
	s, ok := f.settings[userID]
	if !ok {
		return domain.UserSettings{}, domain.ErrSettingsNotFound
	}
	updated := *s
	if err := fn(&updated); err != nil {
		return domain.UserSettings{}, err
	}
	updated.Normalize()
	*s = updated
	return updated, nil
}

type fakeLights struct {
	mu     sync.Mutex
	lights map[domain.LightKey]domain.Light
	writes int
}

func newFakeLights(lights ...domain.Light) *fakeLights {
	f := &fakeLights{lights: make(map[domain.LightKey]domain.Light)}
	for _, l := range lights {
		f.lights[domain.LightKey{Owner: l.Owner, Room: l.Room, Name: l.Name}] = l
	}
	return f
}

func (f *fakeLights) FindLight(_ context.Context, owner int64, room, light string) (domain.Light, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lights[domain.LightKey{Owner: owner, Room: room, Name: light}]
	if !ok {
		return domain.Light{}, domain.ErrNotFound
	}
	return l, nil
}

func (f *fakeLights) SetLightState(_ context.Context, owner int64, room, light string, state domain.LightState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := domain.LightKey{Owner: owner, Room: room, Name: light}
	l, ok := f.lights[key]
	if !ok {
		return domain.ErrNotFound
	}
	l.State = state
	f.lights[key] = l
	f.writes++
	return nil
}

func (f *fakeLights) ListLights(_ context.Context, owner int64) ([]domain.Light, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Light
	for _, l := range f.lights {
		if l.Owner == owner {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeDevice struct {
	mu          sync.Mutex
	probeErr    error
	controlErr  error
	controlResp string
	uploadErr   error
	probes      []probeCall
	controls    []domain.ControlCommand
	uploads     [][]byte
	block       chan struct{}
}

type probeCall struct {
	address  string
	interval int
}

func (f *fakeDevice) Probe(_ context.Context, address string, interval int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, probeCall{address, interval})
	return f.probeErr
}

func (f *fakeDevice) Control(_ context.Context, _ string, cmd domain.ControlCommand) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, cmd)
	return f.controlResp, f.controlErr
}

func (f *fakeDevice) UploadFirmware(_ context.Context, _ string, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, data)
	if f.uploadErr != nil {
		return "Update Failed", f.uploadErr
	}
	return "OK", nil
}

func (f *fakeDevice) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.probes) + len(f.controls) + len(f.uploads)
}

type staticSessions bool

func (s staticSessions) AnyActive() bool { return bool(s) }

type memoryStage struct {
	data     []byte
	artifact domain.FirmwareArtifact
	stored   int
}

func (m *memoryStage) Store(_ context.Context, name string, r io.Reader) (domain.FirmwareArtifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.FirmwareArtifact{}, err
	}
	if len(data) == 0 {
		return domain.FirmwareArtifact{}, domain.ErrNoArtifact
	}
	m.stored++
	m.data = data
	m.artifact = domain.FirmwareArtifact{ID: fmt.Sprintf("a%d", m.stored), Name: name, Size: int64(len(data))}
	return m.artifact, nil
}

func (m *memoryStage) Open(_ context.Context) (io.ReadCloser, domain.FirmwareArtifact, error) {
	if len(m.data) == 0 {
		return nil, domain.FirmwareArtifact{}, domain.ErrNoArtifact
	}
	return io.NopCloser(bytes.NewReader(m.data)), m.artifact, nil
}
