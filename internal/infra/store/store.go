package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"home-control/internal/domain"
)

// MemoryPath keeps the store in memory only.
const MemoryPath = ":memory:"

type userRecord struct {
	ID       int64                `json:"id"`
	Username string               `json:"username"`
	Settings *domain.UserSettings `json:"settings,omitempty"`
}

type lightRecord struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	State       domain.LightState `json:"state"`
}

type roomRecord struct {
	Name   string        `json:"name"`
	Owner  int64         `json:"user_id"`
	Lights []lightRecord `json:"lights"`
}

type data struct {
	Users []userRecord `json:"users"`
	Rooms []roomRecord `json:"rooms"`
}

type roomKey struct {
	owner int64
	name  string
}

// Store keeps users, settings, rooms and lights in memory and mirrors every
// change to a JSON file when a path is set.
type Store struct {
	path string

	mu        sync.RWMutex
	data      data
	userIndex map[int64]int
	roomIndex map[roomKey]int
}

// Open loads path if it exists. An empty path or MemoryPath gives a purely
// in-memory store.
func Open(path string) (*Store, error) {
	if path == MemoryPath {
		path = ""
	}
	s := &Store{path: path}
	s.reindex()

	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading store: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parsing store: %w", err)
	}
	for i := range s.data.Rooms {
		for j := range s.data.Rooms[i].Lights {
			l := &s.data.Rooms[i].Lights[j]
			state, ok := domain.ParseLightState(string(l.State))
			if !ok {
				state = domain.LightOff
			}
			l.State = state
		}
	}
	for i := range s.data.Users {
		if st := s.data.Users[i].Settings; st != nil {
			st.UserID = s.data.Users[i].ID
			st.Normalize()
		}
	}
	s.reindex()
	return s, nil
}

// AddUser creates a user, with default settings when withSettings is true.
func (s *Store) AddUser(id int64, username string, withSettings bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.userIndex[id]; exists {
		return fmt.Errorf("user %d already exists", id)
	}
	rec := userRecord{ID: id, Username: username}
	if withSettings {
		settings := domain.DefaultUserSettings(id)
		rec.Settings = &settings
	}
	s.data.Users = append(s.data.Users, rec)
	s.reindex()
	return s.saveLocked()
}

// AddLight creates the room if needed and appends a light to it.
func (s *Store) AddLight(owner int64, room string, light domain.Light) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.userIndex[owner]; !ok {
		return fmt.Errorf("adding light: %w", domain.ErrUserNotFound)
	}
	if light.State == "" {
		light.State = domain.LightOff
	}

	idx, ok := s.roomIndex[roomKey{owner, room}]
	if !ok {
		s.data.Rooms = append(s.data.Rooms, roomRecord{Name: room, Owner: owner})
		idx = len(s.data.Rooms) - 1
		s.reindex()
	}
	for _, l := range s.data.Rooms[idx].Lights {
		if l.Name == light.Name {
			return fmt.Errorf("light %q already exists in room %q", light.Name, room)
		}
	}
	s.data.Rooms[idx].Lights = append(s.data.Rooms[idx].Lights, lightRecord{
		Name:        light.Name,
		Description: light.Description,
		State:       light.State,
	})
	return s.saveLocked()
}

func (s *Store) UserIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.data.Users))
	for _, u := range s.data.Users {
		ids = append(ids, u.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) GetSettings(_ context.Context, userID int64) (domain.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.userIndex[userID]
	if !ok {
		return domain.UserSettings{}, domain.ErrUserNotFound
	}
	settings := s.data.Users[idx].Settings
	if settings == nil {
		return domain.UserSettings{}, domain.ErrSettingsNotFound
	}
	return *settings, nil
}

// UpdateSettings runs fn on a copy of the record and only stores it when fn
// succeeds, so a rejected value leaves nothing half applied.
func (s *Store) UpdateSettings(_ context.Context, userID int64, fn func(*domain.UserSettings) error) (domain.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.userIndex[userID]
	if !ok {
		return domain.UserSettings{}, domain.ErrUserNotFound
	}
	current := s.data.Users[idx].Settings
	if current == nil {
		return domain.UserSettings{}, domain.ErrSettingsNotFound
	}

	updated := *current
	if err := fn(&updated); err != nil {
		return domain.UserSettings{}, err
	}
	updated.UserID = userID
	updated.Normalize()

	previous := *current
	*current = updated
	if err := s.saveLocked(); err != nil {
		*current = previous
		return domain.UserSettings{}, fmt.Errorf("saving settings: %w", err)
	}
	return updated, nil
}

func (s *Store) FindLight(_ context.Context, owner int64, room, light string) (domain.Light, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, l, ok := s.lightLocked(owner, room, light)
	if !ok {
		return domain.Light{}, domain.ErrNotFound
	}
	return toLight(owner, s.data.Rooms[r], s.data.Rooms[r].Lights[l]), nil
}

func (s *Store) SetLightState(_ context.Context, owner int64, room, light string, state domain.LightState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, l, ok := s.lightLocked(owner, room, light)
	if !ok {
		return domain.ErrNotFound
	}

	rec := &s.data.Rooms[r].Lights[l]
	previous := rec.State
	rec.State = state
	if err := s.saveLocked(); err != nil {
		rec.State = previous
		return fmt.Errorf("saving light state: %w", err)
	}
	return nil
}

// ListLights returns the owner's lights ordered by room name.
func (s *Store) ListLights(_ context.Context, owner int64) ([]domain.Light, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []roomRecord
	for _, r := range s.data.Rooms {
		if r.Owner == owner {
			rooms = append(rooms, r)
		}
	}
	sort.SliceStable(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })

	lights := make([]domain.Light, 0)
	for _, r := range rooms {
		for _, l := range r.Lights {
			lights = append(lights, toLight(owner, r, l))
		}
	}
	return lights, nil
}

func (s *Store) lightLocked(owner int64, room, light string) (int, int, bool) {
	r, ok := s.roomIndex[roomKey{owner, room}]
	if !ok {
		return 0, 0, false
	}
	for i, l := range s.data.Rooms[r].Lights {
		if l.Name == light {
			return r, i, true
		}
	}
	return 0, 0, false
}

func (s *Store) reindex() {
	s.userIndex = make(map[int64]int, len(s.data.Users))
	for i, u := range s.data.Users {
		s.userIndex[u.ID] = i
	}
	s.roomIndex = make(map[roomKey]int, len(s.data.Rooms))
	for i, r := range s.data.Rooms {
		s.roomIndex[roomKey{r.Owner, r.Name}] = i
	}
}

// saveLocked writes the whole dataset atomically. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating store dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing store: %w", err)
	}
	return nil
}

func toLight(owner int64, r roomRecord, l lightRecord) domain.Light {
	return domain.Light{
		Owner:       owner,
		Room:        r.Name,
		Name:        l.Name,
		Description: l.Description,
		State:       l.State,
	}
}
