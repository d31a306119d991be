package application

import "sync"

// StatusTable maps user IDs to the last observed online state. All access
// goes through its methods; each one holds the lock for a single read or
// write only.
type StatusTable struct {
	mu     sync.Mutex
	online map[int64]bool
}

func NewStatusTable() *StatusTable {
	return &StatusTable{online: make(map[int64]bool)}
}

// Get returns the stored state and whether the user has been observed yet.
func (t *StatusTable) Get(userID int64) (online, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	online, known = t.online[userID]
	return online, known
}

// Online treats unknown users as offline.
func (t *StatusTable) Online(userID int64) bool {
	online, _ := t.Get(userID)
	return online
}

// Set stores the state and returns the previous one.
func (t *StatusTable) Set(userID int64, online bool) (previous, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	previous, known = t.online[userID]
	t.online[userID] = online
	return previous, known
}

// Toggle flips the stored state and returns the new value.
func (t *StatusTable) Toggle(userID int64) (online, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, known = t.online[userID]
	online = !t.online[userID]
	t.online[userID] = online
	return online, known
}

func (t *StatusTable) Snapshot() map[int64]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int64]bool, len(t.online))
	for id, online := range t.online {
		out[id] = online
	}
	return out
}
