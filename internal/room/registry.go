// Package room holds the authoritative in-memory state for every
// active coding room: shared code buffer, ordered event history, and
// the latest execution outcome.
package room

import (
	"sync"

	"github.com/bhageshghuge/Collaborative-Coding-Platform/internal/exec"
)

// EventType tags an entry in a room's history.
type EventType string

const (
	EventJoin  EventType = "join"
	EventLeave EventType = "leave"
	EventChat  EventType = "chat"
)

// Event is one line of room history. History is append-only: entries
// are never edited or removed while the room lives.
type Event struct {
	Type EventType `json:"type"`
	User string    `json:"user"`
	Text string    `json:"text"`
}

// Room is the state shared by everyone in one room.
type Room struct {
	Code     string
	Messages []Event
	Output   exec.Result
}

// Snapshot is a deep copy of room state handed to late joiners.
type Snapshot struct {
	Code     string      `json:"code"`
	Messages []Event     `json:"messages"`
	Output   exec.Result `json:"output"`
}

// Registry maps room IDs to rooms. All mutations are serialized by a
// single mutex, so no interleaving of two operations on the same room
// can produce a torn read. The registry does no I/O.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: map[string]*Room{}}
}

// Ensure returns the room for id, creating an empty one if needed.
// Idempotent: an existing room is returned untouched.
func (r *Registry) Ensure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[id] == nil {
		r.rooms[id] = &Room{Messages: []Event{}}
	}
}

// RecordEvent appends ev to the room's history. Reports false when the
// room is unknown; the event is dropped in that case.
func (r *Registry) RecordEvent(id string, ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[id]
	if rm == nil {
		return false
	}
	rm.Messages = append(rm.Messages, ev)
	return true
}

// SetCode overwrites the room's code buffer. Last writer wins; there
// is no merge. Reports false when the room is unknown.
func (r *Registry) SetCode(id, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[id]
	if rm == nil {
		return false
	}
	rm.Code = code
	return true
}

// SetOutput overwrites the room's latest execution outcome.
// Reports false when the room is unknown.
func (r *Registry) SetOutput(id string, out exec.Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[id]
	if rm == nil {
		return false
	}
	rm.Output = out
	return true
}

// RemoveIfEmpty deletes the room when its live member count is zero.
// A later join with the same id starts from fresh state; history does
// not survive full evacuation.
func (r *Registry) RemoveIfEmpty(id string, memberCount int) bool {
	if memberCount > 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[id] == nil {
		return false
	}
	delete(r.rooms, id)
	return true
}

// Snapshot returns a deep copy of the room's current state, safe to
// hand out without further locking.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[id]
	if rm == nil {
		return Snapshot{}, false
	}
	msgs := make([]Event, len(rm.Messages))
	copy(msgs, rm.Messages)
	return Snapshot{Code: rm.Code, Messages: msgs, Output: rm.Output}, true
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
