// Package presence tracks who is in a room and who is typing. Both signals
// are advisory UI state: they never gate or delay message delivery.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTypingWindow is how long a typing signal stays live without a refresh
const DefaultTypingWindow = 2 * time.Second

type typingEntry struct {
	name      string
	expiresAt time.Time
}

type roomState struct {
	online map[string]bool
	typing map[string]typingEntry
}

// Tracker maintains per-room presence and typing state. Typing flags expire
// on their own after the configured window unless refreshed by another
// typing event, and are cleared early when that user's message arrives.
type Tracker struct {
	window time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomState
}

// NewTracker creates a tracker with the given typing window; zero or
// negative means DefaultTypingWindow.
func NewTracker(window time.Duration, logger zerolog.Logger) *Tracker {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &Tracker{
		window: window,
		logger: logger,
		now:    time.Now,
		rooms:  make(map[string]*roomState),
	}
}

func (t *Tracker) room(key string) *roomState {
	state, ok := t.rooms[key]
	if !ok {
		state = &roomState{
			online: make(map[string]bool),
			typing: make(map[string]typingEntry),
		}
		t.rooms[key] = state
	}
	return state
}

// SetOnline replaces the online participant set for a room. The server sends
// the full set on every change, so this is a replace, not a merge.
func (t *Tracker) SetOnline(roomKey string, userIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.room(roomKey)
	state.online = make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		state.online[id] = true
	}
}

// Online returns the sorted online user ids for a room
func (t *Tracker) Online(roomKey string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.rooms[roomKey]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(state.online))
	for id := range state.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnlineCount returns the number of online participants in a room
func (t *Tracker) OnlineCount(roomKey string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.rooms[roomKey]
	if !ok {
		return 0
	}
	return len(state.online)
}

// Touch records a typing event for a user, refreshing the expiry window
func (t *Tracker) Touch(roomKey, userID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.room(roomKey)
	state.typing[userID] = typingEntry{
		name:      name,
		expiresAt: t.now().Add(t.window),
	}
}

// StopTyping drops a user's typing flag immediately. Called when that user's
// message arrives: a sent message ends the typing state without waiting out
// the window.
func (t *Tracker) StopTyping(roomKey, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.rooms[roomKey]; ok {
		delete(state.typing, userID)
	}
}

// Typing returns the display names of users currently typing in a room,
// excluding excludeID (pass the viewer's own id so their typing does not
// show to themselves). Expired entries are swept on read; there is no
// background timer.
func (t *Tracker) Typing(roomKey, excludeID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.rooms[roomKey]
	if !ok {
		return nil
	}

	now := t.now()
	names := make([]string, 0, len(state.typing))
	for id, entry := range state.typing {
		if !entry.expiresAt.After(now) {
			delete(state.typing, id)
			continue
		}
		if id == excludeID {
			continue
		}
		names = append(names, entry.name)
	}
	sort.Strings(names)
	return names
}

// IsTyping reports whether anyone other than excludeID is typing in a room
func (t *Tracker) IsTyping(roomKey, excludeID string) bool {
	return len(t.Typing(roomKey, excludeID)) > 0
}

// Clear wipes all presence and typing state for a room, on leave
func (t *Tracker) Clear(roomKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.rooms, roomKey)
	t.logger.Debug().Str("room", roomKey).Msg("Presence state cleared")
}
