// Package history reconciles a room's durable REST backlog with the live
// push stream into one ordered, de-duplicated message sequence.
package history

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/campusconnect/messaging/models"
	"github.com/campusconnect/messaging/pkg/apperrors"
)

// Fetcher retrieves the durable backlog for a room, ascending by arrival.
// rest.Client satisfies this.
type Fetcher interface {
	Messages(ctx context.Context, room models.RoomKey) ([]models.Message, error)
}

// Log is the merged message sequence for one room. The sequence is always
// consistent with arrival order: the REST backlog seeds it, live messages
// append to it, and nothing is ever reordered after arrival. Out-of-order
// delivery from the transport is not corrected; that is a stated limitation,
// not a bug.
type Log struct {
	room   models.RoomKey
	logger zerolog.Logger

	mu       sync.Mutex
	loaded   bool
	closed   bool
	loadErr  error
	messages []models.Message
	seen     map[string]int // message id -> index in messages
}

// NewLog creates an empty log for the given room
func NewLog(room models.RoomKey, logger zerolog.Logger) *Log {
	return &Log{
		room:   room,
		logger: logger.With().Str("room", room.String()).Logger(),
		seen:   make(map[string]int),
	}
}

// Load performs the single REST fetch of the backlog and seeds the sequence.
// Live messages appended before Load resolves are kept: the fetched backlog
// is placed in front of them and any overlap is dropped by id.
//
// A Load that resolves after Close is discarded entirely, so a room left
// before its history arrived never has state to leak into another room.
// A failed Load leaves the sequence usable (empty history, live appends
// still accepted) and records the error for the retry affordance.
func (l *Log) Load(ctx context.Context, fetcher Fetcher) error {
	backlog, err := fetcher.Messages(ctx, l.room)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.logger.Debug().Msg("Discarding history load for a room already left")
		return apperrors.ErrLogClosed
	}

	if err != nil {
		l.loadErr = apperrors.NewCustomError(apperrors.ErrHistoryLoadFailed, err.Error())
		l.logger.Warn().Err(err).Msg("History load failed, continuing with empty backlog")
		return l.loadErr
	}

	live := l.messages
	l.messages = make([]models.Message, 0, len(backlog)+len(live))
	l.seen = make(map[string]int, len(backlog)+len(live))
	for _, msg := range backlog {
		l.appendLocked(msg)
	}
	for _, msg := range live {
		l.appendLocked(msg)
	}

	l.loaded = true
	l.loadErr = nil
	l.logger.Debug().Int("backlog", len(backlog)).Int("live", len(live)).Msg("History loaded")
	return nil
}

// Append adds one live message to the sequence. It reports false and leaves
// the sequence unchanged when the id is already present: the join race can
// re-deliver a message the REST fetch already included, and duplicates are
// dropped silently rather than surfaced as errors.
func (l *Log) Append(msg models.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	return l.appendLocked(msg)
}

func (l *Log) appendLocked(msg models.Message) bool {
	if msg.ID != "" {
		if _, dup := l.seen[msg.ID]; dup {
			l.logger.Debug().Str("messageID", msg.ID).Msg("Dropped duplicate message")
			return false
		}
		l.seen[msg.ID] = len(l.messages)
	}
	l.messages = append(l.messages, msg)
	return true
}

// Replace swaps the message carrying the given client correlation id for the
// server's copy, preserving its position. Used to reconcile the local echo
// of an outbound send with the authoritative message. Reports false when no
// echo with that correlation id exists (the server copy should then be
// appended normally).
func (l *Log) Replace(clientID string, msg models.Message) bool {
	if clientID == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}

	for i := range l.messages {
		if l.messages[i].ClientID == clientID && l.messages[i].ID == "" {
			if msg.ID != "" {
				if _, dup := l.seen[msg.ID]; dup {
					return false
				}
				l.seen[msg.ID] = i
			}
			l.messages[i] = msg
			return true
		}
	}
	return false
}

// Messages returns a copy of the current sequence in arrival order
func (l *Log) Messages() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the current sequence length
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Loaded reports whether the backlog fetch has completed successfully
func (l *Log) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Err returns the recorded history load failure, nil when healthy
func (l *Log) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadErr
}

// Close discards the log. A Load still in flight resolves into nothing, and
// later Appends are ignored. Close is idempotent.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.messages = nil
	l.seen = nil
}
