package presence

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const room = "club:7"

// frozenClock lets tests move time by hand
type frozenClock struct {
	now time.Time
}

func (c *frozenClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestTracker() (*Tracker, *frozenClock) {
	clock := &frozenClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(2*time.Second, zerolog.Nop())
	tracker.now = func() time.Time { return clock.now }
	return tracker, clock
}

func TestTypingExpiresAfterWindow(t *testing.T) {
	tracker, clock := newTestTracker()

	tracker.Touch(room, "u2", "Bob")
	if got := tracker.Typing(room, ""); len(got) != 1 || got[0] != "Bob" {
		t.Fatalf("Typing = %v, want [Bob]", got)
	}

	clock.advance(1900 * time.Millisecond)
	if !tracker.IsTyping(room, "") {
		t.Error("typing flag expired before the window elapsed")
	}

	clock.advance(200 * time.Millisecond)
	if tracker.IsTyping(room, "") {
		t.Error("typing flag still live after the window elapsed")
	}
}

func TestTypingRefreshExtendsWindow(t *testing.T) {
	tracker, clock := newTestTracker()

	tracker.Touch(room, "u2", "Bob")
	clock.advance(1500 * time.Millisecond)
	tracker.Touch(room, "u2", "Bob")
	clock.advance(1500 * time.Millisecond)

	if !tracker.IsTyping(room, "") {
		t.Error("refreshed typing flag expired too early")
	}
}

func TestTypingEndsOnMessageSend(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.Touch(room, "u2", "Bob")
	tracker.StopTyping(room, "u2")

	if tracker.IsTyping(room, "") {
		t.Error("typing flag survived the user's own message")
	}
}

func TestTypingExcludesSelf(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.Touch(room, "u1", "Alice")
	tracker.Touch(room, "u2", "Bob")

	got := tracker.Typing(room, "u1")
	if len(got) != 1 || got[0] != "Bob" {
		t.Errorf("Typing excluding u1 = %v, want [Bob]", got)
	}
}

func TestOnlineSetIsReplacedNotMerged(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.SetOnline(room, []string{"u1", "u2", "u3"})
	if got := tracker.OnlineCount(room); got != 3 {
		t.Fatalf("OnlineCount = %d, want 3", got)
	}

	tracker.SetOnline(room, []string{"u2"})
	if got := tracker.Online(room); len(got) != 1 || got[0] != "u2" {
		t.Errorf("Online = %v, want [u2]", got)
	}
}

func TestClearWipesRoomState(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.SetOnline(room, []string{"u1"})
	tracker.Touch(room, "u2", "Bob")
	tracker.Clear(room)

	if tracker.OnlineCount(room) != 0 || tracker.IsTyping(room, "") {
		t.Error("room state survived Clear")
	}

	// Other rooms are untouched
	tracker.SetOnline("project:3", []string{"u1"})
	tracker.Clear(room)
	if tracker.OnlineCount("project:3") != 1 {
		t.Error("Clear leaked into another room")
	}
}
