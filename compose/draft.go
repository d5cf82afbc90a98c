// Package compose holds the message being written: its text and, when the
// user picked a reply target, the denormalized snapshot of that target.
package compose

import (
	"strings"
	"sync"

	"github.com/campusconnect/messaging/models"
)

// Draft is the per-room composition state. A rejected send must not lose
// composed input, so the draft survives until a send actually succeeds.
type Draft struct {
	mu    sync.Mutex
	text  string
	reply *models.ReplySnapshot
}

// SetText replaces the draft text
func (d *Draft) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

// Text returns the current draft text
func (d *Draft) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Empty reports whether the draft has no sendable text
func (d *Draft) Empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.TrimSpace(d.text) == ""
}

// AttachReply captures the reply target as a snapshot taken now. No round
// trip to the store happens: the preview other participants see is this
// snapshot, even if the original message is later altered upstream. Picking
// a new target replaces any pending one.
func (d *Draft) AttachReply(target models.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reply = &models.ReplySnapshot{
		MessageID:  target.ID,
		Text:       target.Text,
		SenderName: target.From.Name,
	}
}

// Reply returns the pending reply snapshot, nil when none is pending
func (d *Draft) Reply() *models.ReplySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reply == nil {
		return nil
	}
	snapshot := *d.reply
	return &snapshot
}

// ClearReply drops the pending reply target, keeping the text
func (d *Draft) ClearReply() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reply = nil
}

// Meta builds the outbound payload tag for the draft: a reply variant when a
// target is pending, plain text otherwise.
func (d *Draft) Meta() models.Meta {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reply != nil {
		return models.ReplyMeta(*d.reply)
	}
	return models.TextMeta()
}

// Sent clears the draft after a successful send: text and reply target both
// reset. Call only on success; rejected sends keep the draft intact.
func (d *Draft) Sent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = ""
	d.reply = nil
}
