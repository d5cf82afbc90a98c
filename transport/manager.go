// Package transport owns the single long-lived socket connection to the
// campus realtime endpoint: dialing, the read/write pumps, and the
// reconnect-with-backoff lifecycle. Room bookkeeping lives above it in the
// rooms package; only that layer writes to the connection.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/campusconnect/messaging/pkg/apperrors"
	"github.com/campusconnect/messaging/session"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB

	// Outbound buffer; a full buffer fails the send instead of blocking
	sendBuffer = 64
)

// State of the managed connection
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Options configure the manager
type Options struct {
	// Endpoint is the socket URL, e.g. wss://campus.example.com/ws
	Endpoint         string
	HandshakeTimeout time.Duration

	// Reconnect backoff bounds
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
}

// Manager owns at most one live connection per session. Transport failures
// are absorbed: the manager redials with the existing credentials and only
// ever surfaces a non-fatal Reconnecting state. An explicit Disconnect tears
// the connection down deterministically and stops any redial.
type Manager struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	sess    *session.Session
	conn    *websocket.Conn
	send    chan []byte
	state   State
	gen     int // connection generation; stale pump exits are ignored
	closing bool

	eventFn func(Envelope)
	stateFn func(State)
}

// NewManager creates a disconnected manager
func NewManager(opts Options, logger zerolog.Logger) *Manager {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReconnectInitialInterval <= 0 {
		opts.ReconnectInitialInterval = 500 * time.Millisecond
	}
	if opts.ReconnectMaxInterval <= 0 {
		opts.ReconnectMaxInterval = 30 * time.Second
	}
	return &Manager{
		opts:   opts,
		logger: logger,
		state:  StateDisconnected,
	}
}

// OnEvent registers the single inbound event consumer. Must be set before
// Connect; the rooms multiplexer is the intended consumer.
func (m *Manager) OnEvent(fn func(Envelope)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventFn = fn
}

// OnStateChange registers the state transition observer. The Ready
// transition is the signal to re-issue room joins after a reconnect.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateFn = fn
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the connection is ready for traffic
func (m *Manager) Connected() bool {
	return m.State() == StateReady
}

// Connect establishes the transport for the given session. Without a session
// no connection is attempted: unauthenticated viewers get REST reads only.
// Any previous connection is torn down first, keeping the "at most one live
// connection per session" invariant.
func (m *Manager) Connect(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return apperrors.ErrNoSession
	}

	// Deterministic teardown before any new dial
	m.Disconnect()

	m.mu.Lock()
	m.sess = sess
	m.closing = false
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	if err := m.dial(ctx); err != nil {
		m.mu.Lock()
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return apperrors.NewTransportError(err.Error())
	}
	return nil
}

// Disconnect tears the connection down and stops any reconnect attempt.
// Safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	m.gen++
	conn := m.conn
	m.conn = nil
	m.sess = nil
	if m.send != nil {
		close(m.send)
		m.send = nil
	}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// Send queues an envelope for delivery. Fails fast with ErrNotConnected
// while the transport is down so callers can preserve their drafts.
func (m *Manager) Send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	m.mu.Lock()
	send := m.send
	ready := m.state == StateReady
	m.mu.Unlock()

	if !ready || send == nil {
		return apperrors.ErrNotConnected
	}

	select {
	case send <- data:
		return nil
	default:
		m.logger.Warn().Str("event", env.Event).Msg("Send buffer full, dropping outbound event")
		return apperrors.NewTransportError("send buffer full")
	}
}

// dial performs one connection attempt and starts the pumps on success
func (m *Manager) dial(ctx context.Context) error {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		return apperrors.ErrNoSession
	}

	dialer := websocket.Dialer{HandshakeTimeout: m.opts.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+sess.Token)

	conn, _, err := dialer.DialContext(ctx, m.opts.Endpoint, header)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closing {
		// Disconnect raced the dial; drop the fresh connection
		m.mu.Unlock()
		_ = conn.Close()
		return apperrors.ErrNotConnected
	}
	m.gen++
	gen := m.gen
	m.conn = conn
	m.send = make(chan []byte, sendBuffer)
	send := m.send
	m.setStateLocked(StateReady)
	m.mu.Unlock()

	m.logger.Info().Str("endpoint", m.opts.Endpoint).Str("userID", sess.UserID).Msg("Realtime connection established")

	go m.writePump(conn, send)
	go m.readPump(conn, gen)
	return nil
}

// readPump pumps events from the connection to the registered consumer
func (m *Manager) readPump(conn *websocket.Conn, gen int) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Info().Msg("Realtime connection closed")
			} else {
				m.logger.Warn().Err(err).Msg("Realtime connection lost")
			}
			m.handleDrop(gen)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.logger.Error().Err(err).Str("frame", string(data)).Msg("Failed to unmarshal inbound frame")
			continue
		}

		m.mu.Lock()
		stale := gen != m.gen
		eventFn := m.eventFn
		m.mu.Unlock()
		if stale {
			return
		}
		if eventFn != nil {
			eventFn(env)
		}
	}
}

// writePump pumps queued frames to the connection and keeps the ping cycle
func (m *Manager) writePump(conn *websocket.Conn, send chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleDrop reacts to a lost connection: unless the drop was an explicit
// Disconnect, redial with the existing credentials under backoff. Reconnect
// never restores room subscriptions; the rooms layer re-issues joins when it
// observes the Ready transition.
func (m *Manager) handleDrop(gen int) {
	m.mu.Lock()
	if m.closing || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.send != nil {
		close(m.send)
		m.send = nil
	}
	m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	go m.reconnectLoop(gen)
}

// reconnectLoop redials until it succeeds or the manager is torn down
func (m *Manager) reconnectLoop(gen int) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.opts.ReconnectInitialInterval
	policy.MaxInterval = m.opts.ReconnectMaxInterval
	policy.MaxElapsedTime = 0 // retry until told to stop

	attempt := func() error {
		m.mu.Lock()
		if m.closing || gen != m.gen {
			m.mu.Unlock()
			return backoff.Permanent(apperrors.ErrNotConnected)
		}
		m.mu.Unlock()
		return m.dial(context.Background())
	}

	notify := func(err error, wait time.Duration) {
		m.logger.Warn().Err(err).Dur("retryIn", wait).Msg("Reconnect attempt failed")
	}

	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		m.logger.Debug().Err(err).Msg("Reconnect abandoned")
	}
}

// setStateLocked transitions the state and notifies the observer. The
// observer runs outside the lock via goroutine to keep re-join traffic from
// deadlocking on Send.
func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	m.state = next
	if m.stateFn != nil {
		fn := m.stateFn
		go fn(next)
	}
}
