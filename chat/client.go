// Package chat is the facade of the messaging core: one Client per signed-in
// shell, one RoomView per open conversation. The shell owns the session
// lifecycle; everything below (transport, rooms, history, presence) hangs
// off the Client.
package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/campusconnect/messaging/config"
	"github.com/campusconnect/messaging/models"
	"github.com/campusconnect/messaging/pkg/logger"
	"github.com/campusconnect/messaging/presence"
	"github.com/campusconnect/messaging/rest"
	"github.com/campusconnect/messaging/rooms"
	"github.com/campusconnect/messaging/session"
	"github.com/campusconnect/messaging/transport"
)

// Client is the entry point of the messaging core
type Client struct {
	cfg    *config.Config
	logger zerolog.Logger

	rest    *rest.Client
	conn    *transport.Manager
	tracker *presence.Tracker
	mux     *rooms.Multiplexer

	mu   sync.Mutex
	sess *session.Session
}

// New wires a Client from configuration. The client starts signed out:
// REST reads of public rooms work immediately, the live connection comes up
// on SignIn.
func New(cfg *config.Config, logger zerolog.Logger) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger,
	}

	c.rest = rest.NewClient(cfg.API.BaseURL, cfg.API.Timeout, c.Session, logger.With().Str("component", "rest").Logger())
	c.conn = transport.NewManager(transport.Options{
		Endpoint:                 cfg.Realtime.Endpoint,
		HandshakeTimeout:         cfg.Realtime.HandshakeTimeout,
		ReconnectInitialInterval: cfg.Realtime.ReconnectInitialInterval,
		ReconnectMaxInterval:     cfg.Realtime.ReconnectMaxInterval,
	}, logger.With().Str("component", "transport").Logger())
	c.tracker = presence.NewTracker(cfg.Presence.TypingWindow, logger.With().Str("component", "presence").Logger())
	c.mux = rooms.NewMultiplexer(c.conn, c.tracker, logger.With().Str("component", "rooms").Logger())

	return c
}

// NewDefault wires a Client with process-wide logging configured from the
// Logging section. Shells that manage their own zerolog setup use New.
func NewDefault(cfg *config.Config) *Client {
	logger.Configure(logger.Config{
		Level:  logger.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Format == "pretty",
	})
	return New(cfg, logger.Root())
}

// SignIn decodes the bearer token into the session identity and brings the
// live connection up. Any previous connection is torn down first.
func (c *Client) SignIn(ctx context.Context, token string) error {
	sess, err := session.FromToken(token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	if err := c.conn.Connect(ctx, sess); err != nil {
		// The session stays usable for REST reads; the transport keeps the
		// failure to itself and the shell sees a disconnected state.
		c.logger.Warn().Err(err).Msg("Live connection not established on sign-in")
		return err
	}
	return nil
}

// SignOut tears the connection down deterministically and forgets the
// session. Open RoomViews keep their loaded history but lose live updates
// and write capability.
func (c *Client) SignOut() {
	c.conn.Disconnect()

	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
}

// Session returns the current session, nil when signed out
func (c *Client) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Connected reports whether the live connection is up
func (c *Client) Connected() bool {
	return c.conn.Connected()
}

// viewer returns the session identity pieces the resolvers need
func (c *Client) viewer() (userID, name, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return "", "", ""
	}
	return c.sess.UserID, c.sess.DisplayName, c.sess.Role
}

// uploadScope maps a room to its discussion upload endpoint
func uploadScope(room models.RoomKey) string {
	switch room.Kind() {
	case models.RoomKindProject:
		return "projects/discussion"
	case models.RoomKindClub:
		return "clubs/discussion"
	default:
		return "chat/discussion"
	}
}
