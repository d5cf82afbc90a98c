// Package chattest runs an in-process fake of the campus backend: the REST
// resources the messaging core consumes and the socket endpoint it connects
// to. Tests seed it with subjects and backlogs, then drive pushes and
// connection drops against a real client.
package chattest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/campusconnect/messaging/models"
	"github.com/campusconnect/messaging/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// tokenSecret signs test tokens; the client never verifies, the fake server
// does not either.
const tokenSecret = "chattest-secret"

// MakeToken mints a bearer token carrying the campus claims the core reads
func MakeToken(userID, name, role string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   userID,
		"name": name,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(tokenSecret))
	if err != nil {
		panic(err)
	}
	return signed
}

// client is one connected socket peer
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
	name   string
	role   string
	rooms  map[models.RoomKey]bool
}

// Server is the fake campus backend
type Server struct {
	httpSrv *httptest.Server

	mu       sync.Mutex
	seq      int
	clients  map[*client]bool
	history  map[models.RoomKey][]models.Message
	clubs    map[string]json.RawMessage
	projects map[string]json.RawMessage
}

// NewServer starts the fake backend
func NewServer() *Server {
	s := &Server{
		clients:  make(map[*client]bool),
		history:  make(map[models.RoomKey][]models.Message),
		clubs:    make(map[string]json.RawMessage),
		projects: make(map[string]json.RawMessage),
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/messages/:room", s.handleHistory)
	router.GET("/clubs/:id", s.handleClub)
	router.GET("/projects/:id", s.handleProject)
	router.POST("/:scope/discussion/upload", s.handleUpload)
	router.GET("/ws", s.handleSocket)

	s.httpSrv = httptest.NewServer(router)
	return s
}

// BaseURL is the REST base URL
func (s *Server) BaseURL() string {
	return s.httpSrv.URL
}

// SocketURL is the realtime endpoint URL
func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + "/ws"
}

// Close shuts the fake backend down
func (s *Server) Close() {
	s.DropConnections()
	s.httpSrv.Close()
}

// SeedHistory sets the durable backlog for a room
func (s *Server) SeedHistory(room models.RoomKey, msgs ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[room] = append(s.history[room], msgs...)
}

// SeedClub installs the raw club payload served for an id. Raw JSON so tests
// can exercise both the bare-id and embedded-object relationship shapes.
func (s *Server) SeedClub(id string, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clubs[id] = json.RawMessage(payload)
}

// SeedProject installs the raw project payload served for an id
func (s *Server) SeedProject(id string, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[id] = json.RawMessage(payload)
}

// Push broadcasts a server-originated message to a room's subscribers and
// records it in the backlog.
func (s *Server) Push(msg models.Message) {
	s.mu.Lock()
	if msg.ID == "" {
		s.seq++
		msg.ID = fmt.Sprintf("srv%d", s.seq)
	}
	s.history[msg.Room] = append(s.history[msg.Room], msg)
	s.mu.Unlock()

	s.broadcast(msg.Room, transport.EventMessageNew, msg, nil)
}

// PushOnline broadcasts a presence snapshot for a room
func (s *Server) PushOnline(room models.RoomKey, users []string) {
	s.broadcast(room, transport.EventOnlineUsers, transport.OnlineUsersPayload{Room: room, Users: users}, nil)
}

// PushTyping broadcasts a typing notification for a room
func (s *Server) PushTyping(room models.RoomKey, userID, name string) {
	s.broadcast(room, transport.EventUserTyping, transport.UserTypingPayload{Room: room, UserID: userID, Name: name}, nil)
}

// DropConnections force-closes every live socket, as a flaky network would
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
}

// ConnectionCount reports the number of live sockets
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// JoinedRooms reports the rooms a user currently has joined
func (s *Server) JoinedRooms(userID string) []models.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []models.RoomKey
	for c := range s.clients {
		if c.userID != userID {
			continue
		}
		for room := range c.rooms {
			keys = append(keys, room)
		}
	}
	return keys
}

func (s *Server) handleHistory(c *gin.Context) {
	room := models.RoomKey(c.Param("room"))

	s.mu.Lock()
	msgs := append([]models.Message(nil), s.history[room]...)
	s.mu.Unlock()

	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleClub(c *gin.Context) {
	s.mu.Lock()
	payload, ok := s.clubs[c.Param("id")]
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "club not found"})
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) handleProject(c *gin.Context) {
	s.mu.Lock()
	payload, ok := s.projects[c.Param("id")]
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field missing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url": fmt.Sprintf("%s/uploads/%s/%s", s.httpSrv.URL, c.Param("scope"), file.Filename),
	})
}

// handleSocket upgrades the connection and runs the pumps
func (s *Server) handleSocket(c *gin.Context) {
	userID, name, role := identityFromRequest(c.Request)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	peer := &client{
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
		name:   name,
		role:   role,
		rooms:  make(map[models.RoomKey]bool),
	}

	s.mu.Lock()
	s.clients[peer] = true
	s.mu.Unlock()

	go s.writePump(peer)
	s.readPump(peer)
}

func identityFromRequest(r *http.Request) (userID, name, role string) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		return "", "", ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", "", ""
	}
	userID, _ = claims["id"].(string)
	name, _ = claims["name"].(string)
	role, _ = claims["role"].(string)
	return userID, name, role
}

func (s *Server) readPump(peer *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, peer)
		close(peer.send)
		s.mu.Unlock()
		_ = peer.conn.Close()
	}()

	for {
		_, data, err := peer.conn.ReadMessage()
		if err != nil {
			return
		}

		var env transport.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Event {
		case transport.EventJoinRoom:
			var payload transport.JoinPayload
			if env.Decode(&payload) == nil {
				s.mu.Lock()
				peer.rooms[payload.Room] = true
				s.mu.Unlock()
				s.broadcast(payload.Room, transport.EventOnlineUsers, transport.OnlineUsersPayload{
					Room:  payload.Room,
					Users: s.onlineIn(payload.Room),
				}, nil)
			}

		case transport.EventLeaveRoom:
			var payload transport.JoinPayload
			if env.Decode(&payload) == nil {
				s.mu.Lock()
				delete(peer.rooms, payload.Room)
				s.mu.Unlock()
			}

		case transport.EventMessage:
			var payload transport.OutboundMessage
			if env.Decode(&payload) == nil {
				s.mu.Lock()
				s.seq++
				msg := models.Message{
					ID:        fmt.Sprintf("srv%d", s.seq),
					Room:      payload.Room,
					From:      models.Sender{ID: peer.userID, Name: peer.name, Role: peer.role},
					Text:      payload.Text,
					Meta:      payload.Meta,
					CreatedAt: time.Now(),
					ClientID:  payload.ClientID,
				}
				s.history[payload.Room] = append(s.history[payload.Room], msg)
				s.mu.Unlock()

				s.broadcast(payload.Room, transport.EventMessageNew, msg, nil)
			}

		case transport.EventTyping:
			var payload transport.TypingPayload
			if env.Decode(&payload) == nil {
				s.broadcast(payload.Room, transport.EventUserTyping, transport.UserTypingPayload{
					Room:   payload.Room,
					UserID: peer.userID,
					Name:   peer.name,
				}, peer)
			}
		}
	}
}

func (s *Server) writePump(peer *client) {
	for data := range peer.send {
		_ = peer.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := peer.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = peer.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// broadcast delivers an event to every peer joined to the room, skipping
// excluded (the typing sender does not hear their own typing back).
func (s *Server) broadcast(room models.RoomKey, event string, payload interface{}, exclude *client) {
	env, err := transport.NewEnvelope(event, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for peer := range s.clients {
		if peer == exclude || !peer.rooms[room] {
			continue
		}
		select {
		case peer.send <- data:
		default:
		}
	}
}

// onlineIn lists users joined to a room
func (s *Server) onlineIn(room models.RoomKey) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []string
	for peer := range s.clients {
		if peer.rooms[room] {
			users = append(users, peer.userID)
		}
	}
	return users
}
