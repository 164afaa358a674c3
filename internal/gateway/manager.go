// Package gateway accepts WebSocket connections, binds them to session
// rooms and fans committed state changes out to every member. All broadcasts
// for all sessions flow through one serialized goroutine, which is what
// preserves per-session causal order: a client can never observe a reveal
// before the votes that preceded it in commit order.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pointdeck/internal/models"
)

// ConnectionConfig holds tunables for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Connection represents one WebSocket client. A connection may be bound to
// several session rooms; memberships and roles are tracked so disconnects
// can mark the participant offline everywhere they joined.
type Connection struct {
	ID      string
	UserID  uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *Manager

	ConnectedAt time.Time
	LastPing    time.Time

	// sendClosed is touched only by the manager's Start goroutine,
	// which is the sole writer to and closer of Send.
	sendClosed bool

	mu    sync.Mutex
	roles map[uuid.UUID]models.ParticipantRole
}

// bindSession records the connection's membership and role for a session.
func (c *Connection) bindSession(sessionID uuid.UUID, role models.ParticipantRole) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles[sessionID] = role
}

// memberOf reports whether the connection joined the session.
func (c *Connection) memberOf(sessionID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.roles[sessionID]
	return ok
}

// facilitatorOf reports whether the connection joined the session as its
// facilitator.
func (c *Connection) facilitatorOf(sessionID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roles[sessionID] == models.RoleFacilitator
}

// sessions returns the session rooms the connection has joined.
func (c *Connection) sessions() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uuid.UUID, 0, len(c.roles))
	for id := range c.roles {
		out = append(out, id)
	}
	return out
}

// broadcastMessage is one queued fan-out unit. A non-nil Target narrows
// delivery to a single connection.
type broadcastMessage struct {
	SessionID       uuid.UUID
	FacilitatorOnly bool
	Target          *Connection
	Data            []byte
}

// Manager owns the session-keyed connection pools and the serialized
// broadcast loop.
type Manager struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Connection]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh  chan broadcastMessage
	unregisterCh chan *Connection

	// Installed by the message handler before connections are accepted.
	onMessage    func(conn *Connection, raw []byte)
	onDisconnect func(conn *Connection)
}

// NewManager creates a WebSocket connection manager.
func NewManager(config ConnectionConfig) *Manager {
	return &Manager{
		rooms: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:       config,
		broadcastCh:  make(chan broadcastMessage, 1000),
		unregisterCh: make(chan *Connection, 256),
	}
}

// Start processes queued broadcasts and unregistrations until the context
// is cancelled. Run it in exactly one goroutine; the single consumer is
// both the ordering guarantee and what makes closing Send channels safe.
func (m *Manager) Start(ctx context.Context) {
	log.Info().Msg("gateway broadcast loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway broadcast loop shutting down")
			return
		case conn := <-m.unregisterCh:
			m.removeConnection(conn)
		case msg := <-m.broadcastCh:
			m.handleBroadcast(msg)
		}
	}
}

// Upgrade upgrades an authenticated HTTP request to a WebSocket connection
// and starts its read/write pumps.
func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*Connection, error) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        ws,
		Send:        make(chan []byte, 256),
		Manager:     m,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		roles:       make(map[uuid.UUID]models.ParticipantRole),
	}

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", userID.String()).
		Msg("WebSocket connection established")

	return conn, nil
}

// JoinRoom adds the connection to a session's pool.
func (m *Manager) JoinRoom(conn *Connection, sessionID uuid.UUID, role models.ParticipantRole) {
	conn.bindSession(sessionID, role)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[sessionID] == nil {
		m.rooms[sessionID] = make(map[*Connection]bool)
	}
	m.rooms[sessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", sessionID.String()).
		Int("room_size", len(m.rooms[sessionID])).
		Msg("connection joined session room")
}

// removeConnection drops the connection from every room it joined and
// closes its send channel. Called only from the Start goroutine.
func (m *Manager) removeConnection(conn *Connection) {
	m.mu.Lock()
	for _, sessionID := range conn.sessions() {
		if room, ok := m.rooms[sessionID]; ok {
			delete(room, conn)
			if len(room) == 0 {
				delete(m.rooms, sessionID)
			}
		}
	}
	m.mu.Unlock()

	if !conn.sendClosed {
		conn.sendClosed = true
		close(conn.Send)
		log.Info().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID.String()).
			Msg("connection unregistered")
	}
}

// ToSession queues an event for every connection in the session room.
// Implements the coordinator's Broadcaster contract.
func (m *Manager) ToSession(sessionID uuid.UUID, event string, payload interface{}) {
	m.enqueue(broadcastMessage{SessionID: sessionID}, event, payload)
}

// ToFacilitators queues an event for facilitator connections only.
func (m *Manager) ToFacilitators(sessionID uuid.UUID, event string, payload interface{}) {
	m.enqueue(broadcastMessage{SessionID: sessionID, FacilitatorOnly: true}, event, payload)
}

// SendDirect queues an event for a single connection, bypassing the rooms.
// Used for error events, which go to the offending connection only.
func (m *Manager) SendDirect(conn *Connection, event string, payload interface{}) {
	m.enqueue(broadcastMessage{Target: conn}, event, payload)
}

func (m *Manager) enqueue(msg broadcastMessage, event string, payload interface{}) {
	data, err := json.Marshal(ServerEvent{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal broadcast event")
		return
	}
	msg.Data = data

	select {
	case m.broadcastCh <- msg:
	default:
		log.Warn().
			Str("session_id", msg.SessionID.String()).
			Str("event", event).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast delivers one queued message. Called only from the Start
// goroutine.
func (m *Manager) handleBroadcast(msg broadcastMessage) {
	if msg.Target != nil {
		m.deliver(msg.Target, msg.Data)
		return
	}

	m.mu.RLock()
	room, ok := m.rooms[msg.SessionID]
	if !ok {
		m.mu.RUnlock()
		return
	}

	targets := make([]*Connection, 0, len(room))
	for conn := range room {
		if msg.FacilitatorOnly && !conn.facilitatorOf(msg.SessionID) {
			continue
		}
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	for _, conn := range targets {
		m.deliver(conn, msg.Data)
	}
}

// deliver writes to a connection's send buffer, evicting it when full.
func (m *Manager) deliver(conn *Connection, data []byte) {
	if conn.sendClosed {
		return
	}
	select {
	case conn.Send <- data:
	default:
		// Connection is slow or dead, evict it.
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID.String()).
			Msg("connection send buffer full, closing connection")
		m.removeConnection(conn)
		conn.Conn.Close()
	}
}

// Unregister schedules disconnect cleanup for a connection.
func (m *Manager) Unregister(conn *Connection) {
	select {
	case m.unregisterCh <- conn:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("unregister queue full")
	}
}

// Stats summarizes active connections per session.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	perSession := make(map[string]int)
	for sessionID, room := range m.rooms {
		total += len(room)
		perSession[sessionID.String()] = len(room)
	}

	return map[string]interface{}{
		"total_connections":   total,
		"active_sessions":     len(m.rooms),
		"session_connections": perSession,
	}
}

// writePump pushes queued messages and pings to the peer.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump consumes inbound client messages until the peer goes away, then
// runs disconnect cleanup.
func (c *Connection) readPump() {
	defer func() {
		if c.Manager.onDisconnect != nil {
			c.Manager.onDisconnect(c)
		}
		c.Manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.onMessage != nil {
			c.Manager.onMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
