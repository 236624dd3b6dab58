package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/solowsim/go/internal/game/broadcast"
	"github.com/mcdev12/solowsim/go/internal/game/events"
	"github.com/mcdev12/solowsim/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections of game observers
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	game        Game
	broadcaster Subscriber

	ctx    context.Context
	cancel context.CancelFunc
}

// Connection represents a WebSocket connection to an observer
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Manager *ConnectionManager

	sub       *broadcast.Subscription
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	teamID models.TeamID

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      32,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, g Game, broadcaster Subscriber) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultConnectionConfig().SendBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		game:        g,
		broadcaster: broadcaster,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Manager:     cm,
		sub:         cm.broadcaster.Subscribe(),
		send:        make(chan []byte, cm.config.SendBuffer),
		done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; exists {
		delete(cm.connections, conn)
		log.Info().
			Str("connection_id", conn.ID).
			Str("team_id", string(conn.TeamID())).
			Msg("connection unregistered")
	}
}

// Shutdown closes every open connection.
func (cm *ConnectionManager) Shutdown() {
	cm.cancel()

	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		conn.shutdown()
	}
}

// ConnectionStats summarizes the open connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	Subscribers      int            `json:"subscribers"`
	TeamConnections  map[string]int `json:"team_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	teams := make(map[string]int)
	for conn := range cm.connections {
		if id := conn.TeamID(); id != "" {
			teams[string(id)]++
		}
	}

	return ConnectionStats{
		TotalConnections: len(cm.connections),
		Subscribers:      cm.broadcaster.SubscriberCount(),
		TeamConnections:  teams,
	}
}

// TeamID is the team the connection joined, if any.
func (c *Connection) TeamID() models.TeamID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teamID
}

func (c *Connection) setTeam(teamID models.TeamID) {
	c.mu.Lock()
	prev := c.teamID
	c.teamID = teamID
	c.mu.Unlock()

	if prev != "" && prev != teamID {
		c.sub.Leave(events.TeamChannel(prev))
	}
	c.sub.Join(events.TeamChannel(teamID))
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sub.Close()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	})
}

// reply queues an event for this connection only.
func (c *Connection) reply(eventType events.Type, round int, payload any) {
	ev, err := events.New(eventType, "", round, payload)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to build reply")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal reply")
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("connection send buffer full, dropping reply")
	}
}

func (c *Connection) replyError(err error) {
	c.reply(events.TypeError, 0, events.ErrorPayload{Message: err.Error()})
}

// writePump sends replies and broadcast events to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}

		case event, ok := <-c.sub.Events():
			if !ok {
				return
			}
			message, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event")
				continue
			}
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
	if err := c.Conn.WriteMessage(messageType, data); err != nil {
		log.Error().
			Err(err).
			Str("connection_id", c.ID).
			Msg("failed to write message to WebSocket")
		return err
	}
	return nil
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer c.shutdown()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage runs one observer command. Commands from a connection are
// processed in order; failures are reported to that connection only.
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.replyError(fmt.Errorf("invalid message: %w", err))
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("type", string(msg.Type)).
		Msg("received client message")

	ctx := c.Manager.ctx
	g := c.Manager.game

	switch msg.Type {
	case ClientJoinTeam:
		var req JoinTeamRequest
		if err := decodeData(msg, &req); err != nil {
			c.replyError(err)
			return
		}
		snapshot, err := g.JoinTeam(ctx, req.TeamID)
		if err != nil {
			c.replyError(err)
			return
		}
		c.setTeam(req.TeamID)
		c.reply(events.TypeGameState, snapshot.Round, snapshot)

	case ClientUpdateTeam:
		var req UpdateTeamRequest
		if err := decodeData(msg, &req); err != nil {
			c.replyError(err)
			return
		}
		if req.TeamID == "" {
			req.TeamID = c.TeamID()
		}
		res, err := g.SubmitDecision(ctx, req.TeamID, req.SavingsRate, req.Policy())
		if err != nil {
			c.reply(events.TypeDecisionSubmitted, 0, events.DecisionSubmittedPayload{Success: false, TeamID: req.TeamID})
			c.replyError(err)
			return
		}
		c.reply(events.TypeDecisionSubmitted, res.Round, events.DecisionSubmittedPayload{
			Success:   true,
			TeamID:    res.TeamID,
			Round:     res.Round,
			Duplicate: res.Duplicate,
		})

	// Lifecycle commands are acknowledged with the resulting snapshot even when
	// they were no-ops and nothing was broadcast.
	case ClientStartGame:
		snapshot, err := startOrResume(ctx, g)
		if err != nil {
			c.replyError(err)
			return
		}
		c.reply(events.TypeGameState, snapshot.Round, snapshot)

	case ClientPauseGame:
		snapshot, err := g.PauseGame(ctx)
		if err != nil {
			c.replyError(err)
			return
		}
		c.reply(events.TypeGameState, snapshot.Round, snapshot)

	case ClientNextRound:
		res, err := g.AdvanceRound(ctx)
		if err != nil {
			c.replyError(err)
			return
		}
		c.reply(events.TypeGameState, res.Round, res.State)

	default:
		c.replyError(errors.New("unknown message type: " + string(msg.Type)))
	}
}
