// Package websocket is the voice gateway: each connection owns one live
// session controller, driven by JSON control frames and binary microphone
// audio, and mirrored back as state snapshots and base64 audio chunks.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/repositories"
	"github.com/grovesolutions/sapling-live/internal/codec"
	"github.com/grovesolutions/sapling-live/internal/session"
	"github.com/grovesolutions/sapling-live/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames

	// connectTimeout bounds the credential fetch plus dial of one connect
	// command.
	connectTimeout = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Auth happens before the upgrade; cross-origin browser clients are
		// expected.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active gateway clients and owns the shared
// collaborators their session controllers are built from.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	tokens      repositories.CredentialService
	dialer      repositories.LiveDialer
	transcripts *usecase.TranscriptService

	logger *zap.Logger
}

// NewHub creates a new voice gateway hub
func NewHub(
	tokens repositories.CredentialService,
	dialer repositories.LiveDialer,
	transcripts *usecase.TranscriptService,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		tokens:      tokens,
		dialer:      dialer,
		transcripts: transcripts,
		logger:      logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if previous, ok := h.clients[client.clientID]; ok {
				// One session per client; the newer connection wins.
				previous.conn.Close()
			}
			h.clients[client.clientID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.clientID]; ok && current == client {
				delete(h.clients, client.clientID)
				close(client.send)
			}
			h.mu.Unlock()
			client.shutdown()
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))
		}
	}
}

// SweepExpired disconnects sessions whose ephemeral credential has lapsed.
// The provider would drop them anyway; sweeping makes the transition visible
// to the client immediately.
func (h *Hub) SweepExpired() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	swept := 0
	for _, c := range clients {
		snap := c.ctrl.Snapshot()
		if snap.Connected && !snap.CredentialExpiry.IsZero() && time.Now().After(snap.CredentialExpiry) {
			h.logger.Info("Disconnecting session with expired credential",
				zap.String("clientID", c.clientID))
			c.ctrl.Disconnect()
			swept++
		}
	}
	return swept
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between one websocket connection and its session
// controller.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Authenticated client ID for this connection
	clientID string

	// Logger
	logger *zap.Logger

	ctrl      *session.Controller
	cancelSub func()

	// audioIn feeds binary microphone frames into the controller's capture
	// source while recording is active.
	audioIn chan []float32

	closeOnce sync.Once
}

// HandleWebSocketWithAuth handles websocket requests with a pre-authenticated
// client ID. Each accepted connection gets its own session controller.
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	// Distinguishes successive connections from the same client in logs.
	connLogger := logger.With(
		zap.String("clientID", clientID),
		zap.String("connID", uuid.NewString()))

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, 256),
		clientID: clientID,
		logger:   connLogger,
		audioIn:  make(chan []float32, 64),
	}
	client.ctrl = session.NewController(session.Dependencies{
		Credentials: hub.tokens,
		Dialer:      hub.dialer,
		Capture:     &wsCaptureOpener{client: client},
		Playback:    newWSPlaybackSink(client),
	}, connLogger)

	snapshots, cancel := client.ctrl.Subscribe()
	client.cancelSub = cancel
	go client.statePump(snapshots)

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// shutdown archives the transcript and releases the session. Called from the
// hub when the client unregisters.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		snap := c.ctrl.Snapshot()
		c.cancelSub()
		c.ctrl.Dispose()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.hub.transcripts.Archive(ctx, c.clientID, snap.VoiceName, snap.Transcript); err != nil {
			c.logger.Error("Failed to archive transcript on shutdown", zap.Error(err))
		}
	})
}

// statePump forwards controller snapshots to the peer as state frames.
func (c *Client) statePump(snapshots <-chan session.Snapshot) {
	for snap := range snapshots {
		c.enqueueJSON(CreateStateMessage(snap))
	}
}

// enqueueJSON marshals msg onto the send channel, dropping the frame when the
// peer cannot keep up.
func (c *Client) enqueueJSON(msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal outbound frame", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Dropping outbound frame: send buffer full")
	}
}

// readPump pumps messages from the websocket connection to the controller.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			// Process JSON control frames
			c.processCommand(message)
		case websocket.BinaryMessage:
			// Process binary microphone audio directly
			c.processBinaryAudioFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the controller to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processCommand dispatches one control frame to the session controller.
func (c *Client) processCommand(message []byte) {
	cmd, err := ParseCommand(message)
	if err != nil {
		c.logger.Warn("Rejected control frame", zap.Error(err))
		c.enqueueJSON(CreateErrorMessage("invalid_command", err.Error()))
		return
	}

	switch cmd.Type {
	case MessageTypeConnect:
		// Connect blocks on the credential fetch and dial; run it off the read
		// loop so a disconnect frame can still supersede it.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			if err := c.ctrl.Connect(ctx, session.Config{
				SystemInstruction: cmd.SystemInstruction,
				VoiceName:         cmd.VoiceName,
			}); err != nil {
				c.logger.Warn("Connect command failed", zap.Error(err))
			}
		}()

	case MessageTypeDisconnect:
		c.ctrl.Disconnect()

	case MessageTypeSendText:
		c.ctrl.SendText(cmd.Text)

	case MessageTypeStartRecording:
		if err := c.ctrl.StartRecording(context.Background()); err != nil {
			c.logger.Warn("Start recording command failed", zap.Error(err))
		}

	case MessageTypeStopRecording:
		c.ctrl.StopRecording()

	case MessageTypeStopAudio:
		c.ctrl.StopAudio()

	case MessageTypeClearMessages:
		c.ctrl.ClearMessages()

	case MessageTypePing:
		c.enqueueJSON(CreatePongMessage(""))
	}
}

// processBinaryAudioFrame feeds one microphone frame into the capture source.
// Frames arriving while the controller is not recording are dropped.
func (c *Client) processBinaryAudioFrame(data []byte) {
	if len(data) < 2 {
		return
	}
	samples := codec.BytesToFloat(data)
	select {
	case c.audioIn <- samples:
	default:
		c.logger.Debug("Dropping microphone frame: capture buffer full",
			zap.Int("samples", len(samples)))
	}
}
