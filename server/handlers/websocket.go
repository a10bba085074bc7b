package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/san-kum/helmet-cv/server/metrics"
	"github.com/san-kum/helmet-cv/server/middleware"
	"github.com/san-kum/helmet-cv/server/models"
	"github.com/san-kum/helmet-cv/server/session"
	"go.uber.org/zap"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// WebSocketHandler streams a session's preview events to the page and
// accepts small control messages back.
type WebSocketHandler struct {
	metrics  *metrics.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

type ClientMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func NewWebSocketHandler(m *metrics.Metrics, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		metrics: m,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || slices.Contains(allowedOrigins, "*") {
					return true
				}
				return slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		respondError(c, http.StatusInternalServerError, "NO_SESSION", "Session not available", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	subID, events := sess.Hub.Subscribe()
	defer sess.Hub.Unsubscribe(subID)

	h.metrics.PreviewClients.Inc()
	defer h.metrics.PreviewClients.Dec()

	log := h.logger.With(zap.String("session_id", sess.ID), zap.String("client_ip", c.ClientIP()))
	log.Info("WebSocket client connected")

	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	replies := make(chan ServerMessage, 8)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		h.writeLoop(conn, events, replies, done, log)
	}()

	for {
		var message ClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read failed", zap.Error(err))
			}
			break
		}
		reply := h.handleMessage(sess, &message)
		select {
		case replies <- reply:
		case <-stopped:
		}
	}

	close(done)
	<-stopped
	log.Info("WebSocket client disconnected")
}

func (h *WebSocketHandler) handleMessage(sess *session.Session, message *ClientMessage) ServerMessage {
	switch message.Type {
	case "ping":
		return ServerMessage{Type: "pong", Data: map[string]any{"timestamp": time.Now().Unix()}}
	case "settings":
		var th models.Thresholds
		if err := json.Unmarshal(message.Data, &th); err != nil {
			return errorMessage("Invalid settings format")
		}
		if err := sess.SetThresholds(th); err != nil {
			return errorMessage(err.Error())
		}
		return ServerMessage{Type: "settings_updated", Data: th}
	default:
		h.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		return errorMessage("Unknown message type: " + message.Type)
	}
}

// writeLoop is the only goroutine writing to conn. It forwards hub events
// and replies, and keeps the connection alive with pings. Closing conn on
// a write failure unblocks the reader.
func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, events <-chan session.Event, replies <-chan ServerMessage, done <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				conn.Close()
				return
			}
			err = h.send(conn, ServerMessage{Type: event.Type, Data: event.Data})
		case reply := <-replies:
			err = h.send(conn, reply)
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			log.Debug("WebSocket write failed", zap.Error(err))
			conn.Close()
			return
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, message ServerMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(message)
}

func errorMessage(msg string) ServerMessage {
	return ServerMessage{Type: "error", Data: map[string]any{
		"message":   msg,
		"timestamp": time.Now().Unix(),
	}}
}
