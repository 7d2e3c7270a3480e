package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/layout"
)

// WebSocket message types for the live preview protocol
const (
	// Client -> Server messages
	MsgTypeViewport = "viewport"
	MsgTypePing     = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeLayout    = "layout"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// ViewportDebounce coalesces bursts of viewport messages (window resizes).
const ViewportDebounce = 50 * time.Millisecond

// WSMessage is the envelope of every websocket frame.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSLayoutPayload is pushed after every plate change or viewport change.
type WSLayoutPayload struct {
	Revision int           `json:"revision"`
	Layout   layout.Result `json:"layout"`
}

// WSErrorResponse describes a protocol or lookup failure.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// WebSocketHandler pushes layouts to connected preview surfaces
type WebSocketHandler struct {
	sessions SessionManager
	layout   layout.Config
	upgrader websocket.Upgrader
	logger   *log.Logger
	debounce time.Duration
}

// NewWebSocketHandler creates a new live layout handler
func NewWebSocketHandler(sessions SessionManager, cfg layout.Config, logger *log.Logger) *WebSocketHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WebSocketHandler{
		sessions: sessions,
		layout:   cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		logger:   logger,
		debounce: ViewportDebounce,
	}
}

// HandleWebSocket upgrades the connection and streams layouts for one session
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	if _, err := wsh.sessions.Get(ctx, id); err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	changes := wsh.sessions.Events().Subscribe(id)
	defer wsh.sessions.Events().Unsubscribe(id, changes)

	wsh.logger.Debug("preview connected", "session", id)

	incoming := make(chan WSMessage)
	readDone := make(chan struct{})
	go wsh.readLoop(ws, incoming, readDone)

	vp := DefaultViewport
	wsh.sendMessage(ws, WSMessage{Type: MsgTypeConnected, ID: id, Timestamp: time.Now().UnixMilli()})
	wsh.pushLayout(ctx, ws, id, vp)

	// Stopped timer whose channel is drained; armed on viewport messages.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-readDone:
			wsh.logger.Debug("preview disconnected", "session", id)
			return nil

		case <-changes:
			wsh.pushLayout(ctx, ws, id, vp)

		case msg := <-incoming:
			switch msg.Type {
			case MsgTypePing:
				wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
			case MsgTypeViewport:
				next, ok := parseViewport(msg.Payload)
				if !ok {
					wsh.sendError(ws, "viewport needs positive widthPx and heightPx", "INVALID_VIEWPORT")
					continue
				}
				vp = next
				timer.Reset(wsh.debounce)
			default:
				wsh.sendError(ws, "Unknown message type: "+msg.Type, "INVALID_TYPE")
			}

		case <-timer.C:
			wsh.pushLayout(ctx, ws, id, vp)
		}
	}
}

// readLoop forwards client frames until the connection closes.
func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, out chan<- WSMessage, done chan<- struct{}) {
	defer close(done)
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.logger.Warn("websocket read failed", "err", err)
			}
			return
		}
		out <- msg
	}
}

func (wsh *WebSocketHandler) pushLayout(ctx context.Context, ws *websocket.Conn, id string, vp layout.Viewport) {
	s, err := wsh.sessions.Get(ctx, id)
	if err != nil {
		wsh.sendError(ws, err.Error(), mapError(err).Code)
		return
	}
	res := layout.Compute(s.Configuration.Plates, s.Configuration.Motif, vp, wsh.layout)
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeLayout,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSLayoutPayload{Revision: s.Revision, Layout: res}),
	})
}

func parseViewport(raw json.RawMessage) (layout.Viewport, bool) {
	var vp layout.Viewport
	if err := json.Unmarshal(raw, &vp); err != nil {
		return layout.Viewport{}, false
	}
	for _, v := range []float64{vp.WidthPx, vp.HeightPx} {
		if !(v > 0) || math.IsInf(v, 0) || v > 1e5 {
			return layout.Viewport{}, false
		}
	}
	return vp, true
}

// Helper methods

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		wsh.logger.Debug("websocket write failed", "type", msg.Type, "err", err)
	}
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message, code string) {
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
