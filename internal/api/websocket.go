package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the run event stream
const (
	// Client -> Server messages
	MsgTypeRunStop = "run:stop"
	MsgTypePing    = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeRunEvent  = "run:event"
	MsgTypeAck       = "ack"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	outboxSize   = 16
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams run events to connected clients and accepts
// stop requests from them.
type WebSocketHandler struct {
	handler      *Handler
	upgrader     websocket.Upgrader
	maxReadBytes int64
}

// NewWebSocketHandler creates a new WebSocket event handler. maxMessageKB
// limits the size of client messages; zero means 64KB.
func NewWebSocketHandler(h *Handler, maxMessageKB int) *WebSocketHandler {
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	return &WebSocketHandler{
		handler: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The server only listens on a local address
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		maxReadBytes: int64(maxMessageKB) * 1024,
	}
}

// HandleWebSocket upgrades the connection and forwards every run event
// until the client disconnects.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.maxReadBytes)

	events, unsubscribe := wsh.handler.ws.Events()
	defer unsubscribe()

	fmt.Println("[WebSocket] Client connected for run events")

	outbox := make(chan WSMessage, outboxSize)
	closed := make(chan struct{})
	go wsh.readLoop(ws, outbox, closed)

	if err := wsh.sendMessage(ws, WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()}); err != nil {
		return nil
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := wsh.sendMessage(ws, WSMessage{
				Type:      MsgTypeRunEvent,
				ID:        ev.RunID,
				Payload:   mustJSON(ev),
				Timestamp: ev.Time,
			}); err != nil {
				return nil
			}
		case msg := <-outbox:
			if err := wsh.sendMessage(ws, msg); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-closed:
			fmt.Println("[WebSocket] Client disconnected")
			return nil
		}
	}
}

// readLoop handles client messages. Replies go through outbox so that only
// HandleWebSocket writes to the connection.
func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, outbox chan<- WSMessage, closed chan<- struct{}) {
	defer close(closed)
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			return
		}

		var reply WSMessage
		switch msg.Type {
		case MsgTypePing:
			reply = WSMessage{Type: MsgTypePong, ID: msg.ID}
		case MsgTypeRunStop:
			stopped := wsh.handler.ws.Stop()
			reply = WSMessage{Type: MsgTypeAck, ID: msg.ID, Payload: mustJSON(map[string]bool{"stopped": stopped})}
		default:
			reply = WSMessage{
				Type:    MsgTypeError,
				ID:      msg.ID,
				Payload: mustJSON(WSErrorResponse{Message: "Unknown message type: " + msg.Type, Code: "INVALID_TYPE"}),
			}
		}
		reply.Timestamp = time.Now().UnixMilli()
		select {
		case outbox <- reply:
		default:
			fmt.Printf("[WebSocket] Dropping %s reply, client is not reading\n", reply.Type)
		}
	}
}

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
		return err
	}
	return nil
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

