package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"

	"notebridge/internal/logging"
	"notebridge/internal/models"
	"notebridge/internal/services"
)

const (
	wsReadDeadline  = 90 * time.Second
	wsWriteDeadline = 10 * time.Second
	wsPingInterval  = 30 * time.Second
)

// WebSocketHandler owns the /ws/:client_id connection lifecycle: one read
// loop, one write loop draining WriteChan, one ping loop.
type WebSocketHandler struct {
	bridge *services.ClientBridge
}

func NewWebSocketHandler(bridge *services.ClientBridge) *WebSocketHandler {
	return &WebSocketHandler{bridge: bridge}
}

// Handle runs for the lifetime of one connection. Auth middleware already
// ran; Locals carries the verified user id.
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	clientID := c.Params("client_id")
	userID, _ := c.Locals("user_id").(string)

	// A client may only bind its own channel.
	if clientID == "" || clientID != userID {
		logging.SecurityEvent("ws_client_id_mismatch", "user_id", userID, "client_id", clientID)
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "client_id mismatch"))
		_ = c.Close()
		return
	}

	conn := &models.ClientConnection{
		ClientID:  clientID,
		UserID:    userID,
		Conn:      c,
		CreatedAt: time.Now(),
		WriteChan: make(chan models.ServerFrame, 64),
		StopChan:  make(chan bool, 1),
	}

	h.bridge.Register(conn)
	done := make(chan struct{})
	defer func() {
		conn.MarkClosed()
		close(done)
		h.bridge.Unregister(conn)
	}()

	_ = c.SetReadDeadline(time.Now().Add(wsReadDeadline))
	c.SetPongHandler(func(string) error {
		h.bridge.Touch(clientID)
		return c.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	go h.pingLoop(conn, done)
	go h.writeLoop(conn, done)
	h.readLoop(conn)
}

func (h *WebSocketHandler) pingLoop(conn *models.ClientConnection, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteDeadline)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeLoop(conn *models.ClientConnection, done <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [WS] Panic in write loop for %s: %v", conn.ClientID, r)
		}
	}()

	for {
		select {
		case <-done:
			return
		case frame := <-conn.WriteChan:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.Conn.WriteJSON(frame); err != nil {
				log.Printf("⚠️ [WS] Write failed for %s: %v", conn.ClientID, err)
				return
			}
			if m := services.GetMetrics(); m != nil {
				m.RecordWebSocketMessage(frame.Type, "outbound")
			}
		}
	}
}

func (h *WebSocketHandler) readLoop(conn *models.ClientConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [WS] Panic in read loop for %s: %v", conn.ClientID, r)
		}
	}()

	for {
		_, raw, err := conn.Conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.Conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		h.bridge.Touch(conn.ClientID)

		var frame models.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("⚠️ [WS] Invalid frame from %s: %v", conn.ClientID, err)
			continue
		}
		if m := services.GetMetrics(); m != nil {
			m.RecordWebSocketMessage(frame.Type, "inbound")
		}

		switch frame.Type {
		case models.FramePing:
			conn.SafeSend(models.ServerFrame{Type: models.FramePong})
		case models.FramePong:
			// Touch already recorded liveness.
		case models.FrameFileContentResponse, models.FrameSearchResultsResponse:
			h.bridge.HandleResponse(conn.ClientID, frame)
		default:
			log.Printf("⚠️ [WS] Unknown frame type %q from %s", frame.Type, conn.ClientID)
		}
	}
}
