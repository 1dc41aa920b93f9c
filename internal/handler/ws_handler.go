package handler

import (
	"log"
	"net/http"

	"herb-collector/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager        *websocket.Manager
	upgrader       ws.Upgrader
	maxMessageSize int64
}

func NewWebSocketHandler(manager *websocket.Manager, readBufferSize, writeBufferSize int, maxMessageSize int64) *WebSocketHandler {
	return &WebSocketHandler{
		manager:        manager,
		maxMessageSize: maxMessageSize,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] Failed to upgrade connection: %v", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), r.RemoteAddr, conn, h.manager)
	if !h.manager.Add(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(h.maxMessageSize)
}

// WebSocketMessageHandler answers client messages. Collectors only ever send
// keepalive pings; everything else is logged and dropped.
type WebSocketMessageHandler struct{}

func NewWebSocketMessageHandler() *WebSocketMessageHandler {
	return &WebSocketMessageHandler{}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypePing:
		return h.handlePing(client)

	default:
		log.Printf("unknown message type: %s", msg.Type)
	}

	return nil
}

func (h *WebSocketMessageHandler) handlePing(client *websocket.Client) error {
	pongMsg, err := websocket.NewMessage(websocket.TypePong, nil)
	if err != nil {
		return err
	}

	return client.Manager.SendToClient(client.ID, pongMsg)
}
