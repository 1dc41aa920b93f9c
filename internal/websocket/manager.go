package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager tracks connected collectors and fans server events out to them.
type Manager struct {
	clients        map[string]*Client
	clientsMutex   sync.RWMutex
	register       chan *Client
	unregister     chan *Client
	inbound        chan *ClientMessage
	done           chan struct{}
	maxConns       int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	messageHandler MessageHandler
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

func NewManager(maxConns int, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		inbound:       make(chan *ClientMessage),
		done:          make(chan struct{}),
		maxConns:      maxConns,
		writeWait:     writeWait,
		pongWait:      pongWait,
		pingPeriod:    pingPeriod,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

// Run serves registrations and inbound messages until ctx is cancelled, then
// disconnects every client. Run must be called at most once.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.closeAll()
			return

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.inbound:
			m.processMessage(clientMsg)
		}
	}
}

// Add hands a freshly upgraded client to the manager. It reports false once
// the manager has stopped; the caller then owns closing the connection.
func (m *Manager) Add(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) leave(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) deliver(msg *ClientMessage) bool {
	select {
	case m.inbound <- msg:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.maxConns > 0 && len(m.clients) >= m.maxConns {
		log.Printf("max connections reached, rejecting client %s", client.ID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	log.Printf("client registered: %s (remote: %s)", client.ID, client.RemoteAddr)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		close(client.Send)
		log.Printf("client unregistered: %s", client.ID)
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		delete(m.clients, id)
		close(client.Send)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		log.Printf("error unmarshaling message: %v", err)
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			log.Printf("error handling message: %v", err)
		}
	}
}

// Broadcast queues message for every connected client. Clients whose send
// buffer is full are dropped.
func (m *Manager) Broadcast(message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var slow []*Client
	m.clientsMutex.RLock()
	for clientID, client := range m.clients {
		select {
		case client.Send <- messageBytes:
		default:
			log.Printf("client %s send buffer full, closing connection", clientID)
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		go m.leave(client)
	}

	return nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		log.Printf("client %s send buffer full", clientID)
	}

	return nil
}

func (m *Manager) Connections() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.clients)
}
