package websocket

import (
	"bytes"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const sendBuffer = 256

var frameSeparator = []byte{'\n'}

// Client is one connected collector. ReadPump and WritePump each own one
// direction of the connection.
type Client struct {
	ID         string
	RemoteAddr string
	Conn       *websocket.Conn
	Manager    *Manager
	Send       chan []byte
}

func NewClient(id, remoteAddr string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:         id,
		RemoteAddr: remoteAddr,
		Conn:       conn,
		Manager:    manager,
		Send:       make(chan []byte, sendBuffer),
	}
}

func (c *Client) extendReadDeadline() error {
	return c.Conn.SetReadDeadline(time.Now().Add(c.Manager.pongWait))
}

// ReadPump hands inbound frames to the manager until the connection fails
// or the manager stops.
func (c *Client) ReadPump(maxMessageSize int64) {
	defer func() {
		c.Manager.leave(c)
		c.Conn.Close()
	}()

	if maxMessageSize > 0 {
		c.Conn.SetReadLimit(maxMessageSize)
	}
	c.extendReadDeadline()
	c.Conn.SetPongHandler(func(string) error { return c.extendReadDeadline() })

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read from %s failed: %v", c.RemoteAddr, err)
			}
			return
		}
		if !c.Manager.deliver(&ClientMessage{Client: c, Message: data}) {
			return
		}
	}
}

// WritePump drains Send onto the connection, coalescing whatever is queued
// into one newline-separated frame, and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Manager.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case first, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, c.coalesce(first)); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) coalesce(first []byte) []byte {
	queued := len(c.Send)
	if queued == 0 {
		return first
	}

	frames := make([][]byte, 0, queued+1)
	frames = append(frames, first)
	for i := 0; i < queued; i++ {
		msg, ok := <-c.Send
		if !ok {
			break
		}
		frames = append(frames, msg)
	}
	return bytes.Join(frames, frameSeparator)
}

func (c *Client) write(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.writeWait))
	return c.Conn.WriteMessage(messageType, data)
}
