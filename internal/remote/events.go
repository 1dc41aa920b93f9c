package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"herb-collector/internal/websocket"

	ws "github.com/gorilla/websocket"
)

const eventsPath = "/ws"

// EventsURL is the websocket endpoint derived from the API base URL.
func (c *Client) EventsURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + eventsPath
}

// Listen streams server broadcasts to handle until ctx is cancelled or the
// connection drops. It always returns a non-nil error; callers reconnect.
func (c *Client) Listen(ctx context.Context, handle func(*websocket.Message)) error {
	dialer := ws.Dialer{HandshakeTimeout: c.httpClient.Timeout}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, _, err := dialer.DialContext(ctx, c.EventsURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream closed: %w", err)
		}

		// The server batches queued messages into one frame, newline separated.
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			var msg websocket.Message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				c.logger.Printf("ignoring malformed event: %v", err)
				continue
			}
			handle(&msg)
		}
	}
}
