package ws

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// Conn wraps one WebSocket connection.
type Conn struct {
	ws *websocket.Conn
}

// Accept upgrades HTTP to websocket (allow all origins) and applies
// the inbound frame size cap.
func Accept(w http.ResponseWriter, r *http.Request, maxMsgBytes int64) (*Conn, error) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(maxMsgBytes)
	return &Conn{ws: c}, nil
}

// Read blocks until it receives a text/binary message.
// Returns false if the connection is closed.
func (c *Conn) Read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, true
		}
	}
}

// WriteLoop drains out to the socket and sends periodic pings.
// Exits when ctx is cancelled or out is closed.
func (c *Conn) WriteLoop(ctx context.Context, out <-chan []byte) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case b, ok := <-out:
			if !ok {
				return
			}
			_ = c.ws.Write(ctx, websocket.MessageText, b)
		case <-t.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the connection normally.
func (c *Conn) Close() error { return c.ws.Close(websocket.StatusNormalClosure, "bye") }
