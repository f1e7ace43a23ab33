// Package wsconn implements gateway/proxy.Connection over a WebSocket, so a
// proxy.Gateway can mediate tool calls to an isolated backend across a real
// network boundary instead of an in-process test fake.
package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonwraymond/enclavejs/gateway/proxy"
)

// Conn adapts a *websocket.Conn into proxy.Connection. One Conn per
// connection; Send/Receive are safe for concurrent use, matching the
// proxy.Connection contract (gorilla's *websocket.Conn is not itself safe
// for concurrent writers, so writes are serialized here).
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

var _ proxy.Connection = (*Conn)(nil)

// New wraps an already-established WebSocket connection.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Dial opens a client-side WebSocket connection to url.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: dial %s: %w", url, err)
	}
	return New(ws), nil
}

// Send writes msg as a single JSON text frame, honoring ctx's deadline if
// one is set.
func (c *Conn) Send(ctx context.Context, msg proxy.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("wsconn: encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	} else {
		_ = c.ws.SetWriteDeadline(time.Time{})
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("wsconn: write: %w", err)
	}
	return nil
}

// Receive blocks for the next text frame and decodes it into a Message.
func (c *Conn) Receive(ctx context.Context) (proxy.Message, error) {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return proxy.Message{}, proxy.ErrConnectionClosed
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
	} else {
		_ = c.ws.SetReadDeadline(time.Time{})
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return proxy.Message{}, proxy.ErrConnectionClosed
		}
		return proxy.Message{}, fmt.Errorf("wsconn: read: %w", err)
	}

	var msg proxy.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return proxy.Message{}, fmt.Errorf("%w: %v", proxy.ErrProtocol, err)
	}
	return msg, nil
}

// Close closes the underlying WebSocket, sending a normal-closure frame
// first on a best-effort basis.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.ws.Close()
}
