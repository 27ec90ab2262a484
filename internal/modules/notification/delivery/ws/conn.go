package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// conn adapts a gorilla connection to session.Conn. gorilla allows one
// concurrent writer, so data frames are serialized here.
type conn struct {
	id        string
	ws        *websocket.Conn
	writeWait time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConn(ws *websocket.Conn, writeWait time.Duration) *conn {
	return &conn{id: uuid.NewString(), ws: ws, writeWait: writeWait}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

func (c *conn) Close(reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
	return c.ws.Close()
}

func (c *conn) IsOpen() bool {
	return !c.closed.Load()
}
