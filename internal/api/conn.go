package api

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	errConnClosed = stderrors.New("connection closed")
	errQueueFull  = stderrors.New("send queue full")
)

// Conn adapts a websocket to the router's connection. Frames are queued on a
// buffered channel drained by the write pump, so Send never blocks.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	api  *API
}

func newConn(id string, ws *websocket.Conn, a *API) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, a.sendQueue),
		done: make(chan struct{}),
		api:  a,
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		c.api.metrics.FrameDropped()
		return errConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.api.metrics.FrameDropped()
		return errQueueFull
	}
}

// Close stops the write pump and closes the socket, which ends the read pump.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// readPump feeds the router until the socket fails, then reports the disconnect.
func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		_ = c.Close()
		if err := c.api.router.Dispatch(context.WithoutCancel(ctx), c.id, room.Disconnect{}); err != nil {
			slog.ErrorContext(ctx, "api: dispatch disconnect failed", "connection", c.id, "error", err)
		}
		c.api.metrics.ConnectionClosed()
		slog.InfoContext(ctx, "api: connection closed", "connection", c.id)
	}()

	c.ws.SetReadLimit(c.api.maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "api: read failed", "connection", c.id, "error", err)
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			c.api.metrics.MessageRejected()
			slog.WarnContext(ctx, "api: frame dropped", "connection", c.id, "error", errors.Convert(err).Message)
			continue
		}

		c.api.metrics.MessageReceived(msg.Event())
		if err := c.api.router.Dispatch(ctx, c.id, msg); err != nil {
			slog.ErrorContext(ctx, "api: dispatch failed", "connection", c.id, "event", msg.Event(), "error", err)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
