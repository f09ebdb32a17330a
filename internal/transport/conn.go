// Package transport carries protocol.Frame values over a single
// bidirectional gorilla/websocket stream between the orchestration server
// and a workspace client, grounded on the teacher's ws_control_plane read
// and write pumps.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trustgraph-ai/gambiarra/internal/protocol"
)

const (
	maxPayloadBytes = 4 << 20
	writeWait       = 10 * time.Second
	pongWait        = 45 * time.Second
	pingInterval    = 15 * time.Second
	sendBufferSize  = 64
)

// Upgrader upgrades an incoming HTTP request to a websocket connection.
// Exposed so cmd/gambiarra-server can configure CORS/origin checks without
// this package importing net/http handler wiring directly.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Conn wraps one websocket connection, decoding and encoding
// protocol.Frame values and running independent read/write pumps.
type Conn struct {
	log  *slog.Logger
	ws   *websocket.Conn
	send chan protocol.Frame

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// ErrClosed is returned by Send once the connection has been torn down.
var ErrClosed = errors.New("transport: connection closed")

// New wraps an already-upgraded *websocket.Conn. Call Run to start the pumps.
func New(log *slog.Logger, ws *websocket.Conn) *Conn {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		log:    log,
		ws:     ws,
		send:   make(chan protocol.Frame, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run starts the write pump and ping ticker in background goroutines and
// blocks in the read pump, delivering each decoded frame to handle. Run
// returns when the connection closes or ctx is cancelled.
func (c *Conn) Run(ctx context.Context, handle func(protocol.Frame)) error {
	go c.writePump()
	go c.pingLoop()

	c.ws.SetReadLimit(maxPayloadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("transport: dropping malformed frame", "error", err)
			continue
		}
		handle(frame)
	}
}

// Send enqueues a frame for delivery. It never blocks the caller on network
// I/O; it only blocks if the internal send buffer is full, which signals a
// slow or stalled peer.
func (c *Conn) Send(frame protocol.Frame) error {
	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				c.log.Error("transport: failed to marshal frame", "error", err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// Close tears down the connection and stops both pumps. Safe to call
// multiple times.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}
