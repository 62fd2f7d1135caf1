// Package live serves the websocket sessions of the editor canvas and of
// runtime pages. Every connection owns exactly one session and handles its
// messages one at a time, in arrival order.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024

	sendBuffer = 64
)

// ErrConnClosed is returned when sending on a closed connection
var ErrConnClosed = errors.New("connection closed")

// Handler is the session bound to one connection
type Handler interface {
	// Open sends the initial state of the session
	Open(ctx context.Context, c *Conn) error
	// Handle processes one client message
	Handle(ctx context.Context, c *Conn, msg Message) error
	// Close releases the session after the connection ends
	Close()
}

// Conn is one live websocket connection
type Conn struct {
	ID     string
	UserID string

	ws     *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	closed atomic.Bool
}

func newConn(ctx context.Context, id, userID string, ws *websocket.Conn, logger *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	return &Conn{
		ID:     id,
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(zap.String("conn", id)),
	}
}

// serve runs the write pump in the background and the read loop in the
// calling goroutine until the connection ends
func (c *Conn) serve(h Handler) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	defer func() {
		c.shutdown()
		<-done
		h.Close()
	}()

	if err := h.Open(c.ctx, c); err != nil {
		c.logger.Warn("failed to open live session", zap.Error(err))
		c.SendError(err.Error())
		return
	}
	c.readPump(h)
}

func (c *Conn) readPump(h Handler) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendError("invalid message: " + err.Error())
			continue
		}
		if err := h.Handle(c.ctx, c, msg); err != nil {
			c.logger.Debug("live message failed", zap.String("type", msg.Type), zap.Error(err))
			c.SendError(err.Error())
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			// flush what the session queued before it ended
			for {
				select {
				case data := <-c.send:
					if c.write(websocket.TextMessage, data) != nil {
						return
					}
				default:
					_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}

		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Conn) shutdown() {
	if c.closed.CompareAndSwap(false, true) {
		c.cancel()
		// unblock the read loop if the peer is still connected
		_ = c.ws.SetReadDeadline(time.Now())
	}
}

// Send queues a message for the client
func (c *Conn) Send(msgType string, payload interface{}) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	msg := Message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		msg.Data = data
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
		c.logger.Warn("send buffer full, dropping message", zap.String("type", msgType))
		return errors.New("send buffer full")
	}
}

// SendError sends an error message to the client
func (c *Conn) SendError(message string) {
	_ = c.Send(MsgError, ErrorPayload{Message: message})
}
