package live

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/web/auth"
)

// Config holds WebSocket configuration
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// CheckOrigin defaults to the same-origin check of gorilla/websocket
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns default WebSocket configuration
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Upgrader upgrades HTTP requests into live sessions
type Upgrader struct {
	upgrader websocket.Upgrader
	base     context.Context
	logger   *zap.Logger
}

// NewUpgrader creates an upgrader. Sessions end when base is canceled.
func NewUpgrader(base context.Context, config Config, logger *zap.Logger) *Upgrader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		base:   base,
		logger: logger,
	}
}

// Serve upgrades the request and runs h until the connection ends. The
// session is closed if the upgrade fails.
func (u *Upgrader) Serve(w http.ResponseWriter, r *http.Request, h Handler) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		u.logger.Warn("websocket upgrade failed", zap.Error(err))
		h.Close()
		return
	}

	c := newConn(u.base, uuid.NewString(), auth.UserID(r.Context()), ws, u.logger)
	c.logger.Debug("live session opened", zap.String("path", r.URL.Path), zap.String("user", c.UserID))
	c.serve(h)
	c.logger.Debug("live session closed")
}
