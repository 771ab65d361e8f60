// Package signal is the websocket adapter for the room session protocol:
// one long-lived connection per client, every room channel multiplexed
// over it.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/app"
	"github.com/watchroom/server/internal/auth"
	"github.com/watchroom/server/internal/core"
	"github.com/watchroom/server/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Auth      *auth.Resolver
	Registry  *app.Registry
	Admins    *app.AdminCache
	Lifecycle *app.Lifecycle
	Rooms     *app.RoomReader
	Users     app.UserStore
	UserCache app.UserCache
	Pending   *app.Pending
	Chat      *RateLimiter

	AckTimeout time.Duration
	ReadLimit  int64
	PingPeriod time.Duration
}

type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal is the connection handshake: credential out of the cookie,
// identity resolved, binding persisted and mirrored, connection prebound
// until its join announcement.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	credential, err := c.Cookie("accessToken")
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	identity, err := ctl.Auth.Resolve(credential)
	if err != nil {
		log.Warn().Str("module", "signal").Msg("connection refused, bad credential")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	mainRoomID := c.Query("room")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	log.Info().Str("module", "signal").Str("sid", conn.id).Str("user", identity.Username).Msg("new WS connection")

	user, err := ctl.Users.PushBinding(ctx, identity, domain.SocketBinding{
		Room: mainRoomID, SocketID: conn.id,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", identity.Username).Msg("binding persist failed")
		conn.Close()
		return
	}
	ctl.UserCache.PutBindings(ctx, user.Username, user.Guest, user.Bindings)

	ctl.Registry.AddConn(conn)
	ctl.Registry.Prebind(identity.Username, conn.id)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}

func (ctl *Controller) broadcast(channel, exclude string, v any) {
	for _, conn := range ctl.Registry.ChannelConns(channel, exclude) {
		ctl.sendJSON(conn, v)
	}
}

// NotifyExpiring warns every live connection of a guest whose identity is
// about to be reaped.
func (ctl *Controller) NotifyExpiring(username string, deadline time.Time) {
	user, err := ctl.Users.Find(context.Background(), username)
	if err != nil {
		return
	}
	warning := struct {
		Type     string    `json:"type"`
		Deadline time.Time `json:"deadline"`
	}{
		Type:     "session-expiring",
		Deadline: deadline,
	}
	for _, b := range user.Bindings {
		if conn, ok := ctl.Registry.Conn(b.SocketID); ok {
			ctl.sendJSON(conn, warning)
		}
	}
}
