// Package signal is the websocket observer interface of the session
// manager: it pushes session events to the browser and accepts its
// commands.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/voicelink/internal/app"
	"github.com/dkeye/voicelink/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	defaultReadLimit  = 32768
	defaultPingPeriod = 54 * time.Second
	writeWait         = 5 * time.Second
	defaultMaxDropped = 64
)

type SignalWSController struct {
	Registry   *app.Registry
	Limiter    *ConnectLimiter
	Policy     app.Policy
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSignalWSController(reg *app.Registry, limiter *ConnectLimiter) *SignalWSController {
	return &SignalWSController{
		Registry:   reg,
		Limiter:    limiter,
		Policy:     app.SimplePolicy{MaxDropped: defaultMaxDropped},
		ReadLimit:  defaultReadLimit,
		PingPeriod: defaultPingPeriod,
	}
}

type WsSignalConn struct {
	sid     app.ClientID
	conn    *websocket.Conn
	send    chan core.Frame
	dropped atomic.Int32

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSession upgrades the request and attaches it to the client's session
// manager until either side closes.
func (ctl *SignalWSController) HandleSession(ctx context.Context, c *gin.Context) {
	sid := app.ClientID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		sid:  sid,
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	mgr := ctl.Registry.Attach(sid)
	ctx, cancel := context.WithCancel(ctx)
	unsubscribe := ctl.observe(mgr, conn)

	// Current state first so a reconnecting client catches up.
	ctl.sendState(conn, mgr.ConnectionState())

	go ctl.writePump(ctx, conn)
	go func() {
		defer func() {
			unsubscribe()
			cancel()
			ctl.Registry.Detach(sid)
		}()
		ctl.readPump(ctx, sid, &client{sid: sid, mgr: mgr, conn: conn, ctx: ctx})
	}()
}
