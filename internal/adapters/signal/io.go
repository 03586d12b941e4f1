package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/voicelink/internal/app"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) pingPeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return defaultPingPeriod
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid app.ClientID, cl *client) {
	c := cl.conn
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
	}()

	readLimit := ctl.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	c.conn.SetReadLimit(readLimit)
	pongWait := ctl.pingPeriod() * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(cl, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(cl.conn, "bad_payload", "invalid json")
		return
	}

	switch env.Type {
	case "connect":
		ctl.handleConnect(cl)
	case "disconnect":
		ctl.handleDisconnect(cl)
	case "audio":
		ctl.handleAudio(cl, data)
	case "send":
		ctl.handleSend(cl, data)
	case "ping":
		ctl.handlePing(cl.conn)
	case "state":
		ctl.sendState(cl.conn, cl.mgr.ConnectionState())
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(cl.conn, "unknown_type", env.Type)
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	err = c.TrySend(b)
	if err == nil || !errors.Is(err, ErrBackpressure) {
		return
	}
	dropped := int(c.dropped.Add(1))
	log.Warn().Str("module", "signal").Str("sid", string(c.sid)).Int("dropped", dropped).Msg("sendJSON dropped")
	if ctl.Policy == nil {
		return
	}
	switch ctl.Policy.OnBackPressure(c.sid, dropped) {
	case app.CloseObserver:
		log.Warn().Str("module", "signal").Str("sid", string(c.sid)).Msg("closing slow observer")
		c.Close()
	case app.DropFrame, app.NoAction:
	}
}
