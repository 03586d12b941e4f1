package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/voicelink/internal/app"
	"github.com/dkeye/voicelink/internal/app/session"
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
)

// client is one observer connection bound to its session manager.
type client struct {
	sid  app.ClientID
	mgr  *session.Manager
	conn *WsSignalConn
	ctx  context.Context
}

// observe forwards the manager's events to conn and returns the func that
// stops forwarding.
func (ctl *SignalWSController) observe(mgr *session.Manager, conn *WsSignalConn) func() {
	ev := mgr.Events()
	offs := []func(){
		ev.OnStateChange(func(st domain.ConnectionState) {
			ctl.sendState(conn, st)
		}),
		ev.OnStream(func(s core.RemoteStream) {
			ctl.sendJSON(conn, map[string]any{
				"type":      "stream",
				"id":        s.ID(),
				"stream_id": s.StreamID(),
				"codec":     s.Codec(),
			})
		}),
		ev.OnError(func(err error) {
			ctl.sendError(conn, string(domain.KindOf(err)), err.Error())
		}),
		ev.OnMessage(func(m session.Message) {
			ctl.sendJSON(conn, map[string]any{
				"type":    "message",
				"message": m.Raw,
			})
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// handleConnect starts negotiation off the read loop so disconnect commands
// keep flowing. Failures reach the client through the error event.
func (ctl *SignalWSController) handleConnect(cl *client) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(cl.sid) {
		log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Msg("connect rate limited")
		ctl.sendError(cl.conn, "rate_limited", "too many connect attempts")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("connect")
	go func() {
		err := cl.mgr.Connect(cl.ctx)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrSessionBusy):
			ctl.sendError(cl.conn, "busy", err.Error())
		case errors.Is(err, domain.ErrConnectAborted):
			log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("connect aborted")
		default:
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("connect failed")
		}
	}()
}

func (ctl *SignalWSController) handleDisconnect(cl *client) {
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("disconnect")
	cl.mgr.Disconnect()
}

func (ctl *SignalWSController) handleAudio(cl *client, data []byte) {
	var p struct {
		Type    string `json:"type"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Enabled == nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad audio payload")
		ctl.sendError(cl.conn, "bad_payload", "audio requires enabled")
		return
	}
	cl.mgr.SetAudioEnabled(*p.Enabled)
	ctl.sendJSON(cl.conn, map[string]any{
		"type":    "audio",
		"enabled": *p.Enabled,
	})
}

func (ctl *SignalWSController) handleSend(cl *client, data []byte) {
	var p struct {
		Type    string          `json:"type"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &p); err != nil || len(p.Message) == 0 {
		log.Error().Err(err).Str("module", "signal").Msg("bad send payload")
		ctl.sendError(cl.conn, "bad_payload", "send requires message")
		return
	}
	if err := cl.mgr.SendMessage(p.Message); err != nil {
		kind := "send_failed"
		if errors.Is(err, domain.ErrNotConnected) {
			kind = "not_connected"
		}
		ctl.sendError(cl.conn, kind, err.Error())
	}
}
