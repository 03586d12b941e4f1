package signal

import (
	"github.com/dkeye/voicelink/internal/domain"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) sendState(conn *WsSignalConn, st domain.ConnectionState) {
	resp := struct {
		Type  string                 `json:"type"`
		State domain.ConnectionState `json:"state"`
	}{
		Type:  "state",
		State: st,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, kind, msg string) {
	ctl.sendJSON(conn, map[string]any{
		"type":  "error",
		"kind":  kind,
		"error": msg,
	})
}
