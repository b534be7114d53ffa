package signal

import "github.com/dkeye/livepoll/internal/core"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.Event{Type: core.EventPong})
}
