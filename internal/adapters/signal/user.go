package signal

import "github.com/dkeye/livepoll/internal/core"

// handleWhoAmI reports the connection's binding, if any, back to it.
func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, conn *WsSignalConn) {
	resp := core.Event{Type: core.EventWhoAmI}
	if b, ok := ctl.Orch.Registry.Binding(sid); ok {
		u := b.User
		resp.User = &u
		resp.RoomID = b.RoomID
	}
	ctl.sendJSON(conn, resp)
}
