package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/livepoll/internal/app/orch"
	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
)

func (ctl *SignalWSController) handleCreateRoom(ctx context.Context, sid core.SessionID, data []byte) {
	var p struct {
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.Orch.Complete(sid, orch.ActionCreateRoom, domain.ErrBadPayload)
		return
	}
	ctl.Orch.Complete(sid, orch.ActionCreateRoom, ctl.Orch.CreateRoom(ctx, sid, p.UserName))
}

func (ctl *SignalWSController) handleJoinRoom(ctx context.Context, sid core.SessionID, data []byte) {
	var p struct {
		Code     string `json:"code"`
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.Orch.Complete(sid, orch.ActionJoinRoom, domain.ErrBadPayload)
		return
	}
	ctl.Orch.Complete(sid, orch.ActionJoinRoom, ctl.Orch.JoinRoom(ctx, sid, p.Code, p.UserName))
}

// handleLeaveRoom leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeaveRoom(ctx context.Context, sid core.SessionID) {
	ctl.Orch.Complete(sid, orch.ActionLeaveRoom, ctl.Orch.LeaveRoom(ctx, sid))
}
