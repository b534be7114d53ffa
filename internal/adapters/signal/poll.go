package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/livepoll/internal/app/orch"
	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
)

func (ctl *SignalWSController) handleCreatePoll(ctx context.Context, sid core.SessionID, data []byte) {
	var p struct {
		Params domain.PollParams `json:"params"`
		RoomID domain.RoomID     `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.Orch.Complete(sid, orch.ActionCreatePoll, domain.ErrBadPayload)
		return
	}
	ctl.Orch.Complete(sid, orch.ActionCreatePoll, ctl.Orch.CreatePoll(ctx, sid, p.RoomID, p.Params))
}

func (ctl *SignalWSController) handleVote(ctx context.Context, sid core.SessionID, data []byte) {
	var p struct {
		PollID   domain.PollID   `json:"pollId"`
		OptionID domain.OptionID `json:"optionId"`
		RoomID   domain.RoomID   `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.Orch.Complete(sid, orch.ActionVote, domain.ErrBadPayload)
		return
	}
	ctl.Orch.Complete(sid, orch.ActionVote, ctl.Orch.Vote(ctx, sid, p.RoomID, p.PollID, p.OptionID))
}
