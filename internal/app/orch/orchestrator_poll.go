package orch

import (
	"context"
	"errors"

	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
	"github.com/dkeye/livepoll/internal/metrics"
	"github.com/rs/zerolog/log"
)

// CreatePoll publishes a new active poll in roomID. The room comes from the
// payload, not from the binding.
func (o *Orchestrator) CreatePoll(ctx context.Context, sid core.SessionID, roomID domain.RoomID, params domain.PollParams) error {
	b, ok := o.Registry.Binding(sid)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	unlock := o.Locks.Lock(roomID)
	defer unlock()

	room, err := o.Rooms.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.ErrRoomNotFound
		}
		return domain.Internal("Failed to create poll", err)
	}
	if o.requireHost && room.HostID != b.User.ID {
		return domain.ErrNotHost
	}

	poll := domain.NewPoll(params, b.User.ID, o.Now())
	room.ActivatePoll(poll)
	if err := o.Rooms.Save(ctx, room); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.ErrRoomNotFound
		}
		return domain.Internal("Failed to create poll", err)
	}

	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.ID)).Str("poll", string(poll.ID)).Int("options", len(poll.Options)).Msg("poll created")
	o.Gateway.Multicast(room.ID, core.PollCreated(room), "")
	return nil
}

// Vote casts the actor's vote on the room's active poll.
func (o *Orchestrator) Vote(ctx context.Context, sid core.SessionID, roomID domain.RoomID, pollID domain.PollID, optionID domain.OptionID) error {
	b, ok := o.Registry.Binding(sid)
	if !ok {
		return domain.ErrNotAuthenticated
	}

	unlock := o.Locks.Lock(roomID)
	defer unlock()

	room, err := o.Rooms.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.ErrPollNotFound
		}
		return domain.Internal("Failed to add vote", err)
	}
	if room.ActivePoll == nil || room.ActivePoll.ID != pollID {
		return domain.ErrPollNotFound
	}

	vote, err := room.ActivePoll.CastVote(b.User, optionID, o.Now())
	if err != nil {
		return err
	}
	if err := o.Rooms.Save(ctx, room); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.ErrPollNotFound
		}
		return domain.Internal("Failed to add vote", err)
	}

	metrics.Votes.Inc()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.ID)).Str("poll", string(pollID)).Str("option", string(optionID)).Msg("vote added")
	o.Gateway.Multicast(room.ID, core.VoteAdded(room, vote), "")
	return nil
}
