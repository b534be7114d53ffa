// Package orch is the room coordinator. Every state-changing action runs as
// load → validate → mutate → save → broadcast while the room's lock stripe is
// held, so actions against one room are applied strictly one after another.
package orch

import (
	"context"
	"time"

	"github.com/dkeye/livepoll/internal/app"
	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
	"github.com/dkeye/livepoll/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	ActionCreateRoom = "create_room"
	ActionJoinRoom   = "join_room"
	ActionLeaveRoom  = "leave_room"
	ActionCreatePoll = "create_poll"
	ActionVote       = "vote"
	ActionDisconnect = "disconnect"
)

type Settings struct {
	CodeLength   int
	CodeAttempts int
	RequireHost  bool
	LockStripes  int
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomStore
	Gateway  core.Gateway
	Locks    *app.RoomLocks

	// NewCode and Now are swappable for tests.
	NewCode func() (domain.RoomCode, error)
	Now     func() time.Time

	codeAttempts int
	requireHost  bool
}

func New(reg *app.Registry, rooms core.RoomStore, gw core.Gateway, s Settings) *Orchestrator {
	attempts := s.CodeAttempts
	if attempts <= 0 {
		attempts = 1
	}
	length := s.CodeLength
	return &Orchestrator{
		Registry:     reg,
		Rooms:        rooms,
		Gateway:      gw,
		Locks:        app.NewRoomLocks(s.LockStripes),
		NewCode:      func() (domain.RoomCode, error) { return domain.NewRoomCode(length) },
		Now:          time.Now,
		codeAttempts: attempts,
		requireHost:  s.RequireHost,
	}
}

// Complete is the action boundary: it records the outcome and turns a
// rejection into an error event for the actor only.
func (o *Orchestrator) Complete(sid core.SessionID, action string, err error) {
	if err == nil {
		metrics.Actions.WithLabelValues(action, "ok").Inc()
		return
	}
	kind := domain.KindOf(err)
	metrics.Actions.WithLabelValues(action, string(kind)).Inc()

	ev := log.Warn()
	if kind == domain.KindInternal {
		ev = log.Error()
	}
	ev.Err(err).Str("module", "orch").Str("sid", string(sid)).Str("action", action).Str("kind", string(kind)).Msg("action rejected")

	o.Gateway.Unicast(sid, core.ErrorEvent(domain.MessageOf(err)))
}

// OpenRooms seeds the rooms gauge from a store that outlived the process.
func (o *Orchestrator) OpenRooms(ctx context.Context) (int, error) {
	infos, err := o.Rooms.List(ctx)
	if err != nil {
		return 0, err
	}
	metrics.RoomsOpen.Set(float64(len(infos)))
	return len(infos), nil
}

// ReapOrphans removes stored rooms that no connection of this process is
// bound to. Rooms left behind by a previous run hold users who can never
// leave, so they are dropped at startup. It returns how many were removed.
func (o *Orchestrator) ReapOrphans(ctx context.Context) (int, error) {
	infos, err := o.Rooms.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range infos {
		ok, err := o.reap(ctx, info.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
			log.Info().Str("module", "orch").Str("room", string(info.ID)).Str("code", string(info.Code)).Int("users", info.UserCount).Msg("reaped orphaned room")
		}
	}
	metrics.RoomsOpen.Set(float64(len(infos) - removed))
	return removed, nil
}

func (o *Orchestrator) reap(ctx context.Context, id domain.RoomID) (bool, error) {
	unlock := o.Locks.Lock(id)
	defer unlock()
	if len(o.Registry.MembersOfRoom(id)) > 0 {
		return false, nil
	}
	if err := o.Rooms.Remove(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}
