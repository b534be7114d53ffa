package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
	"github.com/dkeye/livepoll/internal/metrics"
	"github.com/rs/zerolog/log"
)

// lockFor takes the target room, plus the room the connection is leaving
// when it is already bound somewhere.
func (o *Orchestrator) lockFor(id domain.RoomID, prev core.Binding, bound bool) func() {
	if bound {
		return o.Locks.LockPair(id, prev.RoomID)
	}
	return o.Locks.Lock(id)
}

// CreateRoom makes the actor host of a new room and binds the connection to
// it. A connection already in a room leaves it once the new room is stored.
func (o *Orchestrator) CreateRoom(ctx context.Context, sid core.SessionID, userName string) error {
	prev, bound := o.Registry.Binding(sid)

	host := domain.NewUser(userName, true)
	var (
		room   *domain.Room
		unlock func()
	)
	for attempt := 1; ; attempt++ {
		code, err := o.NewCode()
		if err != nil {
			return domain.Internal("Failed to create room", err)
		}
		room = domain.NewRoom(code, host)

		// Held until room_created is out, so no joiner can overtake it.
		unlock = o.lockFor(room.ID, prev, bound)
		err = o.Rooms.Insert(ctx, room)
		if err == nil {
			break
		}
		unlock()
		if !errors.Is(err, core.ErrCodeTaken) {
			return domain.Internal("Failed to create room", err)
		}
		log.Warn().Str("module", "orch").Str("code", string(code)).Int("attempt", attempt).Msg("room code collision")
		if attempt >= o.codeAttempts {
			return domain.Internal("Failed to create room", fmt.Errorf("no free room code after %d attempts", attempt))
		}
	}
	defer unlock()

	if bound {
		if err := o.leavePrevious(ctx, prev); err != nil {
			if rmErr := o.Rooms.Remove(ctx, room.ID); rmErr != nil {
				log.Error().Err(rmErr).Str("module", "orch").Str("room", string(room.ID)).Msg("drop unused room")
			}
			return err
		}
	}

	o.Registry.Bind(sid, room.ID, *host)
	metrics.RoomsOpen.Inc()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.ID)).Str("code", string(room.Code)).Msg("room created")

	o.Gateway.Unicast(sid, core.RoomCreated(room, *host))
	return nil
}

// JoinRoom adds the actor as a regular member of the room with the given code.
func (o *Orchestrator) JoinRoom(ctx context.Context, sid core.SessionID, code string, userName string) error {
	found, err := o.Rooms.FindByCode(ctx, domain.NormalizeCode(code))
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.ErrRoomNotFound
		}
		return domain.Internal("Failed to join room", err)
	}

	prev, bound := o.Registry.Binding(sid)
	if bound && prev.RoomID == found.ID {
		return o.rejoin(ctx, sid, prev)
	}

	unlock := o.lockFor(found.ID, prev, bound)
	defer unlock()

	// Re-read under the lock: the room may have closed since the lookup.
	room, err := o.Rooms.Get(ctx, found.ID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.ErrRoomNotFound
		}
		return domain.Internal("Failed to join room", err)
	}

	if bound {
		if err := o.leavePrevious(ctx, prev); err != nil {
			return err
		}
	}

	user := domain.NewUser(userName, false)
	room.AddUser(*user)
	if err := o.Rooms.Save(ctx, room); err != nil {
		return domain.Internal("Failed to join room", err)
	}

	o.Registry.Bind(sid, room.ID, *user)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.ID)).Str("user", string(user.ID)).Msg("joined")

	o.Gateway.Unicast(sid, core.RoomJoined(room, *user))
	o.Gateway.Multicast(room.ID, core.UserJoined(room, *user), sid)
	return nil
}

// rejoin answers a join of the connection's own room with its current state
// and changes nothing.
func (o *Orchestrator) rejoin(ctx context.Context, sid core.SessionID, b core.Binding) error {
	unlock := o.Locks.Lock(b.RoomID)
	defer unlock()

	room, err := o.Rooms.Get(ctx, b.RoomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.ErrRoomNotFound
		}
		return domain.Internal("Failed to join room", err)
	}
	user, ok := room.User(b.User.ID)
	if !ok {
		o.Registry.Unbind(sid)
		return domain.ErrNotInRoom
	}
	log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.ID)).Msg("rejoin")
	o.Gateway.Unicast(sid, core.RoomJoined(room, *user))
	return nil
}

// leavePrevious is the implicit leave of a connection moving to another
// room. A stale binding is just cleared.
func (o *Orchestrator) leavePrevious(ctx context.Context, b core.Binding) error {
	err := o.departLocked(ctx, b, core.EventUserLeft)
	if errors.Is(err, domain.ErrRoomNotFound) || errors.Is(err, domain.ErrNotInRoom) {
		return nil
	}
	return err
}

// LeaveRoom is the explicit departure of the actor.
func (o *Orchestrator) LeaveRoom(ctx context.Context, sid core.SessionID) error {
	b, ok := o.Registry.Binding(sid)
	if !ok {
		return domain.ErrNotInRoom
	}
	return o.depart(ctx, b, core.EventUserLeft)
}

// OnDisconnect runs the departure for a connection that is already gone and
// forgets the connection. Nothing is sent back to it.
func (o *Orchestrator) OnDisconnect(ctx context.Context, sid core.SessionID) {
	defer o.Registry.Drop(sid)
	b, ok := o.Registry.Binding(sid)
	if !ok {
		return
	}
	err := o.depart(ctx, b, core.EventUserDisconnected)
	if err == nil {
		metrics.Actions.WithLabelValues(ActionDisconnect, "ok").Inc()
		return
	}
	kind := domain.KindOf(err)
	metrics.Actions.WithLabelValues(ActionDisconnect, string(kind)).Inc()
	log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", string(b.RoomID)).Msg("disconnect cleanup failed")
}

func (o *Orchestrator) depart(ctx context.Context, b core.Binding, notice core.EventType) error {
	unlock := o.Locks.Lock(b.RoomID)
	defer unlock()
	return o.departLocked(ctx, b, notice)
}

// departLocked removes the bound user from its room, hands the host role on
// or closes the room, clears the binding and notifies whoever remains. The
// leaver is unbound before the broadcast and does not receive it. The
// caller holds the room's lock.
func (o *Orchestrator) departLocked(ctx context.Context, b core.Binding, notice core.EventType) error {
	room, err := o.Rooms.Get(ctx, b.RoomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			o.Registry.Unbind(b.SessionID)
			return domain.ErrRoomNotFound
		}
		return domain.Internal("Failed to leave room", err)
	}

	d, ok := room.Depart(b.User.ID)
	if !ok {
		o.Registry.Unbind(b.SessionID)
		return domain.ErrNotInRoom
	}

	if d.Closed {
		err = o.Rooms.Remove(ctx, room.ID)
	} else {
		err = o.Rooms.Save(ctx, room)
	}
	if err != nil {
		return domain.Internal("Failed to leave room", err)
	}
	o.Registry.Unbind(b.SessionID)

	logEv := log.Info().Str("module", "orch").Str("sid", string(b.SessionID)).Str("room", string(room.ID)).Str("user", string(b.User.ID)).Str("notice", string(notice))
	switch {
	case d.Closed:
		metrics.RoomsOpen.Dec()
		logEv.Msg("room closed")
		o.Gateway.Multicast(room.ID, core.RoomClosed(room.ID), "")
	case d.NewHost != nil:
		o.Registry.RefreshUser(room.ID, *d.NewHost)
		logEv.Str("new_host", string(d.NewHost.ID)).Msg("host changed")
		o.Gateway.Multicast(room.ID, core.HostChanged(room, d.NewHost.ID), "")
	case notice == core.EventUserDisconnected:
		logEv.Msg("user disconnected")
		o.Gateway.Multicast(room.ID, core.UserDisconnected(room, b.User.ID), "")
	default:
		logEv.Msg("user left")
		o.Gateway.Multicast(room.ID, core.UserLeft(room, b.User.ID), "")
	}
	return nil
}
