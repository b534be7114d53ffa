package app

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
	"github.com/dkeye/livepoll/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Broadcaster is the core.Gateway over registry-bound signal connections.
type Broadcaster struct {
	Registry *Registry
	Policy   Policy
}

func NewBroadcaster(reg *Registry, policy Policy) *Broadcaster {
	return &Broadcaster{Registry: reg, Policy: policy}
}

func encode(ev core.Event) (core.Frame, bool) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Str("type", string(ev.Type)).Msg("marshal event")
		return nil, false
	}
	return b, true
}

func (b *Broadcaster) Unicast(sid core.SessionID, ev core.Event) {
	conn, ok := b.Registry.Signal(sid)
	if !ok {
		return
	}
	frame, ok := encode(ev)
	if !ok {
		return
	}
	b.deliver("", sid, conn, frame)
}

func (b *Broadcaster) Multicast(room domain.RoomID, ev core.Event, except core.SessionID) {
	frame, ok := encode(ev)
	if !ok {
		return
	}
	members := b.Registry.MembersOfRoom(room)
	sent := 0
	for _, m := range members {
		if m.SID == except {
			continue
		}
		if b.deliver(room, m.SID, m.Signal, frame) {
			sent++
		}
	}
	log.Debug().Str("module", "app.broadcast").Str("room", string(room)).Str("type", string(ev.Type)).Int("sent_to", sent).Msg("broadcast result")
}

func (b *Broadcaster) deliver(room domain.RoomID, sid core.SessionID, conn core.SignalConnection, frame core.Frame) bool {
	err := conn.TrySend(frame)
	if err == nil {
		return true
	}
	if !errors.Is(err, core.ErrBackpressure) {
		return false
	}
	metrics.BroadcastDropped.Inc()
	log.Warn().Str("module", "app.broadcast").Str("sid", string(sid)).Msg("send queue full")
	if b.Policy != nil && b.Policy.OnBackPressure(room, sid) == KickMember {
		b.Registry.Kick(sid)
	}
	return false
}
