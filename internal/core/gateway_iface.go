package core

import "github.com/dkeye/livepoll/internal/domain"

// Gateway delivers events. Delivery is fire-and-forget, at most once per
// connected recipient.
type Gateway interface {
	// Unicast sends ev to one connection.
	Unicast(sid SessionID, ev Event)
	// Multicast sends ev to every connection bound to room, except the
	// given session when non-empty.
	Multicast(room domain.RoomID, ev Event, except SessionID)
}
