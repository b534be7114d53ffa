package app

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dkeye/livepoll/internal/domain"
)

const DefaultLockStripes = 64

// RoomLocks serializes actions per room. Rooms hash onto a fixed set of
// mutexes, so two rooms may share a stripe but one room never spans two.
// Two rooms are only ever taken together through LockPair.
type RoomLocks struct {
	stripes []sync.Mutex
}

func NewRoomLocks(n int) *RoomLocks {
	if n <= 0 {
		n = DefaultLockStripes
	}
	return &RoomLocks{stripes: make([]sync.Mutex, n)}
}

func (l *RoomLocks) stripe(id domain.RoomID) int {
	return int(xxhash.Sum64String(string(id)) % uint64(len(l.stripes)))
}

// Lock blocks until the room's stripe is held and returns its unlock func.
func (l *RoomLocks) Lock(id domain.RoomID) func() {
	m := &l.stripes[l.stripe(id)]
	m.Lock()
	return m.Unlock
}

// LockPair holds both rooms' stripes, taken in index order so concurrent
// pairs cannot deadlock. Rooms sharing a stripe lock it once.
func (l *RoomLocks) LockPair(a, b domain.RoomID) func() {
	i, j := l.stripe(a), l.stripe(b)
	if i == j {
		return l.Lock(a)
	}
	if i > j {
		i, j = j, i
	}
	l.stripes[i].Lock()
	l.stripes[j].Lock()
	return func() {
		l.stripes[j].Unlock()
		l.stripes[i].Unlock()
	}
}
