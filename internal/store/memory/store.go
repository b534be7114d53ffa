// Package memory is the process-resident room registry.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
)

type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*domain.Room
	codes map[domain.RoomCode]domain.RoomID
}

func New() *Store {
	return &Store{
		rooms: make(map[domain.RoomID]*domain.Room),
		codes: make(map[domain.RoomCode]domain.RoomID),
	}
}

func (s *Store) Insert(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[room.Code]; taken {
		return core.ErrCodeTaken
	}
	s.rooms[room.ID] = room.Clone()
	s.codes[room.Code] = room.ID
	return nil
}

func (s *Store) Get(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *Store) FindByCode(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	s.mu.RLock()
	id, ok := s.codes[code]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) Save(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return domain.ErrRoomNotFound
	}
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *Store) Remove(_ context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[id]; ok {
		delete(s.codes, room.Code)
		delete(s.rooms, id)
	}
	return nil
}

func (s *Store) List(context.Context) ([]core.RoomInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, core.InfoOf(r))
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return strings.Compare(string(a.Code), string(b.Code)) })
	return out, nil
}

func (s *Store) Close() error { return nil }
