package core

import (
	"context"
	"errors"

	"github.com/dkeye/livepoll/internal/domain"
)

var ErrCodeTaken = errors.New("room code already in use")

// RoomInfo is a read-only listing entry (no votes, no members).
type RoomInfo struct {
	ID         domain.RoomID   `json:"id"`
	Code       domain.RoomCode `json:"code"`
	UserCount  int             `json:"userCount"`
	ActivePoll string          `json:"activePoll,omitempty"`
	PollCount  int             `json:"pollCount"`
}

func InfoOf(r *domain.Room) RoomInfo {
	info := RoomInfo{ID: r.ID, Code: r.Code, UserCount: len(r.Users), PollCount: len(r.PollHistory)}
	if r.ActivePoll != nil {
		info.ActivePoll = r.ActivePoll.Title
	}
	return info
}

// RoomStore is the room registry. Implementations hand out independent
// copies: a caller's mutation is invisible until it calls Save.
// Missing rooms are reported as domain.ErrRoomNotFound.
type RoomStore interface {
	Insert(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	FindByCode(ctx context.Context, code domain.RoomCode) (*domain.Room, error)
	Save(ctx context.Context, room *domain.Room) error
	Remove(ctx context.Context, id domain.RoomID) error
	List(ctx context.Context) ([]RoomInfo, error)
	Close() error
}
