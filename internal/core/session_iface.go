package core

import "github.com/dkeye/livepoll/internal/domain"

// SessionID identifies one live transport connection.
type SessionID string

// Binding is the (user, room) pair a connection currently acts as.
// User is a snapshot taken on join; host status is read from the room.
type Binding struct {
	SessionID SessionID
	RoomID    domain.RoomID
	User      domain.User
}
