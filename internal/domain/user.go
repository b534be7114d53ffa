// Package domain contains the room and poll entities together with the rules
// that keep them consistent. Nothing here knows about transport or storage.
package domain

type UserID string

type User struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in the coordinator.
// Names are free text and are not validated.
func NewUser(name string, host bool) *User {
	return &User{ID: UserID(NewID()), Name: name, IsHost: host}
}
