package core

import "github.com/dkeye/livepoll/internal/domain"

type EventType string

const (
	EventRoomCreated      EventType = "room_created"
	EventRoomJoined       EventType = "room_joined"
	EventUserJoined       EventType = "user_joined"
	EventUserLeft         EventType = "user_left"
	EventUserDisconnected EventType = "user_disconnected"
	EventHostChanged      EventType = "host_changed"
	EventRoomClosed       EventType = "room_closed"
	EventPollCreated      EventType = "poll_created"
	EventVoteAdded        EventType = "vote_added"
	EventError            EventType = "error"
	EventPong             EventType = "pong"
	EventWhoAmI           EventType = "whoami"
)

// Event is the single outbound envelope. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType     `json:"type"`
	Room      *domain.Room  `json:"room,omitempty"`
	User      *domain.User  `json:"user,omitempty"`
	Poll      *domain.Poll  `json:"poll,omitempty"`
	Vote      *domain.Vote  `json:"vote,omitempty"`
	NewHostID domain.UserID `json:"newHostId,omitempty"`
	UserID    domain.UserID `json:"userId,omitempty"`
	RoomID    domain.RoomID `json:"roomId,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// Every constructor snapshots its room so later mutations never reach
// an event that is still queued.

func RoomCreated(room *domain.Room, user domain.User) Event {
	return Event{Type: EventRoomCreated, Room: room.Clone(), User: &user}
}

func RoomJoined(room *domain.Room, user domain.User) Event {
	return Event{Type: EventRoomJoined, Room: room.Clone(), User: &user}
}

func UserJoined(room *domain.Room, user domain.User) Event {
	return Event{Type: EventUserJoined, Room: room.Clone(), User: &user}
}

func UserLeft(room *domain.Room, uid domain.UserID) Event {
	return Event{Type: EventUserLeft, Room: room.Clone(), UserID: uid}
}

func UserDisconnected(room *domain.Room, uid domain.UserID) Event {
	return Event{Type: EventUserDisconnected, Room: room.Clone(), UserID: uid}
}

func HostChanged(room *domain.Room, newHost domain.UserID) Event {
	return Event{Type: EventHostChanged, Room: room.Clone(), NewHostID: newHost}
}

func RoomClosed(id domain.RoomID) Event {
	return Event{Type: EventRoomClosed, RoomID: id}
}

func PollCreated(room *domain.Room) Event {
	snap := room.Clone()
	return Event{Type: EventPollCreated, Room: snap, Poll: snap.ActivePoll}
}

func VoteAdded(room *domain.Room, vote domain.Vote) Event {
	snap := room.Clone()
	return Event{Type: EventVoteAdded, Room: snap, Poll: snap.ActivePoll, Vote: &vote}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
