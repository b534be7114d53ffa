package domain

import "encoding/json"

type (
	RoomID   string
	RoomCode string
)

// Room is the aggregate the coordinator loads, mutates and saves as a whole.
// HostID always names exactly one entry of Users while Users is non-empty,
// and ActivePoll, when set, is the last element of PollHistory.
type Room struct {
	ID          RoomID   `json:"id"`
	Code        RoomCode `json:"code"`
	HostID      UserID   `json:"hostId"`
	Users       []User   `json:"users"`
	ActivePoll  *Poll    `json:"activePoll"`
	PollHistory []*Poll  `json:"pollHistory"`
}

func NewRoom(code RoomCode, host *User) *Room {
	host.IsHost = true
	return &Room{
		ID:          RoomID(NewID()),
		Code:        code,
		HostID:      host.ID,
		Users:       []User{*host},
		PollHistory: []*Poll{},
	}
}

// User returns the member with the given id.
func (r *Room) User(id UserID) (*User, bool) {
	for i := range r.Users {
		if r.Users[i].ID == id {
			return &r.Users[i], true
		}
	}
	return nil, false
}

// AddUser appends u in join order. Ids are unique; names are not.
func (r *Room) AddUser(u User) {
	u.IsHost = false
	r.Users = append(r.Users, u)
}

// Departure describes what removing a member did to the room.
type Departure struct {
	User    User
	NewHost *User // set when the host left and someone was promoted
	Closed  bool  // the room is empty and must leave the registry
}

// Depart removes the member. When the host leaves, the earliest remaining
// joiner is promoted; when nobody is left the room is marked closed.
func (r *Room) Depart(id UserID) (Departure, bool) {
	idx := -1
	for i := range r.Users {
		if r.Users[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Departure{}, false
	}
	d := Departure{User: r.Users[idx]}
	r.Users = append(r.Users[:idx:idx], r.Users[idx+1:]...)

	if len(r.Users) == 0 {
		r.HostID = ""
		d.Closed = true
		return d, true
	}
	if d.User.ID == r.HostID || d.User.IsHost {
		next := &r.Users[0]
		next.IsHost = true
		r.HostID = next.ID
		promoted := *next
		d.NewHost = &promoted
	}
	return d, true
}

// ActivatePoll makes p the active poll and appends it to the history.
func (r *Room) ActivatePoll(p *Poll) {
	r.PollHistory = append(r.PollHistory, p)
	r.ActivePoll = p
}

// Clone returns a deep copy. The copy's ActivePoll aliases the copy's last
// history entry, as in r.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Users = append([]User{}, r.Users...)
	c.PollHistory = make([]*Poll, len(r.PollHistory))
	for i, p := range r.PollHistory {
		c.PollHistory[i] = p.Clone()
	}
	c.ActivePoll = nil
	if r.ActivePoll != nil {
		c.ActivePoll = r.ActivePoll.Clone()
		c.relink()
	}
	return &c
}

// relink restores the ActivePoll/PollHistory aliasing lost by copying or decoding.
func (r *Room) relink() {
	if r.ActivePoll == nil {
		return
	}
	if n := len(r.PollHistory); n > 0 && r.PollHistory[n-1].ID == r.ActivePoll.ID {
		r.ActivePoll = r.PollHistory[n-1]
	}
}

func (r *Room) UnmarshalJSON(b []byte) error {
	type plain Room
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Room(p)
	if r.Users == nil {
		r.Users = []User{}
	}
	if r.PollHistory == nil {
		r.PollHistory = []*Poll{}
	}
	r.relink()
	return nil
}
