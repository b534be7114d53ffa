package orch

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/livepoll/internal/app"
	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
	"github.com/dkeye/livepoll/internal/store/memory"
	"github.com/dkeye/livepoll/internal/store/sqlite"
)

// recorder is a SignalConnection that keeps every decoded event.
type recorder struct {
	mu     sync.Mutex
	events []core.Event
	closed bool
}

func (r *recorder) TrySend(f core.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.ErrConnClosed
	}
	var ev core.Event
	if err := json.Unmarshal(f, &ev); err != nil {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) take() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

type harness struct {
	o     *Orchestrator
	reg   *app.Registry
	rooms core.RoomStore
	conns map[core.SessionID]*recorder
}

var fixedNow = time.UnixMilli(1700000000000)

func newHarness(t *testing.T, rooms core.RoomStore, s Settings) *harness {
	t.Helper()
	reg := app.NewRegistry()
	o := New(reg, rooms, app.NewBroadcaster(reg, app.SimplePolicy{}), s)
	o.Now = func() time.Time { return fixedNow }
	return &harness{o: o, reg: reg, rooms: rooms, conns: map[core.SessionID]*recorder{}}
}

func (h *harness) connect(sid core.SessionID) *recorder {
	rec := &recorder{}
	h.reg.BindSignal(sid, rec, func() {})
	h.conns[sid] = rec
	return rec
}

func (h *harness) drain() {
	for _, c := range h.conns {
		c.take()
	}
}

func (h *harness) room(t *testing.T, id domain.RoomID) *domain.Room {
	t.Helper()
	r, err := h.rooms.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get room %s: %v", id, err)
	}
	return r
}

func single(t *testing.T, rec *recorder, want core.EventType) core.Event {
	t.Helper()
	evs := rec.take()
	if len(evs) != 1 || evs[0].Type != want {
		t.Fatalf("expected one %s event, got %+v", want, evs)
	}
	return evs[0]
}

func none(t *testing.T, rec *recorder) {
	t.Helper()
	if evs := rec.take(); len(evs) != 0 {
		t.Fatalf("expected no events, got %+v", evs)
	}
}

// hostWithGuests creates a room owned by "h" and joins the given guest sids.
func (h *harness) hostWithGuests(t *testing.T, guests ...core.SessionID) *domain.Room {
	t.Helper()
	ctx := context.Background()
	h.connect("h")
	if err := h.o.CreateRoom(ctx, "h", "Alice"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	b, _ := h.reg.Binding("h")
	room := h.room(t, b.RoomID)
	for _, g := range guests {
		h.connect(g)
		if err := h.o.JoinRoom(ctx, g, string(room.Code), "guest-"+string(g)); err != nil {
			t.Fatalf("join %s: %v", g, err)
		}
	}
	h.drain()
	return h.room(t, room.ID)
}

func TestCreateRoom(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	rec := h.connect("a")

	if err := h.o.CreateRoom(context.Background(), "a", "Alice"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	ev := single(t, rec, core.EventRoomCreated)
	if ev.Room == nil || ev.User == nil {
		t.Fatalf("room_created without room or user: %+v", ev)
	}
	if !ev.User.IsHost || ev.Room.HostID != ev.User.ID || len(ev.Room.Users) != 1 {
		t.Errorf("creator is not the only host: %+v", ev.Room)
	}
	if ev.Room.ActivePoll != nil || len(ev.Room.PollHistory) != 0 {
		t.Errorf("new room has poll state: %+v", ev.Room)
	}
	if len(ev.Room.Code) != domain.DefaultCodeLength {
		t.Errorf("code %q has wrong length", ev.Room.Code)
	}
	b, ok := h.reg.Binding("a")
	if !ok || b.RoomID != ev.Room.ID || b.User.ID != ev.User.ID {
		t.Errorf("binding = %+v, %v", b, ok)
	}
}

func TestCreateRoomCodeCollision(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		wantErr  bool
	}{
		{"retries onto a free code", 3, false},
		{"gives up after the last attempt", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, memory.New(), Settings{CodeAttempts: tt.attempts})
			codes := []domain.RoomCode{"AAAAAA", "AAAAAA", "BBBBBB"}
			h.o.NewCode = func() (domain.RoomCode, error) {
				c := codes[0]
				codes = codes[1:]
				return c, nil
			}
			h.connect("a")
			h.connect("b")
			ctx := context.Background()
			if err := h.o.CreateRoom(ctx, "a", "Alice"); err != nil {
				t.Fatalf("first create: %v", err)
			}
			err := h.o.CreateRoom(ctx, "b", "Bob")
			if tt.wantErr {
				if domain.KindOf(err) != domain.KindInternal || domain.MessageOf(err) != "Failed to create room" {
					t.Fatalf("expected internal create failure, got %v", err)
				}
				if _, ok := h.reg.Binding("b"); ok {
					t.Error("failed create left a binding")
				}
				return
			}
			if err != nil {
				t.Fatalf("second create: %v", err)
			}
			b, _ := h.reg.Binding("b")
			if got := h.room(t, b.RoomID).Code; got != "BBBBBB" {
				t.Errorf("code = %s, want BBBBBB", got)
			}
		})
	}
}

func TestJoinRoom(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	room := h.hostWithGuests(t, "g1")
	joiner := h.connect("g2")

	// Codes are matched case-insensitively and trimmed.
	if err := h.o.JoinRoom(context.Background(), "g2", " "+string(room.Code)+" ", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	ev := single(t, joiner, core.EventRoomJoined)
	if ev.User.IsHost || ev.User.Name != "Bob" || len(ev.Room.Users) != 3 {
		t.Errorf("unexpected room_joined %+v", ev)
	}
	for _, sid := range []core.SessionID{"h", "g1"} {
		got := single(t, h.conns[sid], core.EventUserJoined)
		if got.User.ID != ev.User.ID || len(got.Room.Users) != 3 {
			t.Errorf("%s: unexpected user_joined %+v", sid, got)
		}
	}
	stored := h.room(t, room.ID)
	if stored.Users[2].Name != "Bob" {
		t.Errorf("joiner not appended: %+v", stored.Users)
	}
}

func TestJoinUnknownCode(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	h.connect("a")
	err := h.o.JoinRoom(context.Background(), "a", "NOPE42", "Alice")
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, ok := h.reg.Binding("a"); ok {
		t.Error("failed join left a binding")
	}
}

func TestLeaveRoom(t *testing.T) {
	t.Run("host leaving promotes the next user", func(t *testing.T) {
		h := newHarness(t, memory.New(), Settings{})
		room := h.hostWithGuests(t, "g1", "g2")
		next := room.Users[1]

		if err := h.o.LeaveRoom(context.Background(), "h"); err != nil {
			t.Fatalf("leave: %v", err)
		}
		none(t, h.conns["h"])
		for _, sid := range []core.SessionID{"g1", "g2"} {
			ev := single(t, h.conns[sid], core.EventHostChanged)
			if ev.NewHostID != next.ID || ev.Room.HostID != next.ID {
				t.Errorf("%s: new host = %s, want %s", sid, ev.NewHostID, next.ID)
			}
		}
		stored := h.room(t, room.ID)
		if len(stored.Users) != 2 || !stored.Users[0].IsHost || stored.HostID != next.ID {
			t.Errorf("host not handed over: %+v", stored)
		}
		if _, ok := h.reg.Binding("h"); ok {
			t.Error("leaver still bound")
		}
		if b, _ := h.reg.Binding("g1"); !b.User.IsHost {
			t.Error("promoted user's binding still says guest")
		}
	})

	t.Run("guest leaving is announced", func(t *testing.T) {
		h := newHarness(t, memory.New(), Settings{})
		room := h.hostWithGuests(t, "g1")
		guest := room.Users[1]

		if err := h.o.LeaveRoom(context.Background(), "g1"); err != nil {
			t.Fatalf("leave: %v", err)
		}
		ev := single(t, h.conns["h"], core.EventUserLeft)
		if ev.UserID != guest.ID || len(ev.Room.Users) != 1 {
			t.Errorf("unexpected user_left %+v", ev)
		}
		none(t, h.conns["g1"])
	})

	t.Run("last user closes the room", func(t *testing.T) {
		h := newHarness(t, memory.New(), Settings{})
		room := h.hostWithGuests(t)

		if err := h.o.LeaveRoom(context.Background(), "h"); err != nil {
			t.Fatalf("leave: %v", err)
		}
		if _, err := h.rooms.Get(context.Background(), room.ID); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Fatalf("room still stored: %v", err)
		}
		h.connect("late")
		if err := h.o.JoinRoom(context.Background(), "late", string(room.Code), "Late"); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("join of closed room: %v", err)
		}
	})

	t.Run("unbound connection", func(t *testing.T) {
		h := newHarness(t, memory.New(), Settings{})
		h.connect("a")
		if err := h.o.LeaveRoom(context.Background(), "a"); !errors.Is(err, domain.ErrNotInRoom) {
			t.Errorf("expected ErrNotInRoom, got %v", err)
		}
	})
}

func TestOnDisconnect(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	room := h.hostWithGuests(t, "g1", "g2")

	h.o.OnDisconnect(context.Background(), "g2")
	for _, sid := range []core.SessionID{"h", "g1"} {
		ev := single(t, h.conns[sid], core.EventUserDisconnected)
		if ev.UserID != room.Users[2].ID {
			t.Errorf("%s: disconnected user = %s", sid, ev.UserID)
		}
	}
	if _, ok := h.reg.Signal("g2"); ok {
		t.Error("disconnected connection still registered")
	}

	h.o.OnDisconnect(context.Background(), "h")
	ev := single(t, h.conns["g1"], core.EventHostChanged)
	if ev.NewHostID != room.Users[1].ID {
		t.Errorf("new host = %s", ev.NewHostID)
	}

	h.o.OnDisconnect(context.Background(), "g1")
	if _, err := h.rooms.Get(context.Background(), room.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("room survived its last user: %v", err)
	}
	if h.reg.Count() != 0 {
		t.Errorf("registry count = %d", h.reg.Count())
	}
}

func TestRebindLeavesPreviousRoom(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	first := h.hostWithGuests(t, "g1")

	if err := h.o.CreateRoom(context.Background(), "h", "Alice again"); err != nil {
		t.Fatalf("create second room: %v", err)
	}
	ev := single(t, h.conns["g1"], core.EventHostChanged)
	if ev.Room.ID != first.ID {
		t.Errorf("host_changed for wrong room %s", ev.Room.ID)
	}
	created := single(t, h.conns["h"], core.EventRoomCreated)
	if created.Room.ID == first.ID {
		t.Error("second room reused the first id")
	}
	b, _ := h.reg.Binding("h")
	if b.RoomID != created.Room.ID {
		t.Errorf("binding points to %s", b.RoomID)
	}
	if got := h.room(t, first.ID); len(got.Users) != 1 {
		t.Errorf("first room users = %+v", got.Users)
	}
}

func createPoll(t *testing.T, h *harness, sid core.SessionID, roomID domain.RoomID, p domain.PollParams) *domain.Poll {
	t.Helper()
	if err := h.o.CreatePoll(context.Background(), sid, roomID, p); err != nil {
		t.Fatalf("create poll: %v", err)
	}
	ev := single(t, h.conns[sid], core.EventPollCreated)
	h.drain()
	return ev.Poll
}

func TestCreatePoll(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	room := h.hostWithGuests(t, "g1")

	params := domain.PollParams{Title: "Lunch?", Options: []string{"Pizza", "Sushi"}}
	if err := h.o.CreatePoll(context.Background(), "h", room.ID, params); err != nil {
		t.Fatalf("create poll: %v", err)
	}
	for _, sid := range []core.SessionID{"h", "g1"} {
		ev := single(t, h.conns[sid], core.EventPollCreated)
		if ev.Poll == nil || ev.Poll.Title != "Lunch?" || len(ev.Poll.Options) != 2 {
			t.Fatalf("%s: unexpected poll %+v", sid, ev.Poll)
		}
		if ev.Room.ActivePoll == nil || ev.Room.ActivePoll.ID != ev.Poll.ID {
			t.Errorf("%s: room snapshot does not carry the poll", sid)
		}
		if ev.Poll.CreatedAt != fixedNow.UnixMilli() {
			t.Errorf("createdAt = %d", ev.Poll.CreatedAt)
		}
	}

	// A second poll replaces the active one; both stay in history.
	if err := h.o.CreatePoll(context.Background(), "g1", room.ID, domain.PollParams{Title: "Dinner?", Options: []string{"A", "B"}}); err != nil {
		t.Fatalf("create second poll: %v", err)
	}
	stored := h.room(t, room.ID)
	if len(stored.PollHistory) != 2 || stored.ActivePoll != stored.PollHistory[1] || stored.ActivePoll.Title != "Dinner?" {
		t.Errorf("history = %+v active = %+v", stored.PollHistory, stored.ActivePoll)
	}
}

func TestCreatePollRejections(t *testing.T) {
	tests := []struct {
		name        string
		requireHost bool
		sid         core.SessionID
		room        func(*domain.Room) domain.RoomID
		want        error
	}{
		{"unbound", false, "stranger", func(r *domain.Room) domain.RoomID { return r.ID }, domain.ErrNotAuthenticated},
		{"unknown room", false, "g1", func(*domain.Room) domain.RoomID { return "missing" }, domain.ErrRoomNotFound},
		{"guest when host required", true, "g1", func(r *domain.Room) domain.RoomID { return r.ID }, domain.ErrNotHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, memory.New(), Settings{RequireHost: tt.requireHost})
			room := h.hostWithGuests(t, "g1")
			h.connect("stranger")

			err := h.o.CreatePoll(context.Background(), tt.sid, tt.room(room), domain.PollParams{Title: "x", Options: []string{"a", "b"}})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got := h.room(t, room.ID); got.ActivePoll != nil {
				t.Error("rejected poll reached the room")
			}
			none(t, h.conns["h"])
		})
	}

	t.Run("host allowed when host required", func(t *testing.T) {
		h := newHarness(t, memory.New(), Settings{RequireHost: true})
		room := h.hostWithGuests(t, "g1")
		if err := h.o.CreatePoll(context.Background(), "h", room.ID, domain.PollParams{Title: "x", Options: []string{"a", "b"}}); err != nil {
			t.Fatalf("host create poll: %v", err)
		}
	})
}

func TestVote(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	room := h.hostWithGuests(t, "g1")
	poll := createPoll(t, h, "h", room.ID, domain.PollParams{Title: "Q", Options: []string{"A", "B"}})
	a, b := poll.Options[0].ID, poll.Options[1].ID
	ctx := context.Background()

	if err := h.o.Vote(ctx, "g1", room.ID, poll.ID, a); err != nil {
		t.Fatalf("vote: %v", err)
	}
	for _, sid := range []core.SessionID{"h", "g1"} {
		ev := single(t, h.conns[sid], core.EventVoteAdded)
		if ev.Vote == nil || ev.Vote.OptionID != a || ev.Vote.UserName != "guest-g1" || ev.Vote.Timestamp != fixedNow.UnixMilli() {
			t.Errorf("%s: unexpected vote %+v", sid, ev.Vote)
		}
		if len(ev.Poll.Options[0].Votes) != 1 {
			t.Errorf("%s: poll snapshot misses the vote", sid)
		}
	}

	// Single choice without changes: both follow-ups are refused and leave
	// the stored poll untouched.
	if err := h.o.Vote(ctx, "g1", room.ID, poll.ID, b); !errors.Is(err, domain.ErrCannotChangeVote) {
		t.Errorf("second option: %v", err)
	}
	if err := h.o.Vote(ctx, "g1", room.ID, poll.ID, a); !errors.Is(err, domain.ErrCannotChangeVote) {
		t.Errorf("same option: %v", err)
	}
	stored := h.room(t, room.ID)
	if n := len(stored.ActivePoll.Options[0].Votes) + len(stored.ActivePoll.Options[1].Votes); n != 1 {
		t.Errorf("stored votes = %d", n)
	}
	if stored.ActivePoll != stored.PollHistory[len(stored.PollHistory)-1] {
		t.Error("active poll detached from history")
	}
}

func TestVoteChangeAndMultiple(t *testing.T) {
	tests := []struct {
		name      string
		params    domain.PollParams
		votes     []int
		wantErr   error
		wantTally []int
	}{
		{"change moves the vote", domain.PollParams{AllowChangeVotes: true}, []int{0, 1}, nil, []int{0, 1}},
		{"multiple adds votes", domain.PollParams{AllowMultipleVotes: true}, []int{0, 1}, nil, []int{1, 1}},
		{"multiple refuses a duplicate", domain.PollParams{AllowMultipleVotes: true}, []int{0, 0}, domain.ErrDuplicateVote, []int{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, memory.New(), Settings{})
			room := h.hostWithGuests(t)
			tt.params.Title = "Q"
			tt.params.Options = []string{"A", "B"}
			poll := createPoll(t, h, "h", room.ID, tt.params)

			var err error
			for _, i := range tt.votes {
				err = h.o.Vote(context.Background(), "h", room.ID, poll.ID, poll.Options[i].ID)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("last vote: expected %v, got %v", tt.wantErr, err)
			}
			stored := h.room(t, room.ID)
			for i, want := range tt.wantTally {
				if got := len(stored.ActivePoll.Options[i].Votes); got != want {
					t.Errorf("option %d votes = %d, want %d", i, got, want)
				}
			}
		})
	}
}

func TestVoteRejections(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	room := h.hostWithGuests(t, "g1")
	poll := createPoll(t, h, "h", room.ID, domain.PollParams{Title: "Q", Options: []string{"A", "B"}})
	h.connect("stranger")
	ctx := context.Background()

	tests := []struct {
		name   string
		sid    core.SessionID
		room   domain.RoomID
		poll   domain.PollID
		option domain.OptionID
		want   error
	}{
		{"unbound", "stranger", room.ID, poll.ID, poll.Options[0].ID, domain.ErrNotAuthenticated},
		{"unknown room", "g1", "missing", poll.ID, poll.Options[0].ID, domain.ErrPollNotFound},
		{"stale poll", "g1", room.ID, "old", poll.Options[0].ID, domain.ErrPollNotFound},
		{"unknown option", "g1", room.ID, poll.ID, "nope", domain.ErrOptionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.o.Vote(ctx, tt.sid, tt.room, tt.poll, tt.option); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			none(t, h.conns["h"])
		})
	}
}

func TestConcurrentVotesAreSerialized(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	guests := make([]core.SessionID, 20)
	for i := range guests {
		guests[i] = core.SessionID("g" + string(rune('a'+i)))
	}
	room := h.hostWithGuests(t, guests...)
	poll := createPoll(t, h, "h", room.ID, domain.PollParams{Title: "Q", Options: []string{"A", "B"}})

	var wg sync.WaitGroup
	for i, sid := range guests {
		wg.Add(1)
		go func(sid core.SessionID, opt domain.OptionID) {
			defer wg.Done()
			if err := h.o.Vote(context.Background(), sid, room.ID, poll.ID, opt); err != nil {
				t.Errorf("%s vote: %v", sid, err)
			}
		}(sid, poll.Options[i%2].ID)
	}
	wg.Wait()

	stored := h.room(t, room.ID)
	if got := len(stored.ActivePoll.Options[0].Votes) + len(stored.ActivePoll.Options[1].Votes); got != len(guests) {
		t.Errorf("stored votes = %d, want %d", got, len(guests))
	}
}

func TestCompleteSendsErrorToActorOnly(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	h.hostWithGuests(t, "g1")

	h.o.Complete("g1", ActionVote, domain.ErrCannotChangeVote)
	ev := single(t, h.conns["g1"], core.EventError)
	if ev.Message != "You cannot change your vote in this poll" {
		t.Errorf("message = %q", ev.Message)
	}
	none(t, h.conns["h"])

	h.o.Complete("g1", ActionCreateRoom, domain.Internal("Failed to create room", errors.New("disk full")))
	if ev := single(t, h.conns["g1"], core.EventError); ev.Message != "Failed to create room" {
		t.Errorf("internal message = %q", ev.Message)
	}

	h.o.Complete("g1", ActionLeaveRoom, nil)
	none(t, h.conns["g1"])
}

func TestSQLiteBackedSession(t *testing.T) {
	ctx := context.Background()
	rooms, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "rooms.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = rooms.Close() })

	h := newHarness(t, rooms, Settings{})
	room := h.hostWithGuests(t, "g1")
	poll := createPoll(t, h, "h", room.ID, domain.PollParams{Title: "Q", Options: []string{"A", "B"}, AllowChangeVotes: true})

	if err := h.o.Vote(ctx, "g1", room.ID, poll.ID, poll.Options[0].ID); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := h.o.Vote(ctx, "g1", room.ID, poll.ID, poll.Options[1].ID); err != nil {
		t.Fatalf("change vote: %v", err)
	}
	if err := h.o.LeaveRoom(ctx, "h"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	stored := h.room(t, room.ID)
	if stored.HostID != room.Users[1].ID || len(stored.Users) != 1 {
		t.Errorf("host not handed over: %+v", stored)
	}
	if stored.ActivePoll != stored.PollHistory[0] {
		t.Error("active poll detached from history after reload")
	}
	if len(stored.ActivePoll.Options[0].Votes) != 0 || len(stored.ActivePoll.Options[1].Votes) != 1 {
		t.Errorf("vote not moved: %+v", stored.ActivePoll.Options)
	}

	n, err := h.o.OpenRooms(ctx)
	if err != nil || n != 1 {
		t.Errorf("open rooms = %d, %v", n, err)
	}
}

func TestJoinOwnRoomChangesNothing(t *testing.T) {
	tests := []struct {
		name   string
		guests []core.SessionID
	}{
		{"alone", nil},
		{"with a guest", []core.SessionID{"g1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, memory.New(), Settings{})
			room := h.hostWithGuests(t, tt.guests...)

			if err := h.o.JoinRoom(context.Background(), "h", string(room.Code), "Alice"); err != nil {
				t.Fatalf("join own room: %v", err)
			}
			ev := single(t, h.conns["h"], core.EventRoomJoined)
			if !ev.User.IsHost || ev.Room.ID != room.ID {
				t.Errorf("unexpected room_joined %+v", ev)
			}
			for _, g := range tt.guests {
				none(t, h.conns[g])
			}
			stored := h.room(t, room.ID)
			if stored.HostID != room.HostID || len(stored.Users) != len(room.Users) {
				t.Errorf("room changed: %+v", stored)
			}
			if b, ok := h.reg.Binding("h"); !ok || b.RoomID != room.ID {
				t.Errorf("binding = %+v, %v", b, ok)
			}
		})
	}
}

func TestFailedCreateKeepsPreviousRoom(t *testing.T) {
	tests := []struct {
		name    string
		newCode func(taken domain.RoomCode) func() (domain.RoomCode, error)
	}{
		{"code generator fails", func(domain.RoomCode) func() (domain.RoomCode, error) {
			return func() (domain.RoomCode, error) { return "", errors.New("entropy exhausted") }
		}},
		{"only taken codes", func(taken domain.RoomCode) func() (domain.RoomCode, error) {
			return func() (domain.RoomCode, error) { return taken, nil }
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, memory.New(), Settings{CodeAttempts: 2})
			room := h.hostWithGuests(t, "g1")
			h.o.NewCode = tt.newCode(room.Code)

			err := h.o.CreateRoom(context.Background(), "h", "Alice")
			if domain.KindOf(err) != domain.KindInternal {
				t.Fatalf("expected internal error, got %v", err)
			}
			none(t, h.conns["g1"])
			stored := h.room(t, room.ID)
			if stored.HostID != room.HostID || len(stored.Users) != 2 {
				t.Errorf("previous room changed: %+v", stored)
			}
			if b, ok := h.reg.Binding("h"); !ok || b.RoomID != room.ID {
				t.Errorf("binding = %+v, %v", b, ok)
			}
			infos, _ := h.rooms.List(context.Background())
			if len(infos) != 1 {
				t.Errorf("rooms in store = %d", len(infos))
			}
		})
	}
}

func TestJoinAnotherRoomLeavesPrevious(t *testing.T) {
	h := newHarness(t, memory.New(), Settings{})
	first := h.hostWithGuests(t, "g1")

	h.connect("x")
	if err := h.o.CreateRoom(context.Background(), "x", "Xavier"); err != nil {
		t.Fatalf("create second room: %v", err)
	}
	created := single(t, h.conns["x"], core.EventRoomCreated)

	if err := h.o.JoinRoom(context.Background(), "g1", string(created.Room.Code), "Bob"); err != nil {
		t.Fatalf("join second room: %v", err)
	}
	single(t, h.conns["h"], core.EventUserLeft)
	single(t, h.conns["g1"], core.EventRoomJoined)
	single(t, h.conns["x"], core.EventUserJoined)
	if got := h.room(t, first.ID); len(got.Users) != 1 {
		t.Errorf("first room users = %+v", got.Users)
	}
}

func TestReapOrphans(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rooms.db")

	rooms, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	h := newHarness(t, rooms, Settings{})
	stale := h.hostWithGuests(t, "g1")
	// The process dies without any disconnect.
	if err := rooms.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rooms, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	t.Cleanup(func() { _ = rooms.Close() })
	h = newHarness(t, rooms, Settings{})
	live := h.hostWithGuests(t)

	n, err := h.o.ReapOrphans(ctx)
	if err != nil || n != 1 {
		t.Fatalf("reaped %d, %v", n, err)
	}
	h.connect("late")
	if err := h.o.JoinRoom(ctx, "late", string(stale.Code), "Late"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Errorf("join of reaped room: %v", err)
	}
	if _, err := rooms.Get(ctx, live.ID); err != nil {
		t.Errorf("live room reaped: %v", err)
	}
}
