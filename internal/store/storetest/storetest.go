// Package storetest is a behavioural suite every core.RoomStore must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
)

func newRoom(code domain.RoomCode, names ...string) *domain.Room {
	r := domain.NewRoom(code, domain.NewUser(names[0], true))
	for _, n := range names[1:] {
		r.AddUser(*domain.NewUser(n, false))
	}
	return r
}

// Run exercises a fresh, empty store returned by open.
func Run(t *testing.T, open func(t *testing.T) core.RoomStore) {
	t.Run("InsertAndGet", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		room := newRoom("AAA111", "host", "guest")
		if err := s.Insert(ctx, room); err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, err := s.Get(ctx, room.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Code != room.Code || got.HostID != room.HostID || len(got.Users) != 2 {
			t.Errorf("unexpected room %+v", got)
		}
		byCode, err := s.FindByCode(ctx, "AAA111")
		if err != nil || byCode.ID != room.ID {
			t.Errorf("find by code: %v %+v", err, byCode)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("get: expected ErrRoomNotFound, got %v", err)
		}
		if _, err := s.FindByCode(ctx, "NOPE00"); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("find: expected ErrRoomNotFound, got %v", err)
		}
		if err := s.Save(ctx, newRoom("NOPE01", "x")); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("save: expected ErrRoomNotFound, got %v", err)
		}
		if err := s.Remove(ctx, "nope"); err != nil {
			t.Errorf("remove of missing room should be a no-op, got %v", err)
		}
	})

	t.Run("CodeCollision", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		if err := s.Insert(ctx, newRoom("DUP123", "a")); err != nil {
			t.Fatal(err)
		}
		if err := s.Insert(ctx, newRoom("DUP123", "b")); !errors.Is(err, core.ErrCodeTaken) {
			t.Fatalf("expected ErrCodeTaken, got %v", err)
		}
	})

	t.Run("CopiesAreIndependent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		room := newRoom("CPY123", "host")
		if err := s.Insert(ctx, room); err != nil {
			t.Fatal(err)
		}
		room.AddUser(*domain.NewUser("late", false))

		got, err := s.Get(ctx, room.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Users) != 1 {
			t.Fatalf("caller mutation leaked into the store: %d users", len(got.Users))
		}
		got.AddUser(*domain.NewUser("other", false))
		again, _ := s.Get(ctx, room.ID)
		if len(again.Users) != 1 {
			t.Fatalf("unsaved mutation visible: %d users", len(again.Users))
		}
	})

	t.Run("SaveKeepsActivePoll", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		room := newRoom("POL123", "host", "guest")
		if err := s.Insert(ctx, room); err != nil {
			t.Fatal(err)
		}
		room.ActivatePoll(domain.NewPoll(domain.PollParams{Title: "q", Options: []string{"a", "b"}}, room.HostID, time.Now()))
		if _, err := room.ActivePoll.CastVote(room.Users[1], room.ActivePoll.Options[1].ID, time.Now()); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, room); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := s.Get(ctx, room.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.ActivePoll == nil || len(got.PollHistory) != 1 || got.ActivePoll != got.PollHistory[0] {
			t.Fatalf("active poll not restored as last history entry: %+v", got)
		}
		if n := len(got.ActivePoll.Options[1].Votes); n != 1 {
			t.Errorf("expected 1 stored vote, got %d", n)
		}
	})

	t.Run("RemoveFreesCode", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		room := newRoom("RMV123", "host")
		if err := s.Insert(ctx, room); err != nil {
			t.Fatal(err)
		}
		if err := s.Remove(ctx, room.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := s.FindByCode(ctx, "RMV123"); !errors.Is(err, domain.ErrRoomNotFound) {
			t.Errorf("expected removed room to be gone, got %v", err)
		}
		if err := s.Insert(ctx, newRoom("RMV123", "next")); err != nil {
			t.Errorf("code should be reusable after removal: %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for _, code := range []domain.RoomCode{"BBB222", "AAA111"} {
			if err := s.Insert(ctx, newRoom(code, "host", "guest")); err != nil {
				t.Fatal(err)
			}
		}
		infos, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(infos) != 2 || infos[0].Code != "AAA111" || infos[1].Code != "BBB222" {
			t.Fatalf("unexpected listing %+v", infos)
		}
		if infos[0].UserCount != 2 {
			t.Errorf("expected 2 users, got %d", infos[0].UserCount)
		}
	})
}
