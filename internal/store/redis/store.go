// Package redis keeps rooms in a redis instance: one JSON value per room,
// a code → id key claimed with SETNX and a set of open room ids.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	rdb    *redis.Client
	prefix string
}

// Open connects to redis and verifies connectivity
func Open(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "livepoll"
	}
	log.Info().Str("module", "store.redis").Str("addr", opts.Addr).Str("prefix", prefix).Msg("connected")
	return &Store{rdb: rdb, prefix: prefix}, nil
}

func (s *Store) roomKey(id domain.RoomID) string     { return s.prefix + ":room:" + string(id) }
func (s *Store) codeKey(code domain.RoomCode) string { return s.prefix + ":code:" + string(code) }
func (s *Store) idsKey() string                      { return s.prefix + ":rooms" }

func (s *Store) Insert(ctx context.Context, room *domain.Room) error {
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	claimed, err := s.rdb.SetNX(ctx, s.codeKey(room.Code), string(room.ID), 0).Result()
	if err != nil {
		return fmt.Errorf("claim code: %w", err)
	}
	if !claimed {
		return core.ErrCodeTaken
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.roomKey(room.ID), state, 0)
		p.SAdd(ctx, s.idsKey(), string(room.ID))
		return nil
	})
	if err != nil {
		_ = s.rdb.Del(ctx, s.codeKey(room.Code)).Err()
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func decode(raw string) (*domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal([]byte(raw), &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

func (s *Store) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	raw, err := s.rdb.Get(ctx, s.roomKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	return decode(raw)
}

func (s *Store) FindByCode(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	id, err := s.rdb.Get(ctx, s.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup code: %w", err)
	}
	return s.Get(ctx, domain.RoomID(id))
}

func (s *Store) Save(ctx context.Context, room *domain.Room) error {
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	// XX: only overwrite an existing room, never resurrect a removed one.
	err = s.rdb.SetArgs(ctx, s.roomKey(room.ID), state, redis.SetArgs{Mode: "XX"}).Err()
	if errors.Is(err, redis.Nil) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id domain.RoomID) error {
	room, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.roomKey(id), s.codeKey(room.Code))
		p.SRem(ctx, s.idsKey(), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove room: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]core.RoomInfo, error) {
	ids, err := s.rdb.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := []core.RoomInfo{}
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.roomKey(domain.RoomID(id))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		room, err := decode(raw)
		if err != nil {
			log.Warn().Err(err).Str("module", "store.redis").Msg("skipping undecodable room")
			continue
		}
		out = append(out, core.InfoOf(room))
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return strings.Compare(string(a.Code), string(b.Code)) })
	return out, nil
}

func (s *Store) Close() error { return s.rdb.Close() }
