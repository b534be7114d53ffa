// Package sqlite is the local-durable room registry. Each room is stored as
// one JSON document; the code column carries the uniqueness constraint.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	state TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

type Store struct {
	db *sql.DB
}

// Open creates the database file if needed and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Room writes are already serialized per room; one connection keeps
	// sqlite from returning SQLITE_BUSY across rooms.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	log.Info().Str("module", "store.sqlite").Str("path", path).Msg("opened")
	return &Store{db: db}, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *Store) Insert(ctx context.Context, room *domain.Room) error {
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, code, state, updated_at) VALUES (?, ?, ?, ?)`,
		string(room.ID), string(room.Code), string(state), time.Now().UnixMilli())
	if isUniqueViolation(err) {
		return core.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *Store) scanOne(row *sql.Row) (*domain.Room, error) {
	var state string
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("load room: %w", err)
	}
	var room domain.Room
	if err := json.Unmarshal([]byte(state), &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

func (s *Store) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `SELECT state FROM rooms WHERE id = ?`, string(id)))
}

func (s *Store) FindByCode(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `SELECT state FROM rooms WHERE code = ?`, string(code)))
}

func (s *Store) Save(ctx context.Context, room *domain.Room) error {
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UnixMilli(), string(room.ID))
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id domain.RoomID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("remove room: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]core.RoomInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM rooms ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	out := []core.RoomInfo{}
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		var room domain.Room
		if err := json.Unmarshal([]byte(state), &room); err != nil {
			log.Warn().Err(err).Str("module", "store.sqlite").Msg("skipping undecodable room")
			continue
		}
		out = append(out, core.InfoOf(&room))
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
