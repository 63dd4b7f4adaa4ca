// Package snapshots persists solve and backtest artifacts as msgpack blobs so
// runs can be replayed or exported later.
package snapshots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/tailrisk/internal/database"
)

// Kind labels the payload stored in a snapshot.
type Kind string

const (
	KindProgram  Kind = "program"
	KindResult   Kind = "result"
	KindBacktest Kind = "backtest"
)

// Snapshot is one stored artifact. Payload stays encoded until Decode is
// called.
type Snapshot struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Payload   []byte    `json:"-"`
}

// Decode unmarshals the payload into dst.
func (s *Snapshot) Decode(dst interface{}) error {
	if err := msgpack.Unmarshal(s.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", s.ID, err)
	}
	return nil
}

// Store reads and writes snapshots in the artifacts database.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a snapshot store over the artifacts database.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "snapshots").Logger(),
	}
}

// Save encodes value and inserts it under a fresh id, which is returned.
func (s *Store) Save(kind Kind, value interface{}) (string, error) {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s snapshot: %w", kind, err)
	}

	id := uuid.New().String()
	_, err = s.db.Exec(`
		INSERT INTO snapshots (id, kind, created_at, payload)
		VALUES (?, ?, ?, ?)
	`, id, string(kind), time.Now().UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return "", fmt.Errorf("failed to store %s snapshot: %w", kind, err)
	}

	s.log.Debug().Str("id", id).Str("kind", string(kind)).Int("bytes", len(payload)).Msg("Snapshot stored")
	return id, nil
}

// Load fetches one snapshot by id.
func (s *Store) Load(id string) (*Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, created_at, payload FROM snapshots WHERE id = ?
	`, id)

	snap, err := scanSnapshot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}
	return snap, nil
}

// List returns snapshots of one kind, newest first, up to limit (0 means no
// limit).
func (s *Store) List(kind Kind, limit int) ([]*Snapshot, error) {
	query := `SELECT id, kind, created_at, payload FROM snapshots WHERE kind = ? ORDER BY created_at DESC`
	args := []interface{}{string(kind)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s snapshots: %w", kind, err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Delete removes one snapshot. Missing ids are not an error.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	return nil
}

// Prune drops snapshots of a kind older than cutoff and reports how many went.
func (s *Store) Prune(kind Kind, cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM snapshots WHERE kind = ? AND created_at < ?
	`, string(kind), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s snapshots: %w", kind, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info().Str("kind", string(kind)).Int64("removed", n).Msg("Pruned snapshots")
	}
	return n, nil
}

func scanSnapshot(scan func(dest ...interface{}) error) (*Snapshot, error) {
	var snap Snapshot
	var kind, created string
	if err := scan(&snap.ID, &kind, &created, &snap.Payload); err != nil {
		return nil, err
	}
	snap.Kind = Kind(kind)
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", created, err)
	}
	snap.CreatedAt = ts
	return &snap, nil
}
