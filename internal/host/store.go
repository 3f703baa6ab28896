package host

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/occupancy-core/internal/infrastructure/database"
	"github.com/nerrad567/occupancy-core/internal/occupancy"
)

// Store persists engine snapshots to SQLite.
//
// It keeps exactly one row: the latest snapshot, overwritten after every
// mutating engine call. The engine's own stale-data protection handles
// whatever has expired by the time the snapshot is loaded again.
type Store struct {
	db *database.DB
}

// NewStore creates a snapshot store on an open database.
//
// Parameters:
//   - db: Open SQLite connection (migrations already applied)
//
// Returns:
//   - *Store: Store instance ready for use
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Save overwrites the persisted snapshot.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - snapshot: Engine state export to persist
//   - at: The instant the snapshot was taken
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Save(ctx context.Context, snapshot occupancy.Snapshot, at time.Time) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO engine_snapshots (id, snapshot, saved_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, saved_at = excluded.saved_at`,
		string(payload),
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	return nil
}

// Load returns the persisted snapshot, if any.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//
// Returns:
//   - occupancy.Snapshot: The stored snapshot (nil when absent)
//   - bool: Whether a snapshot was found
//   - error: nil on success, otherwise the underlying query error
func (s *Store) Load(ctx context.Context) (occupancy.Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM engine_snapshots WHERE id = 1",
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading snapshot: %w", err)
	}

	var snapshot occupancy.Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, false, fmt.Errorf("unmarshalling snapshot: %w", err)
	}

	return snapshot, true, nil
}
