package snapshots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/arpan-banerjee/fno-dashboard/internal/database"
	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
)

// Archive persists raw chain snapshots to sqlite as msgpack blobs with an
// expiry column. It backs the history endpoint and survives restarts; the
// in-memory cache remains the hot path for tick-to-tick comparison.
type Archive struct {
	db  *database.DB
	ttl time.Duration
	now func() time.Time
}

// ArchivedSnapshot is one persisted chain snapshot.
type ArchivedSnapshot struct {
	Key       domain.ChainKey
	CreatedAt time.Time
	Strikes   []domain.RawStrike
}

// NewArchive creates the archive and its schema if missing.
func NewArchive(db *database.DB, ttl time.Duration) (*Archive, error) {
	return newArchiveWithClock(db, ttl, time.Now)
}

func newArchiveWithClock(db *database.DB, ttl time.Duration, now func() time.Time) (*Archive, error) {
	const schema = `
		CREATE TABLE IF NOT EXISTS chain_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument TEXT NOT NULL,
			expiry TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chain_snapshots_key
			ON chain_snapshots (instrument, expiry, created_at);
		CREATE INDEX IF NOT EXISTS idx_chain_snapshots_expiry
			ON chain_snapshots (expires_at);`

	if _, err := db.Conn().Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Archive{db: db, ttl: ttl, now: now}, nil
}

// Store persists one raw chain snapshot with expiration = now + ttl.
func (a *Archive) Store(key domain.ChainKey, strikes []domain.RawStrike) error {
	payload, err := msgpack.Marshal(strikes)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}

	now := a.now()
	_, err = a.db.Conn().Exec(
		`INSERT INTO chain_snapshots (instrument, expiry, created_at, expires_at, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		key.Instrument.String(), key.Expiry, now.Unix(), now.Add(a.ttl).Unix(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot for %s: %w", key, err)
	}
	return nil
}

// History returns up to limit unexpired snapshots for a key, newest first.
func (a *Archive) History(key domain.ChainKey, limit int) ([]ArchivedSnapshot, error) {
	if limit <= 0 {
		limit = DefaultDepth
	}

	rows, err := a.db.Conn().Query(
		`SELECT created_at, payload FROM chain_snapshots
		 WHERE instrument = ? AND expiry = ? AND expires_at > ?
		 ORDER BY created_at DESC LIMIT ?`,
		key.Instrument.String(), key.Expiry, a.now().Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history for %s: %w", key, err)
	}
	defer rows.Close()

	var result []ArchivedSnapshot
	for rows.Next() {
		var createdAt int64
		var payload []byte
		if err := rows.Scan(&createdAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}

		var strikes []domain.RawStrike
		if err := msgpack.Unmarshal(payload, &strikes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot payload: %w", err)
		}

		result = append(result, ArchivedSnapshot{
			Key:       key,
			CreatedAt: time.Unix(createdAt, 0),
			Strikes:   strikes,
		})
	}
	return result, rows.Err()
}

// DeleteExpired drops all rows past their expiration and returns the count.
func (a *Archive) DeleteExpired() (int64, error) {
	res, err := a.db.Conn().Exec(
		`DELETE FROM chain_snapshots WHERE expires_at <= ?`, a.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return n, nil
}
