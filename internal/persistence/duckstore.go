package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/marcboeker/go-duckdb"
	"github.com/rueckwand/configurator/internal/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS snapshots (
		session_id  VARCHAR NOT NULL,
		storage_key VARCHAR NOT NULL,
		payload     VARCHAR NOT NULL,
		revision    BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, storage_key)
	)
`

// DuckStore keeps one row per session and storage key in a DuckDB file.
type DuckStore struct {
	db       *sql.DB
	path     string
	defaults Defaults
	logger   *log.Logger
}

// OpenDuckStore opens (or creates) the snapshot database at path.
func OpenDuckStore(path string, defaults Defaults, logger *log.Logger) (*DuckStore, error) {
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshots table: %w", err)
	}

	if logger == nil {
		logger = log.Default()
	}
	logger.Debug("snapshot store opened", "path", path)

	return &DuckStore{db: db, path: path, defaults: defaults, logger: logger}, nil
}

// Load reads the current and legacy rows of a session and decodes them.
func (s *DuckStore) Load(ctx context.Context, sessionID string) (*models.Session, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT storage_key, payload, revision, created_at, updated_at
		   FROM snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var (
		current, legacy []byte
		found           bool
		sess            = &models.Session{ID: sessionID}
	)
	for rows.Next() {
		var (
			key, payload     string
			revision         int64
			created, updated time.Time
		)
		if err := rows.Scan(&key, &payload, &revision, &created, &updated); err != nil {
			return nil, false, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		found = true
		switch key {
		case StorageKeyPlates:
			current = []byte(payload)
			sess.Revision = int(revision)
			sess.CreatedAt = created
			sess.UpdatedAt = updated
		case StorageKeyLegacy:
			legacy = []byte(payload)
			if sess.CreatedAt.IsZero() {
				sess.CreatedAt = created
				sess.UpdatedAt = updated
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to read snapshots: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	cfg, report := Decode(current, legacy, s.defaults)
	for _, sub := range report.Substitutions {
		s.logger.Warn("repaired stored plate", "session", sessionID, "source", report.Source,
			"index", sub.Index, "field", sub.Field, "reason", sub.Reason)
	}
	sess.Configuration = cfg
	return sess, true, nil
}

// Save writes the session under the current storage key.
func (s *DuckStore) Save(ctx context.Context, sess *models.Session) error {
	payload, err := Encode(sess.Configuration)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.SaveRaw(ctx, sess.ID, StorageKeyPlates, payload, sess.Revision, sess.CreatedAt, sess.UpdatedAt)
}

// SaveRaw stores a payload verbatim under key. Import uses it to keep the
// legacy value a browser handed over next to the current one.
func (s *DuckStore) SaveRaw(ctx context.Context, sessionID, key string, payload []byte, revision int, created, updated time.Time) error {
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (session_id, storage_key, payload, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, key, string(payload), int64(revision), created, updated)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Delete removes every row of a session.
func (s *DuckStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}

// Count returns the number of stored sessions.
func (s *DuckStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT session_id) FROM snapshots`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// Path returns the database file location.
func (s *DuckStore) Path() string { return s.path }

// Close releases the database.
func (s *DuckStore) Close() error {
	return s.db.Close()
}
