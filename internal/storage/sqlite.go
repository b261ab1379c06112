package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding per-user pipeline attempt history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "voicepipe.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// EnsureUser creates the user row if it does not exist yet. Histories are
// created lazily on first access, so an unknown user is never an error.
func (s *Store) EnsureUser(userID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO users (user_id, created_at) VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// AttemptCount returns the number of recorded attempts for the user.
// Unknown users have zero attempts.
func (s *Store) AttemptCount(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM attempts WHERE user_id = ?", userID).Scan(&n)
	return n, err
}

// AppendAttempt records one completed pipeline attempt for the user and
// returns the refreshed history. The row insert is a single transaction, so
// the four history sequences grow by exactly one element or not at all.
// The attempt number is assigned inside the transaction to stay monotonic
// under concurrent appends.
func (s *Store) AppendAttempt(userID int64, a Attempt) (UserHistory, error) {
	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return UserHistory{}, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO users (user_id, created_at) VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, now.Format(time.RFC3339),
	); err != nil {
		return UserHistory{}, fmt.Errorf("ensuring user %d: %w", userID, err)
	}

	var next int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(attempt), 0) + 1 FROM attempts WHERE user_id = ?", userID,
	).Scan(&next); err != nil {
		return UserHistory{}, fmt.Errorf("assigning attempt number: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO attempts (user_id, attempt, input_audio_ref, recognized_text, generated_text, output_audio_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, next, a.InputAudioRef, a.RecognizedText, a.GeneratedText, a.OutputAudioRef,
		now.Format(time.RFC3339),
	); err != nil {
		return UserHistory{}, fmt.Errorf("inserting attempt %d for user %d: %w", next, userID, err)
	}

	if err := tx.Commit(); err != nil {
		return UserHistory{}, fmt.Errorf("committing append: %w", err)
	}

	return s.History(userID)
}

// History returns the user's four parallel attempt sequences in attempt
// order. A user never seen before gets an empty history created on the fly.
func (s *Store) History(userID int64) (UserHistory, error) {
	if err := s.EnsureUser(userID); err != nil {
		return UserHistory{}, fmt.Errorf("ensuring user %d: %w", userID, err)
	}
	return s.historyOf(userID)
}

func (s *Store) historyOf(userID int64) (UserHistory, error) {
	rows, err := s.db.Query(`
		SELECT input_audio_ref, recognized_text, generated_text, output_audio_ref
		FROM attempts WHERE user_id = ? ORDER BY attempt ASC`, userID,
	)
	if err != nil {
		return UserHistory{}, err
	}
	defer rows.Close()

	h := emptyHistory(userID)
	for rows.Next() {
		var in, out sql.NullString
		var rec, gen string
		if err := rows.Scan(&in, &rec, &gen, &out); err != nil {
			return UserHistory{}, err
		}
		h.InputAudioRefs = append(h.InputAudioRefs, nullable(in))
		h.RecognizedTexts = append(h.RecognizedTexts, rec)
		h.GeneratedTexts = append(h.GeneratedTexts, gen)
		h.OutputAudioRefs = append(h.OutputAudioRefs, nullable(out))
	}
	return h, rows.Err()
}

// ListHistories returns every known user's history, ordered by user ID ascending.
func (s *Store) ListHistories() ([]UserHistory, error) {
	rows, err := s.db.Query("SELECT user_id FROM users ORDER BY user_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	histories := make([]UserHistory, 0, len(ids))
	for _, id := range ids {
		h, err := s.historyOf(id)
		if err != nil {
			return nil, fmt.Errorf("loading history for user %d: %w", id, err)
		}
		histories = append(histories, h)
	}
	return histories, nil
}

// UserExists reports whether the user row is already present.
func (s *Store) UserExists(userID int64) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE user_id = ?", userID).Scan(&n)
	return n > 0, err
}

// emptyHistory returns a history with all four sequences non-nil and empty,
// so JSON encoding produces [] instead of null.
func emptyHistory(userID int64) UserHistory {
	return UserHistory{
		UserID:          userID,
		InputAudioRefs:  []*string{},
		RecognizedTexts: []string{},
		GeneratedTexts:  []string{},
		OutputAudioRefs: []*string{},
	}
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
