package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/danielkorkin/tiktok-depression-survey/internal/api"
	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

type SQLiteStore struct {
	db  *sqlx.DB
	log log.FieldLogger
}

var _ api.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database file at path and
// applies migrations. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path, migrationsDir string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite3", "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(ctx, db, migrationsDir); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, log: log.WithField("prefix", "sqlite")}, nil
}

func (s *SQLiteStore) FindParticipantByKey(ctx context.Context, key string) (*services.Participant, error) {
	var row participantRow
	err := s.db.GetContext(ctx, &row, selectParticipantByKey, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	return row.participant(), nil
}

func (s *SQLiteStore) CreateParticipant(ctx context.Context, p *services.Participant) error {
	if _, err := s.db.NamedExecContext(ctx, insertParticipant, participantToRow(p)); err != nil {
		if isSQLiteUnique(err) {
			return services.ErrDuplicateKey
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// CreateSubmission checks for an existing submission and inserts in one
// transaction. The unique participant_id column backs the check.
func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *services.Submission) error {
	row, err := submissionToRow(sub)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submission: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.GetContext(ctx, &n, countSubmissions, sub.ParticipantID); err != nil {
		return fmt.Errorf("count submissions: %w", err)
	}
	if n > 0 {
		return services.ErrSubmissionExists
	}
	if _, err := tx.NamedExecContext(ctx, insertSubmission, row); err != nil {
		if isSQLiteUnique(err) {
			return services.ErrSubmissionExists
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateConsentRecord(ctx context.Context, cr *services.ConsentRecord) error {
	if _, err := s.db.NamedExecContext(ctx, insertConsent, consentToRow(cr)); err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context) ([]*services.Submission, error) {
	var rows []submissionRow
	if err := s.db.SelectContext(ctx, &rows, selectSubmissions); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]*services.Submission, 0, len(rows))
	for _, r := range rows {
		sub, err := r.submission()
		if err != nil {
			s.log.WithError(err).Error("unreadable submission")
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

func isSQLiteUnique(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
