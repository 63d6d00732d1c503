package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/danielkorkin/tiktok-depression-survey/internal/api"
	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
	log  log.FieldLogger
}

var _ api.Store = (*PostgresStore)(nil)

// OpenPostgres connects a pool to dsn, checks it and applies migrations.
func OpenPostgres(ctx context.Context, dsn, migrationsDir string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := MigratePostgres(ctx, pool, migrationsDir); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, log: log.WithField("prefix", "postgres")}
}

// named compiles a named query against arg into $n placeholders.
func named(query string, arg any) (string, []any, error) {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return "", nil, fmt.Errorf("bind query: %w", err)
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), args, nil
}

func (s *PostgresStore) FindParticipantByKey(ctx context.Context, key string) (*services.Participant, error) {
	rows, err := s.pool.Query(ctx, sqlx.Rebind(sqlx.DOLLAR, selectParticipantByKey), key)
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[participantRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	return row.participant(), nil
}

func (s *PostgresStore) CreateParticipant(ctx context.Context, p *services.Participant) error {
	q, args, err := named(insertParticipant, participantToRow(p))
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		if isPgUnique(err) {
			return services.ErrDuplicateKey
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// CreateSubmission locks the participant row, checks for an existing
// submission and inserts, all in one transaction.
func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *services.Submission) error {
	row, err := submissionToRow(sub)
	if err != nil {
		return err
	}
	q, args, err := named(insertSubmission, row)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submission: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM participants WHERE id = $1 FOR UPDATE`, sub.ParticipantID).Scan(&id); err != nil {
		return fmt.Errorf("lock participant: %w", err)
	}
	var n int
	if err := tx.QueryRow(ctx, sqlx.Rebind(sqlx.DOLLAR, countSubmissions), sub.ParticipantID).Scan(&n); err != nil {
		return fmt.Errorf("count submissions: %w", err)
	}
	if n > 0 {
		return services.ErrSubmissionExists
	}
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		if isPgUnique(err) {
			return services.ErrSubmissionExists
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateConsentRecord(ctx context.Context, cr *services.ConsentRecord) error {
	q, args, err := named(insertConsent, consentToRow(cr))
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context) ([]*services.Submission, error) {
	rows, err := s.pool.Query(ctx, selectSubmissions)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[submissionRow])
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]*services.Submission, 0, len(records))
	for _, r := range records {
		sub, err := r.submission()
		if err != nil {
			s.log.WithError(err).Error("unreadable submission")
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
