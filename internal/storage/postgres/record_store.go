// Package postgres provides the Postgres-backed question record store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/question-sync/internal/question"
)

// DefaultTable is the table questions are written to.
const DefaultTable = "maeil_mail_questions"

// duplicateDatabase is the SQLSTATE returned when CREATE DATABASE races another creator.
const duplicateDatabase = "42P04"

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config describes how to reach the database.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// DSN renders the connection string for database name db.
func (c Config) DSN(db string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + db,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type rowExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordStore implements question.Store on Postgres.
type RecordStore struct {
	pool  pool
	table string
}

// EnsureDatabase creates the configured database when it does not exist yet. It
// connects through the maintenance database "postgres".
func EnsureDatabase(ctx context.Context, cfg Config) error {
	conn, err := pgx.Connect(ctx, cfg.DSN("postgres"))
	if err != nil {
		return fmt.Errorf("connect maintenance database: %w", err)
	}
	defer func() {
		_ = conn.Close(context.Background())
	}()
	return ensureDatabase(ctx, conn, cfg.Database)
}

func ensureDatabase(ctx context.Context, conn rowExecer, name string) error {
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	var exists bool
	err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == duplicateDatabase {
			return nil
		}
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// NewRecordStore connects a pool to the configured database.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !validIdentifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: p, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validIdentifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies a connection can be acquired.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", question.ErrStore, err)
	}
	return nil
}

// EnsureSchema creates the question table if it is missing. Safe on every start.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	question_id BIGINT NOT NULL UNIQUE,
	title TEXT,
	content TEXT,
	additional_links TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Upsert inserts the record or overwrites title, content and links of the existing
// row with the same question id. created_at is never touched.
func (s *RecordStore) Upsert(ctx context.Context, record question.Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %w", question.ErrStore, err)
	}
	links, err := question.EncodeLinks(record.AdditionalLinks)
	if err != nil {
		return fmt.Errorf("%w: %w", question.ErrStore, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (question_id, title, content, additional_links)
VALUES ($1, $2, $3, $4)
ON CONFLICT (question_id) DO UPDATE SET
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	additional_links = EXCLUDED.additional_links`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", question.ErrStore, err)
	}
	if _, err := tx.Exec(ctx, query, record.ID, record.Title, record.Content, links); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return fmt.Errorf("%w: upsert question %d: %w", question.ErrStore, record.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit question %d: %w", question.ErrStore, record.ID, err)
	}
	return nil
}

// FetchAll returns every stored record ordered by question id.
func (s *RecordStore) FetchAll(ctx context.Context) ([]question.Record, error) {
	query := fmt.Sprintf(`
SELECT question_id, COALESCE(title, ''), COALESCE(content, ''), COALESCE(additional_links, ''), created_at
FROM %s
ORDER BY question_id ASC`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: select questions: %w", question.ErrStore, err)
	}
	defer rows.Close()

	var records []question.Record
	for rows.Next() {
		var (
			rec   question.Record
			links string
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Content, &links, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan question row: %w", question.ErrStore, err)
		}
		rec.AdditionalLinks, err = question.DecodeLinks(links)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %w", question.ErrStore, rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate questions: %w", question.ErrStore, err)
	}
	return records, nil
}

// Get loads one record by question id. found is false when no row exists.
func (s *RecordStore) Get(ctx context.Context, id int) (question.Record, bool, error) {
	query := fmt.Sprintf(`
SELECT question_id, COALESCE(title, ''), COALESCE(content, ''), COALESCE(additional_links, ''), created_at
FROM %s
WHERE question_id = $1`, s.table)
	var (
		rec   question.Record
		links string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.Title, &rec.Content, &links, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return question.Record{}, false, nil
	}
	if err != nil {
		return question.Record{}, false, fmt.Errorf("%w: select question %d: %w", question.ErrStore, id, err)
	}
	rec.AdditionalLinks, err = question.DecodeLinks(links)
	if err != nil {
		return question.Record{}, false, fmt.Errorf("%w: question %d: %w", question.ErrStore, id, err)
	}
	return rec, true, nil
}

// Count returns the number of stored questions.
func (s *RecordStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count questions: %w", question.ErrStore, err)
	}
	return n, nil
}
