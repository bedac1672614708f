package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"clinic/internal/log"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL placeholder style, driver and migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// sqlite connection parameters understood by modernc.org/sqlite.
const sqliteParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"

var ErrUnsupportedURL = errors.New("unsupported DATABASE_URL scheme (use postgres://, postgresql://, sqlite:// or file:)")

// QueryObserver receives the outcome of every store operation.
type QueryObserver interface {
	ObserveQuery(op string, took time.Duration, err error)
}

// Options tunes the connection pool and instrumentation.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *log.Logger
	Observer        QueryObserver
}

// Store is the single persistence handle for clinic records. It is safe for
// concurrent use; each call borrows a pooled connection for its duration.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	logger   *log.Logger
	observer QueryObserver
}

// ParseDatabaseURL maps a connection string to a dialect and driver DSN.
//
//	postgres://u:p@host/db      -> postgres, unchanged
//	sqlite:///./data/clinic.db  -> sqlite, ./data/clinic.db
//	sqlite:////var/clinic.db    -> sqlite, /var/clinic.db
//	file:clinic.db              -> sqlite, clinic.db
func ParseDatabaseURL(raw string) (Dialect, string, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, raw, nil
	case strings.HasPrefix(lower, "sqlite:///"):
		return sqliteDSN(raw[len("sqlite:///"):])
	case strings.HasPrefix(lower, "sqlite://"):
		return sqliteDSN(raw[len("sqlite://"):])
	case strings.HasPrefix(lower, "sqlite:"):
		return sqliteDSN(raw[len("sqlite:"):])
	case strings.HasPrefix(lower, "file:"):
		return sqliteDSN(raw[len("file:"):])
	}
	return "", "", ErrUnsupportedURL
}

func sqliteDSN(path string) (Dialect, string, error) {
	if strings.TrimSpace(path) == "" || strings.HasPrefix(path, "?") {
		return "", "", errors.New("sqlite DATABASE_URL has an empty path")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return DialectSQLite, path + sep + sqliteParams, nil
}

// sqlitePath strips connection parameters from a sqlite DSN.
func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(dsn, "?")
	return path
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Open connects to the database named by databaseURL, applies pending
// migrations and returns a ready Store.
func Open(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	dialect, dsn, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	if dialect == DialectSQLite {
		if dir := filepath.Dir(sqlitePath(dsn)); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	configurePool(db, dialect, opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := New(db, dialect, opts)
	s.logger.InfoContext(ctx, "Database ready", log.FieldDialect, string(dialect))
	return s, nil
}

func configurePool(db *sql.DB, dialect Dialect, opts Options) {
	if dialect == DialectSQLite {
		// One writer at a time; WAL still serves readers from the same handle.
		db.SetMaxOpenConns(1)
		return
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
}

// New wraps an already opened database. Migrations are not run.
func New(db *sql.DB, dialect Dialect, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Store{
		db:       db,
		dialect:  dialect,
		logger:   logger.WithComponent(log.ComponentStorage),
		observer: opts.Observer,
	}
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stats exposes pool statistics for metrics.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) observe(op string, start time.Time, err *error) {
	if s.observer == nil {
		return
	}
	var e error
	if err != nil {
		e = *err
	}
	s.observer.ObserveQuery(op, time.Since(start), e)
}

// rowExists reports whether table has a row with the given id. table must be
// one of the package's table name constants.
func (s *Store) rowExists(ctx context.Context, q querier, table string, id int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, s.rebind("SELECT 1 FROM "+table+" WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s %d: %w", table, id, err)
	}
	return true, nil
}

// requirePatient fails with a NotFoundError when the patient is missing.
func (s *Store) requirePatient(ctx context.Context, q querier, patientID int64) error {
	ok, err := s.rowExists(ctx, q, tablePatients, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return patientNotFound(patientID)
	}
	return nil
}

const (
	tablePatients     = "patients"
	tableAppointments = "appointments"
	tablePayments     = "payments"
	tableVisits       = "patient_visits"
)

// Page is an offset/limit window over an ordered listing.
type Page struct {
	Skip  int
	Limit int
}

// DefaultPage matches the API defaults.
func DefaultPage() Page {
	return Page{Skip: 0, Limit: 100}
}
