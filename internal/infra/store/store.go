// Package store implements app.Store on top of bun. The same queries run
// against PostgreSQL (pgdriver or pgx) and SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"respondeo-service/internal/infra/store/migrations"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DriverPgdriver = "pgdriver"
	DriverPgx      = "pgx"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Options selects the database and how to reach it.
type Options struct {
	Dialect      string
	URL          string
	Driver       string
	MaxOpenConns int
}

// Store is the bun-backed app.Store.
type Store struct {
	db  *bun.DB
	log *zap.Logger
}

// Open connects according to opts. SQLite runs on a single connection with
// foreign keys enabled so cascades and the attempt uniqueness hold.
func Open(opts Options, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var db *bun.DB
	switch opts.Dialect {
	case DialectSQLite, "":
		sqldb, err := sql.Open("sqlite3", sqliteDSN(opts.URL))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DialectPostgres:
		if opts.URL == "" {
			return nil, errors.New("postgres url not configured")
		}
		var sqldb *sql.DB
		switch opts.Driver {
		case DriverPgx:
			cfg, err := pgx.ParseConfig(opts.URL)
			if err != nil {
				return nil, fmt.Errorf("parse postgres url: %w", err)
			}
			sqldb = stdlib.OpenDB(*cfg)
		case DriverPgdriver, "":
			sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(opts.URL)))
		default:
			return nil, fmt.Errorf("unknown postgres driver %q", opts.Driver)
		}
		if opts.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(opts.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unknown database dialect %q", opts.Dialect)
	}

	return New(db, log), nil
}

func New(db *bun.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies every pending schema migration.
func (s *Store) Migrate(ctx context.Context) error {
	migrator := migrate.NewMigrator(s.db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		s.log.Info("database schema up to date")
		return nil
	}
	s.log.Info("migrations applied", zap.String("group", group.String()))
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// sqliteDSN adds the connection parameters the schema relies on unless the
// caller already set them. An empty path opens a private in-memory database.
func sqliteDSN(path string) string {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	params := []string{}
	if !strings.Contains(path, "_foreign_keys") && !strings.Contains(path, "_fk") {
		params = append(params, "_foreign_keys=1")
	}
	if !strings.Contains(path, "_busy_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// isUniqueViolation recognises unique constraint failures from every
// supported driver.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == uniqueViolation
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == uniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
