package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // Required for file source
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrConflict is returned when a write hits a unique constraint.
var ErrConflict = errors.New("conflicting row already exists")

// NewPostgresDB establishes a new connection to the PostgreSQL database.
func NewPostgresDB(dataSourceName string, maxOpen, maxIdle int, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to the database!")
	return db, nil
}

func newMigrate(db *sqlx.DB, source string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("couldn't get database instance for running migrations: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, "nluhub", driver)
	if err != nil {
		return nil, fmt.Errorf("couldn't create migrate instance: %w", err)
	}
	return m, nil
}

// MigrateDB runs database migrations up to the latest version.
func MigrateDB(db *sqlx.DB, source string, logger *zap.Logger) error {
	m, err := newMigrate(db, source)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("couldn't run database migration: %w", err)
	}

	logger.Info("Database migration was run successfully")
	return nil
}

// RollbackDB reverts the given number of migration steps.
func RollbackDB(db *sqlx.DB, source string, steps int, logger *zap.Logger) error {
	m, err := newMigrate(db, source)
	if err != nil {
		return err
	}

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("couldn't roll back database migration: %w", err)
	}

	logger.Info("Database migration was rolled back", zap.Int("steps", steps))
	return nil
}

// MigrationVersion reports the applied schema version.
func MigrationVersion(db *sqlx.DB, source string) (uint, bool, error) {
	m, err := newMigrate(db, source)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// WithTx runs fn inside a transaction, committing on success.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
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

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.UniqueViolation
	}
	return false
}

// IsForeignKeyViolation reports whether err references a missing row.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.ForeignKeyViolation
	}
	return false
}

// translateError maps driver errors onto the package's sentinel errors.
func translateError(err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
