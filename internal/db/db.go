// internal/db/db.go
package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Open connects to the database, verifies the connection and applies the
// schema migrations for the driver.
func Open(driver, dsn string, logger *zap.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN not set")
	}
	logger = applog.OrNop(logger)

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	switch driver {
	case DriverPostgres:
		conn.SetMaxOpenConns(defaultMaxOpenConns)
		conn.SetMaxIdleConns(defaultMaxIdleConns)
		conn.SetConnMaxLifetime(defaultConnMaxLifetime)
	case DriverSQLite:
		// a single connection keeps in-memory databases shared and serializes writes
		conn.SetMaxOpenConns(1)
	default:
		conn.Close()
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := Migrate(conn, driver); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("connected to database", zap.String("driver", driver))
	return conn, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(conn *sql.DB, driver string) error {
	migrations := postgresMigrations
	if driver == DriverSQLite {
		migrations = sqliteMigrations
	}
	if _, err := conn.Exec(migrations); err != nil {
		return fmt.Errorf("run %s migrations: %w", driver, err)
	}
	return nil
}
