package mysql

import (
	"database/sql"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
)

const (
	defaultMaxOpenConns    = 4
	defaultMaxIdleConns    = 1
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

// buildPool configures and returns a *sql.DB with pool settings
func buildPool(cfg *database.Config) (*sql.DB, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open mysql", err)
	}

	maxOpen := int(cfg.MaxConns)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := int(cfg.MinConns)
	if maxIdle == 0 {
		maxIdle = defaultMaxIdleConns
	}
	lifetime := cfg.MaxConnLifetime
	if lifetime == 0 {
		lifetime = defaultConnMaxLifetime
	}
	idle := cfg.MaxConnIdleTime
	if idle == 0 {
		idle = defaultConnMaxIdleTime
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(idle)

	return db, nil
}

// normalizeDSN forces parseTime so DATETIME columns scan into time.Time,
// which the typed change detection relies on, and clientFoundRows so an
// UPDATE reports matched rows. Without it an update that writes the stored
// values affects zero rows and reads as a missing record.
func normalizeDSN(dsn string) (string, error) {
	c, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	c.ParseTime = true
	c.ClientFoundRows = true
	return c.FormatDSN(), nil
}
