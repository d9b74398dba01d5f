// Package provider hands out the process-wide database handle.
//
// The handle is created lazily on the first Get and reused until Close.
// A failed first connection is returned to the caller, who is expected to
// treat it as fatal; there is no retry and the handle is never replaced.
package provider

import (
	"context"
	"sync"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/database/mysql"
	"github.com/koustreak/backoffice/internal/database/postgres"
	"github.com/koustreak/backoffice/internal/errs"
)

// Opener establishes a connection for cfg.
type Opener func(ctx context.Context, cfg *database.Config) (database.DB, error)

// Provider lazily opens and then memoizes a single database.DB.
type Provider struct {
	cfg  *database.Config
	open Opener

	mu     sync.Mutex
	db     database.DB
	err    error
	closed bool
}

// New returns a Provider for cfg using the driver named by cfg.Driver.
func New(cfg *database.Config) *Provider {
	return &Provider{cfg: cfg, open: Open}
}

// NewWithOpener returns a Provider that connects through open.
func NewWithOpener(cfg *database.Config, open Opener) *Provider {
	return &Provider{cfg: cfg, open: open}
}

// Get returns the shared handle, connecting on first use.
// A failed first attempt is remembered and returned on every later call.
// After Close, Get fails with ErrKindConnectionFailed.
func (p *Provider) Get(ctx context.Context) (database.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errs.New(errs.ErrKindConnectionFailed, "provider closed")
	}
	if p.db != nil || p.err != nil {
		return p.db, p.err
	}

	db, err := p.open(ctx, p.cfg)
	if err != nil {
		if !errs.IsConnectionFailed(err) && !errs.IsTimeout(err) && !errs.IsPermissionDenied(err) {
			err = errs.Wrap(errs.ErrKindConnectionFailed, "connect failed", err)
		}
		p.err = err
		return nil, err
	}
	p.db = db
	return db, nil
}

// Close releases the handle if one was opened. It is safe to call twice.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.db != nil {
		p.db.Close()
		p.db = nil
	}
}

// Open dispatches to the driver package for cfg.Driver.
func Open(ctx context.Context, cfg *database.Config) (database.DB, error) {
	switch cfg.Driver {
	case database.DriverPostgres, "":
		db, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	case database.DriverMySQL:
		db, err := mysql.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported driver %q", cfg.Driver)
	}
}
