package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/database/dbtest"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_OpensOnce(t *testing.T) {
	calls := 0
	fake := dbtest.New()
	p := NewWithOpener(database.DefaultConfig("postgres://x"), func(ctx context.Context, cfg *database.Config) (database.DB, error) {
		calls++
		return fake, nil
	})

	first, err := p.Get(context.Background())
	require.NoError(t, err)
	second, err := p.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	p.Close()
	assert.True(t, fake.Closed())
}

func TestProvider_FailedOpenIsSticky(t *testing.T) {
	calls := 0
	p := NewWithOpener(database.DefaultConfig("postgres://x"), func(ctx context.Context, cfg *database.Config) (database.DB, error) {
		calls++
		return nil, errors.New("dial tcp: connection refused")
	})

	_, err := p.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))

	_, err = p.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no reconnection attempts")
}

func TestProvider_GetAfterClose(t *testing.T) {
	tests := []struct {
		name      string
		getFirst  bool
		wantCalls int
	}{
		{"closed after use", true, 1},
		{"closed before use", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			p := NewWithOpener(database.DefaultConfig("postgres://x"), func(ctx context.Context, cfg *database.Config) (database.DB, error) {
				calls++
				return dbtest.New(), nil
			})
			if tt.getFirst {
				_, err := p.Get(context.Background())
				require.NoError(t, err)
			}

			p.Close()
			p.Close()

			db, err := p.Get(context.Background())
			require.Error(t, err)
			assert.Nil(t, db)
			assert.True(t, errs.IsConnectionFailed(err))
			assert.Equal(t, tt.wantCalls, calls, "no reconnection after Close")
		})
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), &database.Config{Driver: "oracle"})
	assert.True(t, errs.IsInvalidInput(err))
}
