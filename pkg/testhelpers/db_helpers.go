package testhelpers

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"verdant/pkg/db"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

// SetupTestPool connects to DATABASE_URL_FOR_TEST, migrates it and empties the
// registry tables. Tests are skipped when the variable is unset.
func SetupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping repository tests")
	}

	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	CleanRegistry(t, pool)
	return pool
}

// CleanRegistry truncates every registry table and resets the id counter.
func CleanRegistry(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	_, err := pool.Exec(ctx, "TRUNCATE TABLE cap_table_entries, startups")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "UPDATE registry_state SET next_startup_id = 0 WHERE id = 1")
	require.NoError(t, err)
}

// RandomAddress returns a distinct non-zero address per call.
func RandomAddress() common.Address {
	v := new(big.Int).Lsh(big.NewInt(1), 100)
	return common.BigToAddress(v.Add(v, big.NewInt(nextSuffix())))
}

// UniqueStartupName returns a unique startup name.
func UniqueStartupName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, nextSuffix())
}
