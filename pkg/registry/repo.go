package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrStartupNotFound        = errors.New("startup not found")
	ErrNotFounder             = errors.New("caller is not the startup founder")
	ErrCapTableLengthMismatch = errors.New("holders and shares length mismatch")
	ErrInvalidShares          = errors.New("invalid share count")
	ErrZeroFounder            = errors.New("founder address must not be zero")
)

// StartupBuilder produces the record to store once the repository has
// allocated its id.
type StartupBuilder func(id uint64) Startup

type StartupRepository interface {
	CreateStartup(ctx context.Context, build StartupBuilder) (Startup, error)
	GetStartupByID(ctx context.Context, id uint64) (Startup, error)
	NextStartupID(ctx context.Context) (uint64, error)
	ListStartups(ctx context.Context, limit, offset int) ([]Startup, int64, error)
	ListStartupsByFounder(ctx context.Context, founder common.Address) ([]Startup, error)
	GetCapTable(ctx context.Context, startupID uint64) ([]CapTableEntry, error)
	ReplaceCapTable(ctx context.Context, startupID uint64, entries []CapTableEntry) error
}

type postgresStartupRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresStartupRepository(pool *pgxpool.Pool) StartupRepository {
	return &postgresStartupRepository{pool: pool}
}

// CreateStartup takes the next id from registry_state and inserts the row in
// the same transaction, so ids stay gapless and strictly increasing.
func (r *postgresStartupRepository) CreateStartup(ctx context.Context, build StartupBuilder) (Startup, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Startup{}, err
	}
	defer tx.Rollback(ctx)

	var id int64
	row := tx.QueryRow(ctx, `UPDATE registry_state
              SET next_startup_id = next_startup_id + 1
              WHERE id = 1
              RETURNING next_startup_id - 1`)
	if err := row.Scan(&id); err != nil {
		return Startup{}, fmt.Errorf("allocate startup id: %w", err)
	}

	s := build(uint64(id))
	s.ID = uint64(id)

	_, err = tx.Exec(ctx, `INSERT INTO startups (id, founder, name, created_at, startup_hash)
              VALUES ($1, $2, $3, $4, $5)`,
		id, addressKey(s.Founder), s.Name, s.CreatedAt.Unix(), s.Hash.Hex())
	if err != nil {
		return Startup{}, fmt.Errorf("insert startup: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Startup{}, err
	}
	return s, nil
}

func (r *postgresStartupRepository) GetStartupByID(ctx context.Context, id uint64) (Startup, error) {
	query := `SELECT id, founder, name, created_at, startup_hash
              FROM startups
              WHERE id = $1`

	s, err := scanStartup(r.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Startup{}, ErrStartupNotFound
		}
		return Startup{}, err
	}
	return s, nil
}

func (r *postgresStartupRepository) NextStartupID(ctx context.Context) (uint64, error) {
	var next int64
	if err := r.pool.QueryRow(ctx, "SELECT next_startup_id FROM registry_state WHERE id = 1").Scan(&next); err != nil {
		return 0, err
	}
	return uint64(next), nil
}

func (r *postgresStartupRepository) ListStartups(ctx context.Context, limit, offset int) ([]Startup, int64, error) {
	query := `SELECT id, founder, name, created_at, startup_hash
              FROM startups
              ORDER BY id
              LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	startups, err := collectStartups(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM startups").Scan(&total); err != nil {
		return nil, 0, err
	}

	return startups, total, nil
}

func (r *postgresStartupRepository) ListStartupsByFounder(ctx context.Context, founder common.Address) ([]Startup, error) {
	query := `SELECT id, founder, name, created_at, startup_hash
              FROM startups
              WHERE founder = $1
              ORDER BY id`

	rows, err := r.pool.Query(ctx, query, addressKey(founder))
	if err != nil {
		return nil, err
	}
	return collectStartups(rows)
}

func (r *postgresStartupRepository) GetCapTable(ctx context.Context, startupID uint64) ([]CapTableEntry, error) {
	query := `SELECT holder, shares::text
              FROM cap_table_entries
              WHERE startup_id = $1
              ORDER BY position`

	rows, err := r.pool.Query(ctx, query, int64(startupID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]CapTableEntry, 0)
	for rows.Next() {
		var holder, shares string
		if err := rows.Scan(&holder, &shares); err != nil {
			return nil, err
		}
		v, ok := new(big.Int).SetString(shares, 10)
		if !ok {
			return nil, fmt.Errorf("%w: stored value %q", ErrInvalidShares, shares)
		}
		entries = append(entries, CapTableEntry{Holder: common.HexToAddress(holder), Shares: v})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReplaceCapTable deletes and rewrites every entry in one transaction.
func (r *postgresStartupRepository) ReplaceCapTable(ctx context.Context, startupID uint64, entries []CapTableEntry) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM cap_table_entries WHERE startup_id = $1", int64(startupID)); err != nil {
		return fmt.Errorf("clear cap table: %w", err)
	}

	if len(entries) > 0 {
		batch := &pgx.Batch{}
		for i, e := range entries {
			batch.Queue(`INSERT INTO cap_table_entries (startup_id, position, holder, shares)
              VALUES ($1, $2, $3, $4::numeric)`, int64(startupID), i, addressKey(e.Holder), e.Shares.String())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert cap table: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func scanStartup(row pgx.Row) (Startup, error) {
	var (
		s         Startup
		id        int64
		founder   string
		createdAt int64
		hash      string
	)
	if err := row.Scan(&id, &founder, &s.Name, &createdAt, &hash); err != nil {
		return Startup{}, err
	}
	s.ID = uint64(id)
	s.Founder = common.HexToAddress(founder)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.Hash = common.HexToHash(hash)
	return s, nil
}

func collectStartups(rows pgx.Rows) ([]Startup, error) {
	defer rows.Close()

	startups := make([]Startup, 0)
	for rows.Next() {
		s, err := scanStartup(rows)
		if err != nil {
			return nil, err
		}
		startups = append(startups, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return startups, nil
}

func addressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}
