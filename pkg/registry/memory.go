package registry

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type memoryStartupRepository struct {
	mu        sync.RWMutex
	startups  []Startup
	capTables map[uint64][]CapTableEntry
}

// NewMemoryStartupRepository keeps the registry in process memory. Ids are
// allocated under the write lock so they stay sequential.
func NewMemoryStartupRepository() StartupRepository {
	return &memoryStartupRepository{capTables: make(map[uint64][]CapTableEntry)}
}

func (r *memoryStartupRepository) CreateStartup(ctx context.Context, build StartupBuilder) (Startup, error) {
	if err := ctx.Err(); err != nil {
		return Startup{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uint64(len(r.startups))
	s := build(id)
	s.ID = id
	r.startups = append(r.startups, s)
	return s, nil
}

func (r *memoryStartupRepository) GetStartupByID(ctx context.Context, id uint64) (Startup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id >= uint64(len(r.startups)) {
		return Startup{}, ErrStartupNotFound
	}
	return r.startups[id], nil
}

func (r *memoryStartupRepository) NextStartupID(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return uint64(len(r.startups)), nil
}

func (r *memoryStartupRepository) ListStartups(ctx context.Context, limit, offset int) ([]Startup, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := int64(len(r.startups))
	items := make([]Startup, 0)
	if offset >= 0 && offset < len(r.startups) {
		end := offset + min(limit, len(r.startups)-offset)
		items = append(items, r.startups[offset:end]...)
	}
	return items, total, nil
}

func (r *memoryStartupRepository) ListStartupsByFounder(ctx context.Context, founder common.Address) ([]Startup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Startup, 0)
	for _, s := range r.startups {
		if s.Founder == founder {
			items = append(items, s)
		}
	}
	return items, nil
}

func (r *memoryStartupRepository) GetCapTable(ctx context.Context, startupID uint64) ([]CapTableEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return copyEntries(r.capTables[startupID]), nil
}

func (r *memoryStartupRepository) ReplaceCapTable(ctx context.Context, startupID uint64, entries []CapTableEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.capTables[startupID] = copyEntries(entries)
	return nil
}

func copyEntries(entries []CapTableEntry) []CapTableEntry {
	out := make([]CapTableEntry, len(entries))
	for i, e := range entries {
		out[i] = CapTableEntry{Holder: e.Holder, Shares: new(big.Int).Set(e.Shares)}
	}
	return out
}
