package registry

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"verdant/pkg/metrics"
)

// Listener is told about every successful registry write.
type Listener interface {
	StartupRegistered(ctx context.Context, s Startup)
	CapTableUpdated(ctx context.Context, table CapTable)
}

type RegistryService interface {
	RegisterStartup(ctx context.Context, founder common.Address, name string) (Startup, error)
	GetStartup(ctx context.Context, id uint64) (Startup, error)
	GetCapTable(ctx context.Context, id uint64) (CapTable, error)
	SetCapTable(ctx context.Context, caller common.Address, id uint64, holders []common.Address, shares []*big.Int) (CapTable, error)
	NextStartupID(ctx context.Context) (uint64, error)
	ListStartups(ctx context.Context, page, limit int) ([]Startup, int64, error)
	ListStartupsByFounder(ctx context.Context, founder common.Address) ([]Startup, error)
}

type Option func(*registryService)

// WithClock replaces the block-timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *registryService) { s.now = now }
}

func WithListener(l Listener) Option {
	return func(s *registryService) { s.listeners = append(s.listeners, l) }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *registryService) { s.logger = logger }
}

type registryService struct {
	repo      StartupRepository
	now       func() time.Time
	listeners []Listener
	logger    zerolog.Logger
}

func NewRegistryService(repo StartupRepository, opts ...Option) RegistryService {
	s := &registryService{
		repo:   repo,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *registryService) RegisterStartup(ctx context.Context, founder common.Address, name string) (Startup, error) {
	if founder == (common.Address{}) {
		return Startup{}, ErrZeroFounder
	}

	createdAt := s.now().UTC().Truncate(time.Second)
	created, err := s.repo.CreateStartup(ctx, func(id uint64) Startup {
		return Startup{
			ID:        id,
			Founder:   founder,
			Name:      name,
			CreatedAt: createdAt,
			Hash:      ComputeHash(id, name, founder, createdAt.Unix()),
		}
	})
	if err != nil {
		return Startup{}, fmt.Errorf("register startup: %w", err)
	}

	metrics.StartupsRegistered.Inc()
	s.logger.Info().
		Uint64("startup_id", created.ID).
		Str("founder", created.Founder.Hex()).
		Str("startup_hash", created.Hash.Hex()).
		Msg("startup registered")

	for _, l := range s.listeners {
		l.StartupRegistered(ctx, created)
	}
	return created, nil
}

func (s *registryService) GetStartup(ctx context.Context, id uint64) (Startup, error) {
	return s.repo.GetStartupByID(ctx, id)
}

func (s *registryService) GetCapTable(ctx context.Context, id uint64) (CapTable, error) {
	entries, err := s.repo.GetCapTable(ctx, id)
	if err != nil {
		return CapTable{}, err
	}
	return CapTable{StartupID: id, Entries: entries}, nil
}

// SetCapTable replaces the whole table. Only the startup's founder may write it.
func (s *registryService) SetCapTable(ctx context.Context, caller common.Address, id uint64, holders []common.Address, shares []*big.Int) (CapTable, error) {
	startup, err := s.repo.GetStartupByID(ctx, id)
	if err != nil {
		metrics.CapTableUpdates.WithLabelValues("not_found").Inc()
		return CapTable{}, err
	}
	if startup.Founder != caller {
		metrics.CapTableUpdates.WithLabelValues("unauthorized").Inc()
		return CapTable{}, ErrNotFounder
	}

	entries, err := EntriesFromColumns(holders, shares)
	if err != nil {
		metrics.CapTableUpdates.WithLabelValues("invalid").Inc()
		return CapTable{}, err
	}
	for _, e := range entries {
		if !ValidShares(e.Shares) {
			metrics.CapTableUpdates.WithLabelValues("invalid").Inc()
			return CapTable{}, ErrInvalidShares
		}
	}

	if err := s.repo.ReplaceCapTable(ctx, id, entries); err != nil {
		metrics.CapTableUpdates.WithLabelValues("error").Inc()
		return CapTable{}, fmt.Errorf("replace cap table: %w", err)
	}

	metrics.CapTableUpdates.WithLabelValues("ok").Inc()
	table := CapTable{StartupID: id, Entries: entries}
	s.logger.Info().Uint64("startup_id", id).Int("holders", len(entries)).Msg("cap table replaced")

	for _, l := range s.listeners {
		l.CapTableUpdated(ctx, table)
	}
	return table, nil
}

func (s *registryService) NextStartupID(ctx context.Context) (uint64, error) {
	return s.repo.NextStartupID(ctx)
}

func (s *registryService) ListStartups(ctx context.Context, page, limit int) ([]Startup, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if page-1 > math.MaxInt/limit {
		_, total, err := s.repo.ListStartups(ctx, limit, 0)
		return []Startup{}, total, err
	}
	offset := (page - 1) * limit
	return s.repo.ListStartups(ctx, limit, offset)
}

func (s *registryService) ListStartupsByFounder(ctx context.Context, founder common.Address) ([]Startup, error) {
	return s.repo.ListStartupsByFounder(ctx, founder)
}
