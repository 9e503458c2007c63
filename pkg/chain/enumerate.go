package chain

import (
	"context"
	"fmt"
	"iter"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"verdant/pkg/contract"
	"verdant/pkg/metrics"
	"verdant/pkg/registry"
)

// LookupError records a single id that could not be read.
type LookupError struct {
	ID  uint64
	Err error
}

func (e LookupError) Error() string {
	return fmt.Sprintf("startup %d: %v", e.ID, e.Err)
}

func (e LookupError) Unwrap() error { return e.Err }

// Enumeration is a best-effort listing. Startups are in ascending id order.
// Ids that failed to load are in Failures; ids with a zero founder are in
// Unregistered.
type Enumeration struct {
	Startups     []registry.Startup
	Failures     []LookupError
	Unregistered []uint64
	Next         uint64
}

func (e Enumeration) Complete() bool {
	return len(e.Failures) == 0
}

// GetAllStartups reads ids 0..nextStartupId-1 one at a time. It fails only
// when the counter cannot be read or ctx ends.
func (r *Registry) GetAllStartups(ctx context.Context) (Enumeration, error) {
	next, err := r.NextStartupID(ctx)
	if err != nil {
		return Enumeration{}, err
	}
	e, err := r.scan(ctx, idRange(next))
	e.Next = next
	return e, err
}

// GetStartups reads the given ids sequentially, paced by the configured
// scan rate.
func (r *Registry) GetStartups(ctx context.Context, ids []uint64) (Enumeration, error) {
	return r.scan(ctx, slices.Values(ids))
}

// idRange yields 0..next-1 lazily; next comes from the node and may be huge.
func idRange(next uint64) iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for id := uint64(0); id < next; id++ {
			if !yield(id) {
				return
			}
		}
	}
}

func (r *Registry) scan(ctx context.Context, ids iter.Seq[uint64]) (Enumeration, error) {
	limiter := r.cfg.limiter()
	e := Enumeration{Startups: []registry.Startup{}}

	for id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return e, err
		}
		s, err := r.GetStartup(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return e, ctx.Err()
			}
			metrics.EnumerationSkips.WithLabelValues("error").Inc()
			r.logger.Warn().Err(err).Uint64("startup_id", id).Msg("skipping startup that failed to load")
			e.Failures = append(e.Failures, LookupError{ID: id, Err: err})
			continue
		}
		if !s.Registered() {
			metrics.EnumerationSkips.WithLabelValues("unregistered").Inc()
			e.Unregistered = append(e.Unregistered, id)
			continue
		}
		e.Startups = append(e.Startups, s)
	}
	return e, nil
}

// IndexedStartupIDs returns the ids announced by StartupRegistered logs, in
// ascending order without duplicates.
func (r *Registry) IndexedStartupIDs(ctx context.Context) ([]uint64, error) {
	logs, err := r.provider.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int),
		Addresses: []common.Address{r.address},
		Topics:    [][]common.Hash{{contract.StartupRegisteredTopic}},
	})
	if err != nil {
		return nil, classify(err)
	}

	ids := make([]uint64, 0, len(logs))
	for _, l := range logs {
		event, err := contract.ParseStartupRegistered(l)
		if err != nil {
			r.logger.Warn().Err(err).Str("tx", l.TxHash.Hex()).Msg("ignoring malformed registration log")
			continue
		}
		ids = append(ids, event.StartupID)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// GetIndexedStartups loads the startups named by registration logs instead
// of probing the whole id range.
func (r *Registry) GetIndexedStartups(ctx context.Context) (Enumeration, error) {
	ids, err := r.IndexedStartupIDs(ctx)
	if err != nil {
		return Enumeration{}, err
	}
	e, err := r.GetStartups(ctx, ids)
	if len(ids) > 0 {
		e.Next = ids[len(ids)-1] + 1
	}
	return e, err
}
