package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"verdant/pkg/contract"
	"verdant/pkg/registry"
)

// Registry is a handle on the deployed registry contract. Handles without a
// signer can only read.
type Registry struct {
	provider Provider
	address  common.Address
	from     common.Address
	cfg      Config
	logger   zerolog.Logger
}

func newRegistry(p Provider, address, from common.Address, cfg Config, logger zerolog.Logger) *Registry {
	return &Registry{provider: p, address: address, from: from, cfg: cfg, logger: logger}
}

func (r *Registry) Address() common.Address { return r.address }

func (r *Registry) Signer() (common.Address, bool) {
	return r.from, r.from != (common.Address{})
}

// Registration is the outcome of a mined registerStartup transaction.
type Registration struct {
	ID      uint64
	TxHash  common.Hash
	Receipt *types.Receipt
	// FromEvent is false when the id was derived from nextStartupId.
	FromEvent bool
}

func (r *Registry) call(ctx context.Context, data []byte) ([]byte, error) {
	out, err := r.provider.Call(ctx, ethereum.CallMsg{From: r.from, To: &r.address, Data: data})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (r *Registry) NextStartupID(ctx context.Context) (uint64, error) {
	data, err := contract.PackNextStartupID()
	if err != nil {
		return 0, err
	}
	out, err := r.call(ctx, data)
	if err != nil {
		return 0, err
	}
	return contract.DecodeUint(contract.MethodNextStartupID, out)
}

// GetStartup returns the decoded tuple for id. Unregistered ids come back
// with a zero founder; check Startup.Registered.
func (r *Registry) GetStartup(ctx context.Context, id uint64) (registry.Startup, error) {
	data, err := contract.PackGetStartup(id)
	if err != nil {
		return registry.Startup{}, err
	}
	out, err := r.call(ctx, data)
	if err != nil {
		return registry.Startup{}, err
	}
	return contract.DecodeStartup(id, out)
}

func (r *Registry) GetCapTable(ctx context.Context, id uint64) (registry.CapTable, error) {
	data, err := contract.PackGetCapTable(id)
	if err != nil {
		return registry.CapTable{}, err
	}
	out, err := r.call(ctx, data)
	if err != nil {
		return registry.CapTable{}, err
	}
	return contract.DecodeCapTable(id, out)
}

// RegisterStartup sends registerStartup and waits for it to be mined. The id
// comes from the StartupRegistered log, or nextStartupId-1 when the log is
// missing.
func (r *Registry) RegisterStartup(ctx context.Context, name string) (Registration, error) {
	return r.RegisterStartupNotify(ctx, name, nil)
}

// RegisterStartupNotify is RegisterStartup with a hook that receives the
// transaction hash as soon as the wallet accepts it, before it is mined.
func (r *Registry) RegisterStartupNotify(ctx context.Context, name string, sent func(common.Hash)) (Registration, error) {
	data, err := contract.PackRegisterStartup(name)
	if err != nil {
		return Registration{}, err
	}
	hash, receipt, err := r.transact(ctx, data, sent)
	if err != nil {
		return Registration{}, err
	}

	reg := Registration{TxHash: hash, Receipt: receipt}
	if event, ok := contract.FindStartupRegistered(receipt, r.address); ok {
		reg.ID = event.StartupID
		reg.FromEvent = true
		return reg, nil
	}

	r.logger.Warn().Str("tx", hash.Hex()).Msg("registration event missing from receipt, using nextStartupId")
	next, err := r.NextStartupID(ctx)
	if err != nil {
		return Registration{}, err
	}
	if next == 0 {
		return Registration{}, &Error{Kind: KindUnknown, Message: "registry reports no startups after registration"}
	}
	reg.ID = next - 1
	return reg, nil
}

// SetCapTable replaces the cap table of id and waits for the transaction.
func (r *Registry) SetCapTable(ctx context.Context, id uint64, holders []common.Address, shares []*big.Int) (*types.Receipt, error) {
	data, err := contract.PackSetCapTable(id, holders, shares)
	if err != nil {
		return nil, err
	}
	_, receipt, err := r.transact(ctx, data, nil)
	return receipt, err
}

func (r *Registry) transact(ctx context.Context, data []byte, sent func(common.Hash)) (common.Hash, *types.Receipt, error) {
	if r.from == (common.Address{}) {
		return common.Hash{}, nil, ErrNoSigner
	}
	hash, err := r.provider.SendTransaction(ctx, TxRequest{From: r.from, To: r.address, Data: data})
	if err != nil {
		return common.Hash{}, nil, classify(err)
	}
	r.logger.Info().Str("tx", hash.Hex()).Msg("transaction sent")
	if sent != nil {
		sent(hash)
	}

	receipt, err := r.waitMined(ctx, hash)
	if err != nil {
		return hash, nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return hash, receipt, &Error{Kind: KindTransactionReverted, Message: fmt.Sprintf("transaction %s reverted", hash.Hex())}
	}
	return hash, receipt, nil
}

func (r *Registry) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if r.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ReceiptTimeout)
		defer cancel()
	}
	interval := r.cfg.ReceiptPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := r.provider.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, classify(err)
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, ErrReceiptTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
