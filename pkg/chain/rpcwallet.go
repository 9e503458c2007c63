package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"verdant/pkg/metrics"
)

// RPCWallet is a Provider backed by a JSON-RPC endpoint that manages
// accounts itself, such as a dev node or a wallet bridge.
type RPCWallet struct {
	client  *rpc.Client
	eth     *ethclient.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger

	mu       sync.Mutex
	handlers map[Event]map[uint64]func(any)
	nextID   uint64
	accounts []common.Address
	chainID  *big.Int
}

func DialWallet(ctx context.Context, url string, logger zerolog.Logger) (*RPCWallet, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, &Error{Kind: KindEnvironmentNotReady, Message: fmt.Sprintf("dial wallet %s", url), Err: err}
	}
	return NewRPCWallet(c, logger), nil
}

func NewRPCWallet(c *rpc.Client, logger zerolog.Logger) *RPCWallet {
	w := &RPCWallet{
		client:   c,
		eth:      ethclient.NewClient(c),
		logger:   logger,
		handlers: make(map[Event]map[uint64]func(any)),
	}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "wallet-rpc",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejections and reverts mean the endpoint is healthy.
		IsSuccessful: func(err error) bool {
			return err == nil || kindFor(err) != KindUnknown
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("wallet circuit state changed")
		},
	})
	return w
}

func (w *RPCWallet) Close() {
	w.client.Close()
}

func (w *RPCWallet) do(method string, fn func() (any, error)) (any, error) {
	out, err := w.breaker.Execute(fn)
	if err != nil {
		metrics.ChainCalls.WithLabelValues(method, "error").Inc()
		w.logger.Debug().Err(err).Str("method", method).Msg("wallet call failed")
		return nil, classify(err)
	}
	metrics.ChainCalls.WithLabelValues(method, "ok").Inc()
	return out, nil
}

func (w *RPCWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return w.fetchAccounts(ctx, "eth_requestAccounts")
}

func (w *RPCWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	return w.fetchAccounts(ctx, "eth_accounts")
}

func (w *RPCWallet) fetchAccounts(ctx context.Context, method string) ([]common.Address, error) {
	out, err := w.do(method, func() (any, error) {
		var accounts []common.Address
		err := w.client.CallContext(ctx, &accounts, method)
		return accounts, err
	})
	if err != nil {
		return nil, err
	}
	accounts := out.([]common.Address)

	w.mu.Lock()
	changed := !slices.Equal(w.accounts, accounts)
	w.accounts = slices.Clone(accounts)
	w.mu.Unlock()
	if changed {
		w.emit(EventAccountsChanged, slices.Clone(accounts))
	}
	return accounts, nil
}

func (w *RPCWallet) ChainID(ctx context.Context) (*big.Int, error) {
	out, err := w.do("eth_chainId", func() (any, error) {
		return w.eth.ChainID(ctx)
	})
	if err != nil {
		return nil, err
	}
	id := out.(*big.Int)
	w.noteChain(id)
	return id, nil
}

func (w *RPCWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	_, err := w.do("wallet_switchEthereumChain", func() (any, error) {
		params := map[string]any{"chainId": hexutil.EncodeBig(chainID)}
		return nil, w.client.CallContext(ctx, nil, "wallet_switchEthereumChain", params)
	})
	if err != nil {
		return err
	}
	w.noteChain(chainID)
	return nil
}

func (w *RPCWallet) AddChain(ctx context.Context, p AddChainParams) error {
	_, err := w.do("wallet_addEthereumChain", func() (any, error) {
		params := map[string]any{
			"chainId":           hexutil.EncodeBig(p.ChainID),
			"chainName":         p.ChainName,
			"nativeCurrency":    p.NativeCurrency,
			"rpcUrls":           p.RPCURLs,
			"blockExplorerUrls": p.BlockExplorerURLs,
		}
		return nil, w.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
	})
	return err
}

func (w *RPCWallet) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	out, err := w.do("eth_call", func() (any, error) {
		return w.eth.CallContract(ctx, msg, nil)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (w *RPCWallet) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	args := map[string]any{
		"from":  tx.From,
		"to":    tx.To,
		"input": hexutil.Bytes(tx.Data),
	}
	if tx.Gas > 0 {
		args["gas"] = hexutil.Uint64(tx.Gas)
	}
	if tx.Value != nil {
		args["value"] = (*hexutil.Big)(tx.Value)
	}

	out, err := w.do("eth_sendTransaction", func() (any, error) {
		var hash common.Hash
		err := w.client.CallContext(ctx, &hash, "eth_sendTransaction", args)
		return hash, err
	})
	if err != nil {
		return common.Hash{}, err
	}
	return out.(common.Hash), nil
}

func (w *RPCWallet) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	out, err := w.do("eth_getTransactionReceipt", func() (any, error) {
		receipt, err := w.eth.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return (*types.Receipt)(nil), nil
		}
		return receipt, err
	})
	if err != nil {
		return nil, err
	}
	return out.(*types.Receipt), nil
}

func (w *RPCWallet) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	out, err := w.do("eth_getLogs", func() (any, error) {
		return w.eth.FilterLogs(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return out.([]types.Log), nil
}

func (w *RPCWallet) On(event Event, fn func(any)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	if w.handlers[event] == nil {
		w.handlers[event] = make(map[uint64]func(any))
	}
	w.handlers[event][id] = fn

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.handlers[event], id)
	}
}

func (w *RPCWallet) noteChain(id *big.Int) {
	w.mu.Lock()
	changed := w.chainID != nil && w.chainID.Cmp(id) != 0
	w.chainID = new(big.Int).Set(id)
	w.mu.Unlock()
	if changed {
		w.emit(EventChainChanged, new(big.Int).Set(id))
	}
}

func (w *RPCWallet) emit(event Event, payload any) {
	w.mu.Lock()
	fns := make([]func(any), 0, len(w.handlers[event]))
	for _, fn := range w.handlers[event] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}
