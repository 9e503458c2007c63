package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Event string

const (
	// EventAccountsChanged carries the new []common.Address.
	EventAccountsChanged Event = "accountsChanged"
	// EventChainChanged carries the new chain id as *big.Int.
	EventChainChanged Event = "chainChanged"
)

type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Gas   uint64
	Value *big.Int
}

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type AddChainParams struct {
	ChainID           *big.Int
	ChainName         string
	NativeCurrency    NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
}

// Provider is the wallet capability the client depends on. Errors should be
// tagged with *Error where the provider can tell what went wrong.
type Provider interface {
	// RequestAccounts may prompt the user for access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts never prompts.
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	AddChain(ctx context.Context, params AddChainParams) error
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
	// TransactionReceipt returns nil without error while the transaction is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	On(event Event, fn func(payload any)) (off func())
}
