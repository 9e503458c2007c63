// Package rpcnode serves the registry over the Ethereum JSON-RPC surface a
// browser wallet exposes, so chain clients can run against a local backend.
// Every accepted transaction is mined into its own block immediately.
package rpcnode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"verdant/pkg/contract"
	"verdant/pkg/registry"
)

const (
	codeInvalidParams      = -32602
	codeInternal           = -32603
	codeServer             = -32000
	codeExecutionReverted  = 3
	codeUnrecognizedChain  = 4902
	codeUnauthorizedSender = 4100

	txGas = 21000
)

type Config struct {
	ChainID         *big.Int
	ContractAddress common.Address
	// Accounts allowed to send transactions. Empty means any sender.
	Accounts []common.Address
}

type Node struct {
	cfg      Config
	registry registry.RegistryService
	logger   zerolog.Logger

	mu       sync.Mutex
	block    uint64
	nonce    uint64
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
}

func New(svc registry.RegistryService, cfg Config, logger zerolog.Logger) *Node {
	if cfg.ChainID == nil {
		cfg.ChainID = big.NewInt(11155111)
	}
	return &Node{
		cfg:      cfg,
		registry: svc,
		logger:   logger,
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

// Server returns a JSON-RPC server exposing the eth, wallet and net
// namespaces. It implements http.Handler.
func (n *Node) Server() (*rpc.Server, error) {
	srv := rpc.NewServer()
	for name, api := range map[string]any{
		"eth":    &EthAPI{node: n},
		"wallet": &WalletAPI{node: n},
		"net":    &NetAPI{node: n},
	} {
		if err := srv.RegisterName(name, api); err != nil {
			return nil, fmt.Errorf("register %s api: %w", name, err)
		}
	}
	return srv, nil
}

type rpcError struct {
	code    int
	message string
}

func (e *rpcError) Error() string  { return e.message }
func (e *rpcError) ErrorCode() int { return e.code }

func revert(reason string) error {
	return &rpcError{code: codeExecutionReverted, message: "execution reverted: " + reason}
}

// call executes a view method and returns its ABI-encoded output.
func (n *Node) call(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, &rpcError{code: codeInvalidParams, message: "missing method selector"}
	}
	method, err := contract.RegistryABI.MethodById(data[:4])
	if err != nil {
		return nil, &rpcError{code: codeInvalidParams, message: err.Error()}
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, &rpcError{code: codeInvalidParams, message: err.Error()}
	}

	switch method.Name {
	case contract.MethodNextStartupID:
		next, err := n.registry.NextStartupID(ctx)
		if err != nil {
			return nil, &rpcError{code: codeInternal, message: err.Error()}
		}
		return contract.EncodeUint(method.Name, next)

	case contract.MethodGetStartup:
		id := args[0].(*big.Int)
		var s registry.Startup
		if id.IsUint64() {
			s, err = n.registry.GetStartup(ctx, id.Uint64())
			if err != nil && !errors.Is(err, registry.ErrStartupNotFound) {
				return nil, &rpcError{code: codeInternal, message: err.Error()}
			}
		}
		// Unregistered ids read as the zero tuple, like a Solidity mapping.
		if !s.Registered() {
			s = registry.Startup{}
		}
		return contract.EncodeStartup(s)

	case contract.MethodGetCapTable:
		id := args[0].(*big.Int)
		table := registry.CapTable{}
		if id.IsUint64() {
			table, err = n.registry.GetCapTable(ctx, id.Uint64())
			if err != nil {
				return nil, &rpcError{code: codeInternal, message: err.Error()}
			}
		}
		return contract.EncodeCapTable(table)
	}

	return nil, &rpcError{code: codeServer, message: fmt.Sprintf("eth_call does not execute %s", method.Name)}
}

// transact executes a state-changing method from sender, mines it and
// returns the transaction hash.
func (n *Node) transact(ctx context.Context, from common.Address, data []byte) (common.Hash, error) {
	if len(n.cfg.Accounts) > 0 && !slices.Contains(n.cfg.Accounts, from) {
		return common.Hash{}, &rpcError{code: codeUnauthorizedSender, message: "sender account is not managed by this node"}
	}
	if len(data) < 4 {
		return common.Hash{}, &rpcError{code: codeInvalidParams, message: "missing method selector"}
	}
	method, err := contract.RegistryABI.MethodById(data[:4])
	if err != nil {
		return common.Hash{}, &rpcError{code: codeInvalidParams, message: err.Error()}
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Hash{}, &rpcError{code: codeInvalidParams, message: err.Error()}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var logs []types.Log
	switch method.Name {
	case contract.MethodRegisterStartup:
		s, err := n.registry.RegisterStartup(ctx, from, args[0].(string))
		if err != nil {
			return common.Hash{}, revertFor(err)
		}
		l, err := contract.StartupRegisteredLog(n.cfg.ContractAddress, s)
		if err != nil {
			return common.Hash{}, &rpcError{code: codeInternal, message: err.Error()}
		}
		logs = append(logs, l)

	case contract.MethodSetCapTable:
		id := args[0].(*big.Int)
		if !id.IsUint64() {
			return common.Hash{}, revert(registry.ErrStartupNotFound.Error())
		}
		_, err := n.registry.SetCapTable(ctx, from, id.Uint64(), args[1].([]common.Address), args[2].([]*big.Int))
		if err != nil {
			return common.Hash{}, revertFor(err)
		}

	default:
		return common.Hash{}, &rpcError{code: codeServer, message: fmt.Sprintf("%s is a view method", method.Name)}
	}

	hash := n.mine(from, data, logs)
	n.logger.Debug().Str("method", method.Name).Str("tx", hash.Hex()).Uint64("block", n.block).Msg("transaction mined")
	return hash, nil
}

func revertFor(err error) error {
	switch {
	case errors.Is(err, registry.ErrStartupNotFound),
		errors.Is(err, registry.ErrNotFounder),
		errors.Is(err, registry.ErrCapTableLengthMismatch),
		errors.Is(err, registry.ErrInvalidShares),
		errors.Is(err, registry.ErrZeroFounder):
		return revert(err.Error())
	}
	return &rpcError{code: codeInternal, message: err.Error()}
}

// mine records a successful transaction in a fresh block. Callers hold n.mu.
func (n *Node) mine(from common.Address, data []byte, logs []types.Log) common.Hash {
	n.block++
	n.nonce++

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], n.nonce)
	txHash := crypto.Keccak256Hash(from.Bytes(), nonce[:], data)

	var number [8]byte
	binary.BigEndian.PutUint64(number[:], n.block)
	blockHash := crypto.Keccak256Hash([]byte("block"), number[:], txHash.Bytes())

	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: txGas,
		GasUsed:           txGas,
		TxHash:            txHash,
		BlockHash:         blockHash,
		BlockNumber:       new(big.Int).SetUint64(n.block),
		TransactionIndex:  0,
		Logs:              make([]*types.Log, 0, len(logs)),
	}
	for i := range logs {
		l := logs[i]
		l.BlockNumber = n.block
		l.BlockHash = blockHash
		l.TxHash = txHash
		l.TxIndex = 0
		l.Index = uint(len(n.logs))
		n.logs = append(n.logs, l)
		receipt.Logs = append(receipt.Logs, &l)
	}
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
	n.receipts[txHash] = receipt
	return txHash
}

func (n *Node) receipt(hash common.Hash) *types.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.receipts[hash]
}

func (n *Node) blockNumber() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.block
}

// filterLogs returns stored logs in [from, to] matching the address and
// topic filters. Empty filters match everything.
func (n *Node) filterLogs(from, to uint64, addresses []common.Address, topics [][]common.Hash) []types.Log {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]types.Log, 0)
	for _, l := range n.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(addresses) > 0 && !slices.Contains(addresses, l.Address) {
			continue
		}
		if !matchTopics(l.Topics, topics) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func matchTopics(have []common.Hash, want [][]common.Hash) bool {
	if len(want) > len(have) {
		return false
	}
	for i, alternatives := range want {
		if len(alternatives) == 0 {
			continue
		}
		if !slices.Contains(alternatives, have[i]) {
			return false
		}
	}
	return true
}
