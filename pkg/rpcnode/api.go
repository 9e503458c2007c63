package rpcnode

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"verdant/pkg/metrics"
)

// TransactionArgs is the transaction object accepted by eth_call and
// eth_sendTransaction. Both input and data carry calldata.
type TransactionArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (args TransactionArgs) calldata() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

type FilterArgs struct {
	FromBlock *string          `json:"fromBlock"`
	ToBlock   *string          `json:"toBlock"`
	Address   []common.Address `json:"address"`
	Topics    [][]common.Hash  `json:"topics"`
	BlockHash *common.Hash     `json:"blockHash"`
}

type EthAPI struct {
	node *Node
}

func (api *EthAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Set(api.node.cfg.ChainID))
}

func (api *EthAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.node.blockNumber())
}

func (api *EthAPI) Accounts() []common.Address {
	return append([]common.Address{}, api.node.cfg.Accounts...)
}

// RequestAccounts grants access to every managed account without a prompt.
func (api *EthAPI) RequestAccounts() []common.Address {
	return api.Accounts()
}

func (api *EthAPI) Call(ctx context.Context, args TransactionArgs, block *string) (hexutil.Bytes, error) {
	if err := api.checkTarget(args.To); err != nil {
		metrics.ChainCalls.WithLabelValues("eth_call", "error").Inc()
		return nil, err
	}
	out, err := api.node.call(ctx, args.calldata())
	if err != nil {
		metrics.ChainCalls.WithLabelValues("eth_call", "error").Inc()
		return nil, err
	}
	metrics.ChainCalls.WithLabelValues("eth_call", "ok").Inc()
	return out, nil
}

func (api *EthAPI) SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	if args.From == nil {
		return common.Hash{}, &rpcError{code: codeInvalidParams, message: "missing from address"}
	}
	if err := api.checkTarget(args.To); err != nil {
		metrics.ChainCalls.WithLabelValues("eth_sendTransaction", "error").Inc()
		return common.Hash{}, err
	}
	hash, err := api.node.transact(ctx, *args.From, args.calldata())
	if err != nil {
		metrics.ChainCalls.WithLabelValues("eth_sendTransaction", "error").Inc()
		return common.Hash{}, err
	}
	metrics.ChainCalls.WithLabelValues("eth_sendTransaction", "ok").Inc()
	return hash, nil
}

// GetTransactionReceipt returns nil for unknown hashes, which encodes as null.
func (api *EthAPI) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	return api.node.receipt(hash)
}

func (api *EthAPI) GetLogs(crit FilterArgs) ([]types.Log, error) {
	head := api.node.blockNumber()
	if crit.BlockHash != nil {
		out := make([]types.Log, 0)
		for _, l := range api.node.filterLogs(0, head, crit.Address, crit.Topics) {
			if l.BlockHash == *crit.BlockHash {
				out = append(out, l)
			}
		}
		return out, nil
	}

	from, err := parseBlock(crit.FromBlock, 0, head)
	if err != nil {
		return nil, err
	}
	to, err := parseBlock(crit.ToBlock, head, head)
	if err != nil {
		return nil, err
	}
	return api.node.filterLogs(from, to, crit.Address, crit.Topics), nil
}

func (api *EthAPI) checkTarget(to *common.Address) error {
	if to == nil || *to != api.node.cfg.ContractAddress {
		return &rpcError{code: codeServer, message: "no contract deployed at target address"}
	}
	return nil
}

func parseBlock(tag *string, def, head uint64) (uint64, error) {
	if tag == nil {
		return def, nil
	}
	switch strings.ToLower(*tag) {
	case "latest", "pending", "safe", "finalized":
		return head, nil
	case "earliest":
		return 0, nil
	}
	n, err := hexutil.DecodeUint64(*tag)
	if err != nil {
		return 0, &rpcError{code: codeInvalidParams, message: "invalid block tag " + *tag}
	}
	return n, nil
}

type SwitchChainParams struct {
	ChainID *hexutil.Big `json:"chainId"`
}

type AddChainParams struct {
	ChainID           *hexutil.Big `json:"chainId"`
	ChainName         string       `json:"chainName"`
	NativeCurrency    Currency     `json:"nativeCurrency"`
	RPCURLs           []string     `json:"rpcUrls"`
	BlockExplorerURLs []string     `json:"blockExplorerUrls"`
}

type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type WalletAPI struct {
	node *Node
}

// SwitchEthereumChain succeeds only for the chain this node serves. Any
// other chain is reported as unknown to the wallet.
func (api *WalletAPI) SwitchEthereumChain(p SwitchChainParams) error {
	if p.ChainID == nil || p.ChainID.ToInt().Cmp(api.node.cfg.ChainID) != 0 {
		return &rpcError{code: codeUnrecognizedChain, message: "Unrecognized chain ID. Try adding the chain using wallet_addEthereumChain first."}
	}
	return nil
}

func (api *WalletAPI) AddEthereumChain(p AddChainParams) error {
	if p.ChainID == nil || p.ChainID.ToInt().Cmp(api.node.cfg.ChainID) != 0 {
		return &rpcError{code: codeInvalidParams, message: "chain is not served by this node"}
	}
	api.node.logger.Info().Str("chain", p.ChainName).Msg("chain added")
	return nil
}

type NetAPI struct {
	node *Node
}

func (api *NetAPI) Version() string {
	return api.node.cfg.ChainID.String()
}
