package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"verdant/pkg/contract"
	"verdant/pkg/registry"
	"verdant/pkg/rpcnode"
)

var (
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	founderAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	otherAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ContractAddress = registryAddr.Hex()
	cfg.ReceiptPollInterval = 5 * time.Millisecond
	cfg.ReceiptTimeout = 5 * time.Second
	cfg.ScanRate = 0
	return cfg
}

// startNode serves a fresh in-memory registry and returns a wallet whose
// first account is accounts[0].
func startNode(t *testing.T, accounts ...common.Address) *RPCWallet {
	t.Helper()
	if len(accounts) == 0 {
		accounts = []common.Address{founderAddr, otherAddr}
	}
	svc := registry.NewRegistryService(registry.NewMemoryStartupRepository())
	node := rpcnode.New(svc, rpcnode.Config{
		ChainID:         big.NewInt(DefaultChainID),
		ContractAddress: registryAddr,
		Accounts:        accounts,
	}, zerolog.Nop())
	srv, err := node.Server()
	require.NoError(t, err)

	wallet := NewRPCWallet(rpc.DialInProc(srv), zerolog.Nop())
	t.Cleanup(func() {
		wallet.Close()
		srv.Stop()
	})
	return wallet
}

func signerFor(t *testing.T, p Provider) *Registry {
	t.Helper()
	c := NewClient(p, testConfig(), zerolog.Nop())
	r, err := c.ContractWithSigner(context.Background())
	require.NoError(t, err)
	return r
}

type codeError struct {
	code int
	msg  string
}

func (e *codeError) Error() string  { return e.msg }
func (e *codeError) ErrorCode() int { return e.code }

// flakyProvider fails getStartup for chosen ids and can inflate the counter
// to expose unregistered ids.
type flakyProvider struct {
	Provider
	failIDs   map[uint64]bool
	extraNext uint64
	dropLogs  bool
}

func (p *flakyProvider) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	method, err := contract.RegistryABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case contract.MethodGetStartup:
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		if p.failIDs[args[0].(*big.Int).Uint64()] {
			return nil, errors.New("connection reset by peer")
		}
	case contract.MethodNextStartupID:
		out, err := p.Provider.Call(ctx, msg)
		if err != nil {
			return nil, err
		}
		next, err := contract.DecodeUint(method.Name, out)
		if err != nil {
			return nil, err
		}
		return contract.EncodeUint(method.Name, next+p.extraNext)
	}
	return p.Provider.Call(ctx, msg)
}

func (p *flakyProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := p.Provider.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil || !p.dropLogs {
		return receipt, err
	}
	stripped := *receipt
	stripped.Logs = nil
	return &stripped, nil
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]common.Address)
	return accounts, args.Error(1)
}

func (m *mockProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]common.Address)
	return accounts, args.Error(1)
}

func (m *mockProvider) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	id, _ := args.Get(0).(*big.Int)
	return id, args.Error(1)
}

func (m *mockProvider) SwitchChain(ctx context.Context, chainID *big.Int) error {
	return m.Called(ctx, chainID).Error(0)
}

func (m *mockProvider) AddChain(ctx context.Context, params AddChainParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *mockProvider) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	args := m.Called(ctx, msg)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (m *mockProvider) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	args := m.Called(ctx, tx)
	hash, _ := args.Get(0).(common.Hash)
	return hash, args.Error(1)
}

func (m *mockProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, hash)
	receipt, _ := args.Get(0).(*types.Receipt)
	return receipt, args.Error(1)
}

func (m *mockProvider) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(ctx, q)
	logs, _ := args.Get(0).([]types.Log)
	return logs, args.Error(1)
}

// mockWallet adds the event hook, which would otherwise shadow mock.Mock.On.
type mockWallet struct {
	*mockProvider
}

func (w mockWallet) On(event Event, fn func(any)) func() {
	return func() {}
}
