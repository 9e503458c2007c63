package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Client mediates between callers and the registry through a wallet
// provider. A nil provider means no wallet is installed.
type Client struct {
	provider Provider
	cfg      Config
	logger   zerolog.Logger
}

func NewClient(provider Provider, cfg Config, logger zerolog.Logger) *Client {
	return &Client{provider: provider, cfg: cfg, logger: logger}
}

func (c *Client) Config() Config { return c.cfg }

func (c *Client) Provider() Provider { return c.provider }

func (c *Client) IsWalletInstalled() bool {
	return c.provider != nil
}

// ConnectWallet asks the wallet for account access and returns the first
// authorized account.
func (c *Client) ConnectWallet(ctx context.Context) (common.Address, error) {
	if !c.IsWalletInstalled() {
		return common.Address{}, ErrWalletNotInstalled
	}
	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, classify(err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccounts
	}
	c.logger.Info().Str("account", accounts[0].Hex()).Msg("wallet connected")
	return accounts[0], nil
}

// ConnectedAccount returns an already authorized account without prompting.
// It reports false when there is none or no wallet is installed.
func (c *Client) ConnectedAccount(ctx context.Context) (common.Address, bool, error) {
	if !c.IsWalletInstalled() {
		return common.Address{}, false, nil
	}
	accounts, err := c.provider.Accounts(ctx)
	if err != nil {
		return common.Address{}, false, classify(err)
	}
	if len(accounts) == 0 {
		return common.Address{}, false, nil
	}
	return accounts[0], true, nil
}

// CheckNetwork reports whether the wallet is on the configured chain.
func (c *Client) CheckNetwork(ctx context.Context) (bool, error) {
	if !c.IsWalletInstalled() {
		return false, ErrWalletNotInstalled
	}
	id, err := c.provider.ChainID(ctx)
	if err != nil {
		return false, classify(err)
	}
	return id.Cmp(c.cfg.chainID()) == 0, nil
}

// SwitchNetwork asks the wallet to move to the configured chain, adding it
// with Sepolia metadata when the wallet does not know it.
func (c *Client) SwitchNetwork(ctx context.Context) error {
	if !c.IsWalletInstalled() {
		return ErrWalletNotInstalled
	}
	target := c.cfg.chainID()

	err := c.provider.SwitchChain(ctx, target)
	if err == nil {
		return nil
	}
	if KindOf(classify(err)) != KindNetworkMismatch {
		return classify(err)
	}

	c.logger.Info().Str("chain_id", target.String()).Msg("wallet does not know chain, adding it")
	if err := c.provider.AddChain(ctx, SepoliaChain(new(big.Int).Set(target))); err != nil {
		return classify(err)
	}
	if err := c.provider.SwitchChain(ctx, target); err != nil {
		return classify(err)
	}
	return nil
}

// EnsureNetwork switches chains when needed and fails with
// KindNetworkMismatch if the wallet still reports another chain.
func (c *Client) EnsureNetwork(ctx context.Context) error {
	ok, err := c.CheckNetwork(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := c.SwitchNetwork(ctx); err != nil {
		return &Error{Kind: KindNetworkMismatch, Message: "could not switch wallet network", Err: err}
	}

	ok, err = c.CheckNetwork(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &Error{Kind: KindNetworkMismatch, Message: fmt.Sprintf("wallet is not on chain %s", c.cfg.chainID())}
	}
	return nil
}

// Contract returns a read-only registry handle.
func (c *Client) Contract() (*Registry, error) {
	addr, err := c.cfg.Contract()
	if err != nil {
		return nil, err
	}
	if !c.IsWalletInstalled() {
		return nil, ErrWalletNotInstalled
	}
	return newRegistry(c.provider, addr, common.Address{}, c.cfg, c.logger), nil
}

// ContractWithSigner returns a handle that sends transactions from the
// connected account.
func (c *Client) ContractWithSigner(ctx context.Context) (*Registry, error) {
	addr, err := c.cfg.Contract()
	if err != nil {
		return nil, err
	}
	if !c.IsWalletInstalled() {
		return nil, ErrWalletNotInstalled
	}
	from, ok, err := c.ConnectedAccount(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSigner
	}
	return newRegistry(c.provider, addr, from, c.cfg, c.logger), nil
}

// GetAllStartups enumerates every registered startup through a read-only
// handle.
func (c *Client) GetAllStartups(ctx context.Context) (Enumeration, error) {
	r, err := c.Contract()
	if err != nil {
		return Enumeration{}, err
	}
	return r.GetAllStartups(ctx)
}
