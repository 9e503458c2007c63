package chain

import (
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

const (
	DefaultChainID = 11155111
	// PlaceholderContractAddress ships in example env files and counts as unset.
	PlaceholderContractAddress = "REPLACE_WITH_DEPLOYED_SEPOLIA_ADDRESS"
)

type Config struct {
	ContractAddress     string
	ChainID             *big.Int
	RPCURL              string
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
	// ScanRate caps lookups per second during enumeration. Zero means no limit.
	ScanRate  rate.Limit
	ScanBurst int
}

func DefaultConfig() Config {
	return Config{
		ChainID:             big.NewInt(DefaultChainID),
		RPCURL:              "http://localhost:8080/rpc",
		ReceiptPollInterval: time.Second,
		ReceiptTimeout:      2 * time.Minute,
		ScanRate:            20,
		ScanBurst:           1,
	}
}

// ConfigFromEnv overlays REGISTRY_* environment variables on DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.ContractAddress = strings.TrimSpace(os.Getenv("REGISTRY_CONTRACT_ADDRESS"))
	if v := os.Getenv("REGISTRY_CHAIN_ID"); v != "" {
		if id, ok := new(big.Int).SetString(v, 0); ok && id.Sign() > 0 {
			cfg.ChainID = id
		}
	}
	if v := os.Getenv("REGISTRY_RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	cfg.ReceiptPollInterval = envDuration("REGISTRY_RECEIPT_POLL_INTERVAL", cfg.ReceiptPollInterval)
	cfg.ReceiptTimeout = envDuration("REGISTRY_RECEIPT_TIMEOUT", cfg.ReceiptTimeout)
	if v := os.Getenv("REGISTRY_SCAN_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r >= 0 {
			cfg.ScanRate = rate.Limit(r)
		}
	}
	return cfg
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Contract returns the configured registry address. Empty, placeholder and
// malformed values all yield ErrContractNotConfigured.
func (c Config) Contract() (common.Address, error) {
	addr := strings.TrimSpace(c.ContractAddress)
	if addr == "" || addr == PlaceholderContractAddress || !common.IsHexAddress(addr) {
		return common.Address{}, ErrContractNotConfigured
	}
	parsed := common.HexToAddress(addr)
	if parsed == (common.Address{}) {
		return common.Address{}, ErrContractNotConfigured
	}
	return parsed, nil
}

func (c Config) chainID() *big.Int {
	if c.ChainID == nil {
		return big.NewInt(DefaultChainID)
	}
	return c.ChainID
}

func (c Config) limiter() *rate.Limiter {
	if c.ScanRate <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := c.ScanBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(c.ScanRate, burst)
}

// SepoliaChain is the metadata offered to the wallet when it does not know
// the target chain.
func SepoliaChain(chainID *big.Int) AddChainParams {
	return AddChainParams{
		ChainID:   chainID,
		ChainName: "Sepolia Testnet",
		NativeCurrency: NativeCurrency{
			Name:     "SepoliaETH",
			Symbol:   "ETH",
			Decimals: 18,
		},
		RPCURLs:           []string{"https://rpc.sepolia.org"},
		BlockExplorerURLs: []string{"https://sepolia.etherscan.io"},
	}
}
