package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"verdant/pkg/chain"
	"verdant/pkg/logging"
)

var (
	rpcURL          string
	contractAddress string
	chainID         string
	outputFormat    string
	callTimeout     time.Duration
	verbose         bool
)

// rootCmd is the base command for the registry CLI
var rootCmd = &cobra.Command{
	Use:   "registryctl",
	Short: "Read and write the Verdant startup registry",
	Long: `registryctl talks to the startup registry through a JSON-RPC wallet
endpoint. Settings default to the REGISTRY_* environment variables.

Examples:
  registryctl startups list
  registryctl startups register "Acme Robotics"
  registryctl cap-table set 3 0xabc...=7500 0xdef...=2500
  registryctl network ensure`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logging.Setup(level, true)
		if outputFormat != "table" && outputFormat != "json" {
			return fmt.Errorf("unsupported format %q (table|json)", outputFormat)
		}
		return nil
	},
}

func init() {
	_ = godotenv.Load()
	defaults := chain.ConfigFromEnv()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rpcURL, "rpc-url", defaults.RPCURL, "JSON-RPC wallet endpoint")
	flags.StringVar(&contractAddress, "contract", defaults.ContractAddress, "Registry contract address")
	flags.StringVar(&chainID, "chain-id", defaults.ChainID.String(), "Expected chain id")
	flags.StringVar(&outputFormat, "format", "table", "Output format (table|json)")
	flags.DurationVar(&callTimeout, "timeout", 2*time.Minute, "Timeout for the whole command")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log provider calls")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// clientConfig merges flags over the environment defaults.
func clientConfig() (chain.Config, error) {
	cfg := chain.ConfigFromEnv()
	cfg.RPCURL = rpcURL
	cfg.ContractAddress = contractAddress
	id, ok := new(big.Int).SetString(chainID, 0)
	if !ok || id.Sign() <= 0 {
		return chain.Config{}, fmt.Errorf("invalid chain id %q", chainID)
	}
	cfg.ChainID = id
	return cfg, nil
}

// withClient dials the wallet endpoint and runs fn with a ready client.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *chain.Client) error) error {
	cfg, err := clientConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	logger := logging.Component("registryctl")
	wallet, err := chain.DialWallet(ctx, cfg.RPCURL, logger)
	if err != nil {
		return describe(err)
	}
	defer wallet.Close()

	return describe(fn(ctx, chain.NewClient(wallet, cfg, logger)))
}

// describe prefixes chain errors with their kind so users know what to fix.
func describe(err error) error {
	if err == nil {
		return nil
	}
	switch chain.KindOf(err) {
	case chain.KindEnvironmentNotReady:
		return fmt.Errorf("environment not ready: %w", err)
	case chain.KindUserRejected:
		return fmt.Errorf("request rejected in wallet: %w", err)
	case chain.KindNetworkMismatch:
		return fmt.Errorf("wrong network: %w", err)
	case chain.KindTransactionReverted:
		return fmt.Errorf("transaction failed: %w", err)
	}
	return err
}
