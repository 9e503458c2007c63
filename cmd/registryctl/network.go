package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"verdant/pkg/chain"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Inspect or fix the wallet's network",
}

var networkCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the wallet is on the expected chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *chain.Client) error {
			ok, err := c.CheckNetwork(ctx)
			if err != nil {
				return err
			}
			account, connected, err := c.ConnectedAccount(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "expected chain: %s\n", c.Config().ChainID)
			fmt.Fprintf(out, "on expected chain: %t\n", ok)
			if connected {
				fmt.Fprintf(out, "account: %s\n", account.Hex())
			} else {
				fmt.Fprintln(out, "account: none authorized")
			}
			return nil
		})
	},
}

var networkEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Switch the wallet to the expected chain, adding it if needed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *chain.Client) error {
			if err := c.EnsureNetwork(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wallet is on chain %s\n", c.Config().ChainID)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(networkCmd)
	networkCmd.AddCommand(networkCheckCmd, networkEnsureCmd)
}
