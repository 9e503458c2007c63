package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"verdant/pkg/chain"
)

var capTableCmd = &cobra.Command{
	Use:   "cap-table",
	Short: "Read or replace a startup's cap table",
}

var capTableGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show holders, shares and ownership",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid startup id %q", args[0])
		}
		return withClient(cmd, func(ctx context.Context, c *chain.Client) error {
			r, err := c.Contract()
			if err != nil {
				return err
			}
			table, err := r.GetCapTable(ctx, id)
			if err != nil {
				return err
			}
			return printCapTable(cmd.OutOrStdout(), outputFormat, table)
		})
	},
}

var capTableSetCmd = &cobra.Command{
	Use:   "set <id> <holder=shares>...",
	Short: "Replace the whole cap table",
	Long: `Set replaces every entry of the cap table. Only the startup's founder
may do this; anyone else gets a reverted transaction.

Example:
  registryctl cap-table set 3 0x1111...1111=7500 0x2222...2222=2500`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid startup id %q", args[0])
		}
		holders, shares, err := parseAllocations(args[1:])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *chain.Client) error {
			if _, err := c.ConnectWallet(ctx); err != nil {
				return err
			}
			if err := c.EnsureNetwork(ctx); err != nil {
				return err
			}
			r, err := c.ContractWithSigner(ctx)
			if err != nil {
				return err
			}
			receipt, err := r.SetCapTable(ctx, id, holders, shares)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cap table of startup %d replaced in tx %s\n", id, receipt.TxHash.Hex())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(capTableCmd)
	capTableCmd.AddCommand(capTableGetCmd, capTableSetCmd)
}
