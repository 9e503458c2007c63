package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"verdant/pkg/chain"
	"verdant/pkg/logging"
	"verdant/pkg/registration"
)

var listIndexed bool

var startupsCmd = &cobra.Command{
	Use:   "startups",
	Short: "List, inspect and register startups",
}

var startupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered startup",
	Long: `List walks ids 0..nextStartupId-1 and prints every registered startup.
Ids that fail to load are reported after the listing instead of aborting it.
With --indexed the ids come from StartupRegistered logs instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *chain.Client) error {
			r, err := c.Contract()
			if err != nil {
				return err
			}
			var e chain.Enumeration
			if listIndexed {
				e, err = r.GetIndexedStartups(ctx)
			} else {
				e, err = r.GetAllStartups(ctx)
			}
			if err != nil {
				return err
			}
			return printEnumeration(cmd.OutOrStdout(), outputFormat, e)
		})
	},
}

var startupsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one startup",
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
			s, err := r.GetStartup(ctx, id)
			if err != nil {
				return err
			}
			if !s.Registered() {
				return fmt.Errorf("startup %d is not registered", id)
			}
			return printStartup(cmd.OutOrStdout(), outputFormat, s)
		})
	},
}

var startupsRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a startup from the connected account",
	Long: `Register connects the wallet, moves it to the registry's chain when
needed and submits registerStartup. It waits for the transaction to be mined.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *chain.Client) error {
			flow := registration.NewFlow(c, logging.Component("registration"))
			if err := flow.Connect(ctx); err != nil {
				return err
			}
			if _, err := flow.Submit(ctx, args[0]); err != nil {
				state := flow.State()
				if state.TxHash != (common.Hash{}) {
					fmt.Fprintf(cmd.ErrOrStderr(), "transaction %s was sent\n", state.TxHash.Hex())
				}
				return err
			}
			return printRegistration(cmd.OutOrStdout(), outputFormat, *flow.State().Result)
		})
	},
}

func init() {
	rootCmd.AddCommand(startupsCmd)
	startupsCmd.AddCommand(startupsListCmd, startupsGetCmd, startupsRegisterCmd)

	startupsListCmd.Flags().BoolVar(&listIndexed, "indexed", false, "Use registration logs instead of probing every id")
}
