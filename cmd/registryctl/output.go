package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"verdant/pkg/captable"
	"verdant/pkg/chain"
	"verdant/pkg/registry"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type enumerationOutput struct {
	Startups     []registry.Startup `json:"startups"`
	Failures     []failureOutput    `json:"failures,omitempty"`
	Unregistered []uint64           `json:"unregistered,omitempty"`
	Next         uint64             `json:"next_startup_id"`
}

type failureOutput struct {
	ID    uint64 `json:"id"`
	Error string `json:"error"`
}

func printEnumeration(w io.Writer, format string, e chain.Enumeration) error {
	if format == "json" {
		out := enumerationOutput{Startups: e.Startups, Unregistered: e.Unregistered, Next: e.Next}
		for _, f := range e.Failures {
			out.Failures = append(out.Failures, failureOutput{ID: f.ID, Error: f.Err.Error()})
		}
		return writeJSON(w, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFOUNDER\tCREATED\tHASH")
	for _, s := range e.Startups {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			s.ID, s.Name, captable.FormatAddress(s.Founder), s.CreatedAt.UTC().Format(time.DateTime), shortHash(s.Hash))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d startups, next id %d\n", len(e.Startups), e.Next)
	for _, f := range e.Failures {
		fmt.Fprintf(w, "warning: %v\n", f)
	}
	return nil
}

func printStartup(w io.Writer, format string, s registry.Startup) error {
	if format == "json" {
		return writeJSON(w, s)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%d\n", s.ID)
	fmt.Fprintf(tw, "name\t%s\n", s.Name)
	fmt.Fprintf(tw, "founder\t%s\n", s.Founder.Hex())
	fmt.Fprintf(tw, "created\t%s\n", s.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "hash\t%s\n", s.Hash.Hex())
	fmt.Fprintf(tw, "hash verified\t%t\n", registry.VerifyHash(s))
	return tw.Flush()
}

type registrationOutput struct {
	ID        uint64      `json:"id"`
	TxHash    common.Hash `json:"tx_hash"`
	Block     uint64      `json:"block_number"`
	FromEvent bool        `json:"id_from_event"`
}

func printRegistration(w io.Writer, format string, reg chain.Registration) error {
	out := registrationOutput{ID: reg.ID, TxHash: reg.TxHash, FromEvent: reg.FromEvent}
	if reg.Receipt != nil && reg.Receipt.BlockNumber != nil {
		out.Block = reg.Receipt.BlockNumber.Uint64()
	}
	if format == "json" {
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "registered startup %d in tx %s (block %d)\n", out.ID, out.TxHash.Hex(), out.Block)
	if !out.FromEvent {
		fmt.Fprintln(w, "note: id derived from nextStartupId, registration event was not found")
	}
	return nil
}

func printCapTable(w io.Writer, format string, table registry.CapTable) error {
	summary := captable.Breakdown(table.Holders(), table.Shares())
	if format == "json" {
		return writeJSON(w, summary)
	}
	if len(summary.Holdings) == 0 {
		fmt.Fprintf(w, "startup %d has no cap table\n", table.StartupID)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "HOLDER\tSHARES\tOWNERSHIP\t")
	for _, h := range summary.Holdings {
		fmt.Fprintf(tw, "%s\t%s\t%s%%\t\n", h.Holder.Hex(), h.Shares, h.Percent)
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t\t\n", summary.TotalShares)
	return tw.Flush()
}

func shortHash(h common.Hash) string {
	hex := h.Hex()
	return hex[:10] + "..."
}

// parseAllocations reads holder=shares pairs into parallel columns.
func parseAllocations(args []string) ([]common.Address, []*big.Int, error) {
	holders := make([]common.Address, 0, len(args))
	shares := make([]*big.Int, 0, len(args))
	for _, arg := range args {
		holder, amount, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, nil, fmt.Errorf("allocation %q must look like <address>=<shares>", arg)
		}
		if !common.IsHexAddress(holder) {
			return nil, nil, fmt.Errorf("invalid holder address %q", holder)
		}
		n, err := registry.ParseShares(amount)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid share count %q: %w", amount, err)
		}
		holders = append(holders, common.HexToAddress(holder))
		shares = append(shares, n)
	}
	return holders, shares, nil
}
