// Package captable turns raw cap table columns into the ownership figures
// shown to investors. Percentages use integer basis-point math so results
// never depend on float rounding.
package captable

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var basisPointsPerWhole = big.NewInt(10000)

// Holding is one display row of a cap table.
type Holding struct {
	Holder      common.Address `json:"holder"`
	Shares      string         `json:"shares"`
	BasisPoints int64          `json:"basis_points"`
	Percent     string         `json:"percent"`
}

// Summary is the display form of a whole cap table.
type Summary struct {
	TotalShares string    `json:"total_shares"`
	Holdings    []Holding `json:"holdings"`
}

// TotalShares sums the share column. Nil entries count as zero.
func TotalShares(shares []*big.Int) *big.Int {
	total := new(big.Int)
	for _, s := range shares {
		if s != nil {
			total.Add(total, s)
		}
	}
	return total
}

// OwnershipBasisPoints returns floor(shares * 10000 / total). A zero total
// yields zero.
func OwnershipBasisPoints(shares, total *big.Int) *big.Int {
	if total == nil || total.Sign() == 0 || shares == nil {
		return new(big.Int)
	}
	bp := new(big.Int).Mul(shares, basisPointsPerWhole)
	return bp.Quo(bp, total)
}

// FormatPercent renders basis points as a two-decimal percentage, e.g. 2500
// becomes "25.00".
func FormatPercent(basisPoints *big.Int) string {
	whole, frac := new(big.Int).QuoRem(basisPoints, big.NewInt(100), new(big.Int))
	return fmt.Sprintf("%s.%02d", whole.String(), frac.Int64())
}

// Ownership is the displayed percentage for a holder with the given shares.
func Ownership(shares, total *big.Int) string {
	return FormatPercent(OwnershipBasisPoints(shares, total))
}

// Breakdown builds display rows from parallel holder/share columns. Extra
// elements of the longer column are ignored.
func Breakdown(holders []common.Address, shares []*big.Int) Summary {
	n := min(len(holders), len(shares))
	total := TotalShares(shares[:n])

	holdings := make([]Holding, n)
	for i := 0; i < n; i++ {
		bp := OwnershipBasisPoints(shares[i], total)
		s := "0"
		if shares[i] != nil {
			s = shares[i].String()
		}
		holdings[i] = Holding{
			Holder:      holders[i],
			Shares:      s,
			BasisPoints: bp.Int64(),
			Percent:     FormatPercent(bp),
		}
	}
	return Summary{TotalShares: total.String(), Holdings: holdings}
}

// FormatAddress shortens an address to 0x1234...abcd.
func FormatAddress(a common.Address) string {
	hex := a.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
