package registry

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Startup is an immutable registry record. Its id, founder, name, timestamp and
// hash never change after registration.
type Startup struct {
	ID        uint64         `json:"id"`
	Founder   common.Address `json:"founder"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	Hash      common.Hash    `json:"startup_hash"`
}

// Registered reports whether the record refers to a real startup. A zero
// founder is the registry's "no such startup" marker.
func (s Startup) Registered() bool {
	return s.Founder != (common.Address{})
}

type StartupList struct {
	Items []Startup `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// CapTableEntry is one holder's share count. Shares are uint256 values.
type CapTableEntry struct {
	Holder common.Address `json:"holder"`
	Shares *big.Int       `json:"shares"`
}

// MarshalJSON renders shares as a decimal string so large counts survive
// JavaScript clients.
func (e CapTableEntry) MarshalJSON() ([]byte, error) {
	shares := "0"
	if e.Shares != nil {
		shares = e.Shares.String()
	}
	return json.Marshal(struct {
		Holder common.Address `json:"holder"`
		Shares string         `json:"shares"`
	}{e.Holder, shares})
}

func (e *CapTableEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Holder common.Address  `json:"holder"`
		Shares json.RawMessage `json:"shares"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	shares, err := parseShares(raw.Shares)
	if err != nil {
		return err
	}
	e.Holder = raw.Holder
	e.Shares = shares
	return nil
}

// CapTable is the full holder list of a startup, replaced wholesale on every
// write.
type CapTable struct {
	StartupID uint64          `json:"startup_id"`
	Entries   []CapTableEntry `json:"entries"`
}

// Holders returns the holder column of the table.
func (t CapTable) Holders() []common.Address {
	holders := make([]common.Address, len(t.Entries))
	for i, e := range t.Entries {
		holders[i] = e.Holder
	}
	return holders
}

// Shares returns the share column of the table.
func (t CapTable) Shares() []*big.Int {
	shares := make([]*big.Int, len(t.Entries))
	for i, e := range t.Entries {
		shares[i] = e.Shares
	}
	return shares
}

// EntriesFromColumns zips parallel holder and share arrays into entries.
func EntriesFromColumns(holders []common.Address, shares []*big.Int) ([]CapTableEntry, error) {
	if len(holders) != len(shares) {
		return nil, ErrCapTableLengthMismatch
	}
	entries := make([]CapTableEntry, len(holders))
	for i := range holders {
		entries[i] = CapTableEntry{Holder: holders[i], Shares: shares[i]}
	}
	return entries, nil
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ValidShares reports whether v fits a uint256.
func ValidShares(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(maxUint256) <= 0
}

// ParseShares accepts a base-10 share count.
func ParseShares(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || !ValidShares(v) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidShares, s)
	}
	return v, nil
}

func parseShares(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseShares(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidShares, string(raw))
	}
	return ParseShares(n.String())
}
