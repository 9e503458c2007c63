// Package contract binds the StartupRegistry ABI: it packs calls, decodes
// return tuples and event logs into registry types, and builds the logs a
// node emits for registrations.
package contract

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"verdant/pkg/registry"
)

const (
	MethodRegisterStartup = "registerStartup"
	MethodGetStartup      = "getStartup"
	MethodGetCapTable     = "getCapTable"
	MethodSetCapTable     = "setCapTable"
	MethodNextStartupID   = "nextStartupId"

	EventStartupRegistered = "StartupRegistered"
)

// RegistryABIJSON is the StartupRegistry interface consumed by clients.
const RegistryABIJSON = `[
  {"type":"function","name":"registerStartup","stateMutability":"nonpayable",
   "inputs":[{"name":"name","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getStartup","stateMutability":"view",
   "inputs":[{"name":"startupId","type":"uint256"}],
   "outputs":[{"name":"founder","type":"address"},{"name":"name","type":"string"},
              {"name":"createdAt","type":"uint256"},{"name":"startupHash","type":"bytes32"}]},
  {"type":"function","name":"getCapTable","stateMutability":"view",
   "inputs":[{"name":"startupId","type":"uint256"}],
   "outputs":[{"name":"holders","type":"address[]"},{"name":"shares","type":"uint256[]"}]},
  {"type":"function","name":"setCapTable","stateMutability":"nonpayable",
   "inputs":[{"name":"startupId","type":"uint256"},{"name":"holders","type":"address[]"},
             {"name":"shares","type":"uint256[]"}],
   "outputs":[]},
  {"type":"function","name":"nextStartupId","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"StartupRegistered","anonymous":false,
   "inputs":[{"name":"startupId","type":"uint256","indexed":true},
             {"name":"founder","type":"address","indexed":true},
             {"name":"name","type":"string","indexed":false},
             {"name":"startupHash","type":"bytes32","indexed":false}]}
]`

// RegistryABI is the parsed form of RegistryABIJSON.
var RegistryABI = mustParse(RegistryABIJSON)

// StartupRegisteredTopic is the event signature hash, topic 0 of every
// registration log.
var StartupRegisteredTopic = RegistryABI.Events[EventStartupRegistered].ID

var ErrMalformedOutput = errors.New("malformed contract output")

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse registry abi: %v", err))
	}
	return parsed
}

func PackRegisterStartup(name string) ([]byte, error) {
	return RegistryABI.Pack(MethodRegisterStartup, name)
}

func PackGetStartup(id uint64) ([]byte, error) {
	return RegistryABI.Pack(MethodGetStartup, new(big.Int).SetUint64(id))
}

func PackGetCapTable(id uint64) ([]byte, error) {
	return RegistryABI.Pack(MethodGetCapTable, new(big.Int).SetUint64(id))
}

func PackSetCapTable(id uint64, holders []common.Address, shares []*big.Int) ([]byte, error) {
	return RegistryABI.Pack(MethodSetCapTable, new(big.Int).SetUint64(id), holders, shares)
}

func PackNextStartupID() ([]byte, error) {
	return RegistryABI.Pack(MethodNextStartupID)
}

// DecodeUint decodes a single uint256 return value, as returned by
// nextStartupId and registerStartup.
func DecodeUint(method string, out []byte) (uint64, error) {
	values, err := RegistryABI.Unpack(method, out)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", method, err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("%s: %w", method, ErrMalformedOutput)
	}
	v, ok := values[0].(*big.Int)
	if !ok || !v.IsUint64() {
		return 0, fmt.Errorf("%s: %w", method, ErrMalformedOutput)
	}
	return v.Uint64(), nil
}

// DecodeStartup turns a getStartup tuple into a record. A zero founder comes
// back unchanged; callers use Startup.Registered to detect it.
func DecodeStartup(id uint64, out []byte) (registry.Startup, error) {
	values, err := RegistryABI.Unpack(MethodGetStartup, out)
	if err != nil {
		return registry.Startup{}, fmt.Errorf("%s: %w", MethodGetStartup, err)
	}
	if len(values) != 4 {
		return registry.Startup{}, fmt.Errorf("%s: %w", MethodGetStartup, ErrMalformedOutput)
	}

	founder, ok1 := values[0].(common.Address)
	name, ok2 := values[1].(string)
	createdAt, ok3 := values[2].(*big.Int)
	hash, ok4 := values[3].([32]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 || !createdAt.IsInt64() {
		return registry.Startup{}, fmt.Errorf("%s: %w", MethodGetStartup, ErrMalformedOutput)
	}

	return registry.Startup{
		ID:        id,
		Founder:   founder,
		Name:      name,
		CreatedAt: time.Unix(createdAt.Int64(), 0).UTC(),
		Hash:      common.Hash(hash),
	}, nil
}

// DecodeCapTable turns the parallel getCapTable arrays into a table.
func DecodeCapTable(id uint64, out []byte) (registry.CapTable, error) {
	values, err := RegistryABI.Unpack(MethodGetCapTable, out)
	if err != nil {
		return registry.CapTable{}, fmt.Errorf("%s: %w", MethodGetCapTable, err)
	}
	if len(values) != 2 {
		return registry.CapTable{}, fmt.Errorf("%s: %w", MethodGetCapTable, ErrMalformedOutput)
	}

	holders, ok1 := values[0].([]common.Address)
	shares, ok2 := values[1].([]*big.Int)
	if !ok1 || !ok2 {
		return registry.CapTable{}, fmt.Errorf("%s: %w", MethodGetCapTable, ErrMalformedOutput)
	}

	entries, err := registry.EntriesFromColumns(holders, shares)
	if err != nil {
		return registry.CapTable{}, fmt.Errorf("%s: %w", MethodGetCapTable, err)
	}
	return registry.CapTable{StartupID: id, Entries: entries}, nil
}

// EncodeStartup packs a record as the getStartup return tuple.
func EncodeStartup(s registry.Startup) ([]byte, error) {
	createdAt := new(big.Int)
	if s.Registered() {
		createdAt.SetInt64(s.CreatedAt.Unix())
	}
	return RegistryABI.Methods[MethodGetStartup].Outputs.Pack(s.Founder, s.Name, createdAt, [32]byte(s.Hash))
}

// EncodeCapTable packs a table as the getCapTable return arrays.
func EncodeCapTable(t registry.CapTable) ([]byte, error) {
	return RegistryABI.Methods[MethodGetCapTable].Outputs.Pack(t.Holders(), t.Shares())
}

// EncodeUint packs a single uint256 return value for method.
func EncodeUint(method string, v uint64) ([]byte, error) {
	m, ok := RegistryABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown method %q", method)
	}
	return m.Outputs.Pack(new(big.Int).SetUint64(v))
}

// StartupRegisteredEvent is the decoded StartupRegistered log.
type StartupRegisteredEvent struct {
	StartupID uint64
	Founder   common.Address
	Name      string
	Hash      common.Hash
	Raw       types.Log
}

// StartupRegisteredLog builds the log the registry emits for s.
func StartupRegisteredLog(address common.Address, s registry.Startup) (types.Log, error) {
	data, err := RegistryABI.Events[EventStartupRegistered].Inputs.NonIndexed().Pack(s.Name, [32]byte(s.Hash))
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{
		Address: address,
		Topics: []common.Hash{
			StartupRegisteredTopic,
			common.BigToHash(new(big.Int).SetUint64(s.ID)),
			common.BytesToHash(s.Founder.Bytes()),
		},
		Data: data,
	}, nil
}

// ParseStartupRegistered decodes a registration log. It fails for logs of
// any other event.
func ParseStartupRegistered(l types.Log) (StartupRegisteredEvent, error) {
	if len(l.Topics) != 3 || l.Topics[0] != StartupRegisteredTopic {
		return StartupRegisteredEvent{}, fmt.Errorf("not a %s log", EventStartupRegistered)
	}

	var data struct {
		Name        string
		StartupHash [32]byte
	}
	if err := RegistryABI.UnpackIntoInterface(&data, EventStartupRegistered, l.Data); err != nil {
		return StartupRegisteredEvent{}, fmt.Errorf("%s: %w", EventStartupRegistered, err)
	}

	id := l.Topics[1].Big()
	if !id.IsUint64() {
		return StartupRegisteredEvent{}, fmt.Errorf("%s: %w", EventStartupRegistered, ErrMalformedOutput)
	}

	return StartupRegisteredEvent{
		StartupID: id.Uint64(),
		Founder:   common.BytesToAddress(l.Topics[2].Bytes()),
		Name:      data.Name,
		Hash:      common.Hash(data.StartupHash),
		Raw:       l,
	}, nil
}

// FindStartupRegistered returns the first registration event emitted by
// address in the receipt.
func FindStartupRegistered(receipt *types.Receipt, address common.Address) (StartupRegisteredEvent, bool) {
	if receipt == nil {
		return StartupRegisteredEvent{}, false
	}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != address {
			continue
		}
		ev, err := ParseStartupRegistered(*l)
		if err == nil {
			return ev, true
		}
	}
	return StartupRegisteredEvent{}, false
}
