package contract

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"verdant/pkg/registry"
)

var (
	registryAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	founder      = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	holder       = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func sampleStartup() registry.Startup {
	createdAt := time.Unix(1717171717, 0).UTC()
	return registry.Startup{
		ID:        3,
		Founder:   founder,
		Name:      "FactoryAI",
		CreatedAt: createdAt,
		Hash:      registry.ComputeHash(3, "FactoryAI", founder, createdAt.Unix()),
	}
}

func TestSelectors(t *testing.T) {
	require.Equal(t, crypto.Keccak256([]byte("registerStartup(string)"))[:4], RegistryABI.Methods[MethodRegisterStartup].ID)
	require.Equal(t, crypto.Keccak256([]byte("getStartup(uint256)"))[:4], RegistryABI.Methods[MethodGetStartup].ID)
	require.Equal(t, crypto.Keccak256([]byte("setCapTable(uint256,address[],uint256[])"))[:4], RegistryABI.Methods[MethodSetCapTable].ID)
	require.Equal(t, crypto.Keccak256Hash([]byte("StartupRegistered(uint256,address,string,bytes32)")), StartupRegisteredTopic)
}

func TestStartupRoundTrip(t *testing.T) {
	s := sampleStartup()

	out, err := EncodeStartup(s)
	require.NoError(t, err)

	decoded, err := DecodeStartup(s.ID, out)
	require.NoError(t, err)
	require.Equal(t, s.Founder, decoded.Founder)
	require.Equal(t, s.Name, decoded.Name)
	require.True(t, s.CreatedAt.Equal(decoded.CreatedAt))
	require.Equal(t, s.Hash, decoded.Hash)
	require.True(t, decoded.Registered())
}

func TestDecodeStartup_ZeroTuple(t *testing.T) {
	out, err := EncodeStartup(registry.Startup{})
	require.NoError(t, err)

	decoded, err := DecodeStartup(42, out)
	require.NoError(t, err)
	require.False(t, decoded.Registered())
	require.EqualValues(t, 42, decoded.ID)
}

func TestDecodeStartup_Malformed(t *testing.T) {
	_, err := DecodeStartup(0, []byte{0x01, 0x02})
	require.Error(t, err)
}

func TestCapTableRoundTrip(t *testing.T) {
	table := registry.CapTable{StartupID: 1, Entries: []registry.CapTableEntry{
		{Holder: founder, Shares: big.NewInt(7500)},
		{Holder: holder, Shares: big.NewInt(2500)},
	}}

	out, err := EncodeCapTable(table)
	require.NoError(t, err)

	decoded, err := DecodeCapTable(1, out)
	require.NoError(t, err)
	require.Equal(t, table.Holders(), decoded.Holders())
	require.Equal(t, "2500", decoded.Shares()[1].String())

	empty, err := EncodeCapTable(registry.CapTable{StartupID: 9})
	require.NoError(t, err)
	decoded, err = DecodeCapTable(9, empty)
	require.NoError(t, err)
	require.Empty(t, decoded.Entries)
}

func TestPackSetCapTable_UnpacksInputs(t *testing.T) {
	data, err := PackSetCapTable(4, []common.Address{holder}, []*big.Int{big.NewInt(10)})
	require.NoError(t, err)

	method, err := RegistryABI.MethodById(data[:4])
	require.NoError(t, err)
	require.Equal(t, MethodSetCapTable, method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.EqualValues(t, 4, args[0].(*big.Int).Int64())
	require.Equal(t, []common.Address{holder}, args[1].([]common.Address))
}

func TestDecodeUint(t *testing.T) {
	out, err := EncodeUint(MethodNextStartupID, 17)
	require.NoError(t, err)

	v, err := DecodeUint(MethodNextStartupID, out)
	require.NoError(t, err)
	require.EqualValues(t, 17, v)
}

func TestStartupRegisteredLogRoundTrip(t *testing.T) {
	s := sampleStartup()

	l, err := StartupRegisteredLog(registryAddr, s)
	require.NoError(t, err)
	require.Len(t, l.Topics, 3)

	ev, err := ParseStartupRegistered(l)
	require.NoError(t, err)
	require.Equal(t, s.ID, ev.StartupID)
	require.Equal(t, s.Founder, ev.Founder)
	require.Equal(t, s.Name, ev.Name)
	require.Equal(t, s.Hash, ev.Hash)
}

func TestFindStartupRegistered(t *testing.T) {
	s := sampleStartup()
	l, err := StartupRegisteredLog(registryAddr, s)
	require.NoError(t, err)

	foreign := l
	foreign.Address = holder
	unrelated := types.Log{Address: registryAddr, Topics: []common.Hash{common.HexToHash("0x01")}}

	receipt := &types.Receipt{Logs: []*types.Log{&unrelated, &foreign, &l}}
	ev, ok := FindStartupRegistered(receipt, registryAddr)
	require.True(t, ok)
	require.Equal(t, s.ID, ev.StartupID)

	_, ok = FindStartupRegistered(&types.Receipt{Logs: []*types.Log{&unrelated}}, registryAddr)
	require.False(t, ok)

	_, ok = FindStartupRegistered(nil, registryAddr)
	require.False(t, ok)
}
