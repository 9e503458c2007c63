package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"verdant/pkg/registry"
)

func registerAll(t *testing.T, r *Registry, names ...string) []Registration {
	t.Helper()
	out := make([]Registration, 0, len(names))
	for _, name := range names {
		reg, err := r.RegisterStartup(context.Background(), name)
		require.NoError(t, err)
		out = append(out, reg)
	}
	return out
}

func TestRegistry_RegisterStartup(t *testing.T) {
	ctx := context.Background()
	r := signerFor(t, startNode(t))

	before, err := r.NextStartupID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), before)

	reg, err := r.RegisterStartup(ctx, "X")
	require.NoError(t, err)
	require.True(t, reg.FromEvent)
	require.Equal(t, uint64(0), reg.ID)
	require.Equal(t, reg.TxHash, reg.Receipt.TxHash)

	after, err := r.NextStartupID(ctx)
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	s, err := r.GetStartup(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, founderAddr, s.Founder)
	require.Equal(t, "X", s.Name)
	require.NotEqual(t, common.Hash{}, s.Hash)
	require.True(t, registry.VerifyHash(s))
}

func TestRegistry_RegisterStartupFallsBackToCounter(t *testing.T) {
	wallet := startNode(t)
	r := signerFor(t, &flakyProvider{Provider: wallet, dropLogs: true})

	regs := registerAll(t, r, "Acme", "Globex")
	require.False(t, regs[1].FromEvent)
	require.Equal(t, uint64(1), regs[1].ID)
}

func TestRegistry_UnregisteredIDReturnsZeroFounder(t *testing.T) {
	ctx := context.Background()
	r := signerFor(t, startNode(t))
	registerAll(t, r, "Acme")

	s, err := r.GetStartup(ctx, 5)
	require.NoError(t, err)
	require.False(t, s.Registered())
}

func TestRegistry_CapTable(t *testing.T) {
	ctx := context.Background()
	wallet := startNode(t)
	r := signerFor(t, wallet)
	registerAll(t, r, "Acme")

	empty, err := r.GetCapTable(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, empty.Entries)

	holders := []common.Address{founderAddr, otherAddr}
	_, err = r.SetCapTable(ctx, 0, holders, []*big.Int{big.NewInt(7500), big.NewInt(2500)})
	require.NoError(t, err)

	table, err := r.GetCapTable(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, holders, table.Holders())
	require.Equal(t, "7500", table.Entries[0].Shares.String())
	require.Equal(t, "2500", table.Entries[1].Shares.String())

	_, err = r.SetCapTable(ctx, 0, []common.Address{otherAddr}, []*big.Int{big.NewInt(1)})
	require.NoError(t, err)

	table, err = r.GetCapTable(ctx, 0)
	require.NoError(t, err)
	require.Len(t, table.Entries, 1)
	require.Equal(t, otherAddr, table.Entries[0].Holder)
	require.Equal(t, "1", table.Entries[0].Shares.String())
}

func TestRegistry_SetCapTableByNonFounderReverts(t *testing.T) {
	ctx := context.Background()
	wallet := startNode(t)
	founder := signerFor(t, wallet)
	registerAll(t, founder, "Acme")

	other := newRegistry(wallet, registryAddr, otherAddr, testConfig(), zerolog.Nop())
	_, err := other.SetCapTable(ctx, 0, []common.Address{otherAddr}, []*big.Int{big.NewInt(1)})
	require.Error(t, err)
	require.Equal(t, KindTransactionReverted, KindOf(err))
	require.Contains(t, err.Error(), "execution reverted")

	table, err := founder.GetCapTable(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, table.Entries)
}

func TestRegistry_SetCapTableLengthMismatchReverts(t *testing.T) {
	ctx := context.Background()
	r := signerFor(t, startNode(t))
	registerAll(t, r, "Acme")

	_, err := r.SetCapTable(ctx, 0, []common.Address{founderAddr, otherAddr}, []*big.Int{big.NewInt(1)})
	require.Equal(t, KindTransactionReverted, KindOf(err))
}

func TestRegistry_UnmanagedSenderIsRejected(t *testing.T) {
	ctx := context.Background()
	wallet := startNode(t, founderAddr)
	stranger := newRegistry(wallet, registryAddr, otherAddr, testConfig(), zerolog.Nop())

	_, err := stranger.RegisterStartup(ctx, "Acme")
	require.Equal(t, KindUserRejected, KindOf(err))
}
