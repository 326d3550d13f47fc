package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/store"
)

// chain builds n correctly linked receipts.
func chain(n int) []flow.Receipt {
	src := identifiers.DeviceIdFromSeed(70, 1)
	dst := identifiers.DeviceIdFromSeed(70, 2)
	prev := identifiers.ZeroHash
	out := make([]flow.Receipt, 0, n)
	for i := 0; i < n; i++ {
		r := flow.NewReceipt("ctx", src, dst, 0, 1, uint64(i+1), prev)
		out = append(out, r)
		prev, _ = r.ContentHash()
	}
	return out
}

func testStore(t *testing.T, s store.ReceiptStore) {
	t.Helper()
	ctx := context.Background()

	head, err := s.Head(ctx)
	require.NoError(t, err)
	assert.True(t, head.IsZero())

	receipts := chain(4)
	for _, r := range receipts {
		require.NoError(t, s.Append(ctx, r))
	}

	head, err = s.Head(ctx)
	require.NoError(t, err)
	want, err := receipts[3].ContentHash()
	require.NoError(t, err)
	assert.True(t, head.Equal(want))

	listed, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, receipts[3], listed[0], "newest first")

	ok, err := s.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryReceiptStore(t *testing.T) {
	testStore(t, store.NewMemoryReceiptStore())
}

func TestSQLiteReceiptStore(t *testing.T) {
	s, err := store.OpenSQLiteReceiptStore(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	testStore(t, s)
}

func TestVerifyChainDetectsBreak(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryReceiptStore()

	receipts := chain(3)
	require.NoError(t, s.Append(ctx, receipts[0]))
	// Skip receipts[1]: the chain is broken.
	require.NoError(t, s.Append(ctx, receipts[2]))

	ok, err := s.VerifyChain(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
