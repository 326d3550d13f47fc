package journal_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

func addLeafOp(t *testing.T, device identifiers.DeviceId, parents ...identifiers.Hash32) journal.AttestedOp {
	t.Helper()
	payload, err := journal.EncodePayload(journal.AddLeafPayload{
		Leaf:  journal.LeafNode{Device: device, PublicKey: device.Bytes()},
		Under: journal.RootIndex,
	})
	require.NoError(t, err)
	op, err := journal.NewAttestedOp(journal.OpAddLeaf, parents, payload, []byte("sig"))
	require.NoError(t, err)
	return op
}

func removeLeafOp(t *testing.T, device identifiers.DeviceId, parents ...identifiers.Hash32) journal.AttestedOp {
	t.Helper()
	payload, err := journal.EncodePayload(journal.RemoveLeafPayload{Device: device, Reason: 1})
	require.NoError(t, err)
	op, err := journal.NewAttestedOp(journal.OpRemoveLeaf, parents, payload, []byte("sig"))
	require.NoError(t, err)
	return op
}

func rotateEpochOp(t *testing.T, epoch identifiers.Epoch, parents ...identifiers.Hash32) journal.AttestedOp {
	t.Helper()
	payload, err := journal.EncodePayload(journal.RotateEpochPayload{NewEpoch: epoch})
	require.NoError(t, err)
	op, err := journal.NewAttestedOp(journal.OpRotateEpoch, parents, payload, []byte("sig"))
	require.NoError(t, err)
	return op
}

func TestAppendAndReduce(t *testing.T) {
	j := journal.NewReplicated()
	ctx := context.Background()

	d1 := identifiers.DeviceIdFromSeed(1, 1)
	op := addLeafOp(t, d1)

	cid, err := j.AppendAttestedOp(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, op.CID(), cid)

	tree := j.TreeState()
	assert.True(t, tree.HasDevice(d1))
	assert.Len(t, tree.Membership(), 1)
}

func TestAppendIsIdempotent(t *testing.T) {
	j := journal.NewReplicated()
	ctx := context.Background()

	op := addLeafOp(t, identifiers.DeviceIdFromSeed(1, 1))
	_, err := j.AppendAttestedOp(ctx, op)
	require.NoError(t, err)
	_, err = j.AppendAttestedOp(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, 1, j.Statistics().Ops)
}

func TestAppendQueuesMissingParents(t *testing.T) {
	j := journal.NewReplicated()
	ctx := context.Background()

	d1 := identifiers.DeviceIdFromSeed(2, 1)
	d2 := identifiers.DeviceIdFromSeed(2, 2)
	parent := addLeafOp(t, d1)
	child := addLeafOp(t, d2, parent.CID())

	_, err := j.AppendAttestedOp(ctx, child)
	require.Error(t, err)
	assert.True(t, aerr.IsCode(err, aerr.CodeStorage))
	assert.Equal(t, 0, j.Statistics().Ops)

	// The queued child lands once its parent arrives.
	_, err = j.AppendAttestedOp(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, 2, j.Statistics().Ops)
	assert.True(t, j.TreeState().HasDevice(d2))
}

// Journal merge scenario: two replicas append disjoint ops, exchange, and
// report the same commitment and epoch.
func TestMergeConvergence(t *testing.T) {
	ctx := context.Background()
	a := journal.NewReplicated()
	b := journal.NewReplicated()

	var opsA, opsB []journal.AttestedOp
	for i := 0; i < 5; i++ {
		opA := addLeafOp(t, identifiers.DeviceIdFromSeed(10, uint32(i)))
		opB := addLeafOp(t, identifiers.DeviceIdFromSeed(20, uint32(i)))
		_, err := a.AppendAttestedOp(ctx, opA)
		require.NoError(t, err)
		_, err = b.AppendAttestedOp(ctx, opB)
		require.NoError(t, err)
		opsA = append(opsA, opA)
		opsB = append(opsB, opB)
	}

	_, err := a.MergeRemoteOps(ctx, opsB)
	require.NoError(t, err)
	_, err = b.MergeRemoteOps(ctx, opsA)
	require.NoError(t, err)

	commitA, err := a.Commitment()
	require.NoError(t, err)
	commitB, err := b.Commitment()
	require.NoError(t, err)
	assert.True(t, commitA.Equal(commitB))
	assert.Equal(t, a.CurrentEpoch(), b.CurrentEpoch())
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestMergeHandlesChildBeforeParent(t *testing.T) {
	ctx := context.Background()
	j := journal.NewReplicated()

	d1 := identifiers.DeviceIdFromSeed(3, 1)
	d2 := identifiers.DeviceIdFromSeed(3, 2)
	parent := addLeafOp(t, d1)
	child := addLeafOp(t, d2, parent.CID())

	accepted, err := j.MergeRemoteOps(ctx, []journal.AttestedOp{child, parent})
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
	assert.True(t, j.TreeState().HasDevice(d2))
}

func TestCommitmentRestoredAfterAddRemove(t *testing.T) {
	ctx := context.Background()
	j := journal.NewReplicated()

	base := addLeafOp(t, identifiers.DeviceIdFromSeed(4, 1))
	_, err := j.AppendAttestedOp(ctx, base)
	require.NoError(t, err)
	before, err := j.Commitment()
	require.NoError(t, err)

	d := identifiers.DeviceIdFromSeed(4, 2)
	add := addLeafOp(t, d, base.CID())
	_, err = j.AppendAttestedOp(ctx, add)
	require.NoError(t, err)
	mid, err := j.Commitment()
	require.NoError(t, err)
	assert.False(t, before.Equal(mid))

	remove := removeLeafOp(t, d, add.CID())
	_, err = j.AppendAttestedOp(ctx, remove)
	require.NoError(t, err)
	after, err := j.Commitment()
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
}

func TestRotateEpochRaisesTreeEpoch(t *testing.T) {
	ctx := context.Background()
	j := journal.NewReplicated()

	_, err := j.AppendAttestedOp(ctx, rotateEpochOp(t, 3))
	require.NoError(t, err)
	assert.Equal(t, identifiers.Epoch(3), j.CurrentEpoch())

	// Older rotations never lower the epoch.
	_, err = j.AppendAttestedOp(ctx, rotateEpochOp(t, 1))
	require.NoError(t, err)
	assert.Equal(t, identifiers.Epoch(3), j.CurrentEpoch())
}

func TestDeterministicBudgetFromFacts(t *testing.T) {
	j := journal.NewReplicated()
	ctxID := identifiers.ContextId("t")
	peer := identifiers.DeviceIdFromSeed(5, 1)

	j.SeedBudgetFact(ctxID, peer, flow.Budget{Limit: 10, Spent: 2, Epoch: 0})
	j.SeedBudgetFact(ctxID, peer, flow.Budget{Limit: 8, Spent: 4, Epoch: 0})
	j.SeedBudgetFact(ctxID, peer, flow.Budget{Limit: 10, Spent: 3, Epoch: 1})

	got := j.DeterministicBudget(ctxID, peer, 1)
	assert.Equal(t, flow.Budget{Limit: 8, Spent: 0, Epoch: 1}, got)
}

func TestUpdateBudgetCompactsSupersededFacts(t *testing.T) {
	j := journal.NewReplicated()
	ctxID := identifiers.ContextId("t")
	peer := identifiers.DeviceIdFromSeed(5, 2)

	j.SeedBudgetFact(ctxID, peer, flow.Budget{Limit: 10, Spent: 1, Epoch: 0})
	j.UpdateBudget(ctxID, peer, flow.Budget{Limit: 10, Spent: 2, Epoch: 0})
	j.UpdateBudget(ctxID, peer, flow.Budget{Limit: 10, Spent: 3, Epoch: 0})

	facts := j.BudgetFacts(ctxID, peer)
	assert.Len(t, facts, 1)
	assert.Equal(t, uint64(3), facts[0].Spent)
}

func TestOpRoundTrip(t *testing.T) {
	op := addLeafOp(t, identifiers.DeviceIdFromSeed(6, 1))
	raw, err := op.Encode()
	require.NoError(t, err)

	back, err := journal.DecodeAttestedOp(raw)
	require.NoError(t, err)
	assert.Equal(t, op.CID(), back.CID())
	assert.Equal(t, op.Kind, back.Kind)
	assert.Equal(t, op.Payload, back.Payload)
	assert.Equal(t, op.AggregateSig, back.AggregateSig)

	raw2, err := back.Encode()
	require.NoError(t, err)
	assert.Equal(t, raw, raw2)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := journal.DecodeAttestedOp([]byte("not json"))
	assert.True(t, aerr.IsCode(err, aerr.CodeSerialization))
}
