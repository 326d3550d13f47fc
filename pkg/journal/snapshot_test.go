package journal_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

// seedJournal builds a journal with three chained leaves and returns the
// device ids and the tip op.
func seedJournal(t *testing.T) (*journal.Replicated, []identifiers.DeviceId, journal.AttestedOp) {
	t.Helper()
	ctx := context.Background()
	j := journal.NewReplicated()

	devices := []identifiers.DeviceId{
		identifiers.DeviceIdFromSeed(7, 1),
		identifiers.DeviceIdFromSeed(7, 2),
		identifiers.DeviceIdFromSeed(7, 3),
	}
	var tip journal.AttestedOp
	var parents []identifiers.Hash32
	for _, d := range devices {
		op := addLeafOp(t, d, parents...)
		_, err := j.AppendAttestedOp(ctx, op)
		require.NoError(t, err)
		parents = []identifiers.Hash32{op.CID()}
		tip = op
	}
	return j, devices, tip
}

func TestSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	j, devices, tip := seedJournal(t)

	before, err := j.Commitment()
	require.NoError(t, err)

	id, err := j.ProposeSnapshot([]identifiers.Hash32{tip.CID()})
	require.NoError(t, err)

	// Default root policy threshold is 1; one member approval suffices.
	n, err := j.ApproveSnapshot(id, journal.Partial{Device: devices[0], Share: []byte("share")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := j.FinalizeSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, journal.OpSnapshot, snap.Kind)

	pruned, err := j.ApplySnapshot(&snap)
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)
	assert.Equal(t, 1, j.Statistics().Ops, "only the snapshot op remains")

	// The reduction seeded from the snapshot preserves membership and
	// commitment.
	after, err := j.Commitment()
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
	for _, d := range devices {
		assert.True(t, j.TreeState().HasDevice(d))
	}
}

func TestApproveRejectsNonMember(t *testing.T) {
	j, _, tip := seedJournal(t)

	id, err := j.ProposeSnapshot([]identifiers.Hash32{tip.CID()})
	require.NoError(t, err)

	outsider := identifiers.DeviceIdFromSeed(99, 1)
	_, err = j.ApproveSnapshot(id, journal.Partial{Device: outsider, Share: []byte("x")})
	assert.True(t, aerr.IsCode(err, aerr.CodePermissionDenied))
}

func TestApproveRejectsAfterEpochRotation(t *testing.T) {
	ctx := context.Background()
	j, devices, tip := seedJournal(t)

	id, err := j.ProposeSnapshot([]identifiers.Hash32{tip.CID()})
	require.NoError(t, err)

	_, err = j.AppendAttestedOp(ctx, rotateEpochOp(t, 5, tip.CID()))
	require.NoError(t, err)

	_, err = j.ApproveSnapshot(id, journal.Partial{Device: devices[0], Share: []byte("x")})
	assert.True(t, aerr.IsCode(err, aerr.CodePermissionDenied))
}

func TestFinalizeRequiresThreshold(t *testing.T) {
	ctx := context.Background()
	j, _, tip := seedJournal(t)

	id, err := j.ProposeSnapshot([]identifiers.Hash32{tip.CID()})
	require.NoError(t, err)

	_, err = j.FinalizeSnapshot(ctx, id)
	assert.True(t, aerr.IsCode(err, aerr.CodePermissionDenied))
}

func TestProposeRejectsUnknownCut(t *testing.T) {
	j, _, _ := seedJournal(t)
	bogus := identifiers.Hash32FromBytes([]byte("missing"))
	_, err := j.ProposeSnapshot([]identifiers.Hash32{bogus})
	assert.True(t, aerr.IsCode(err, aerr.CodeStorage))
}
