package journal_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

// buildOps constructs n chained add-leaf ops (each child of the previous).
func buildOps(t *testing.T, seed uint64, n int) []journal.AttestedOp {
	t.Helper()
	var ops []journal.AttestedOp
	var parents []identifiers.Hash32
	for i := 0; i < n; i++ {
		payload, err := journal.EncodePayload(journal.AddLeafPayload{
			Leaf: journal.LeafNode{
				Device:    identifiers.DeviceIdFromSeed(seed, uint32(i)),
				PublicKey: []byte{byte(i)},
			},
			Under: journal.RootIndex,
		})
		require.NoError(t, err)
		op, err := journal.NewAttestedOp(journal.OpAddLeaf, parents, payload, []byte("sig"))
		require.NoError(t, err)
		ops = append(ops, op)
		parents = []identifiers.Hash32{op.CID()}
	}
	return ops
}

// Merge order never changes the reduction: for any permutation of the op
// set, the commitment is identical.
func TestReductionOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	ops := buildOps(t, 31, 6)

	reference := journal.NewReplicated()
	_, err := reference.MergeRemoteOps(context.Background(), ops)
	require.NoError(t, err)
	want, err := reference.Commitment()
	require.NoError(t, err)

	properties.Property("any arrival order converges", prop.ForAll(
		func(perm []int) bool {
			shuffled := make([]journal.AttestedOp, 0, len(ops))
			seen := make(map[int]bool)
			for _, i := range perm {
				idx := i % len(ops)
				if !seen[idx] {
					seen[idx] = true
					shuffled = append(shuffled, ops[idx])
				}
			}
			for i := range ops {
				if !seen[i] {
					shuffled = append(shuffled, ops[i])
				}
			}

			j := journal.NewReplicated()
			if _, err := j.MergeRemoteOps(context.Background(), shuffled); err != nil {
				return false
			}
			got, err := j.Commitment()
			if err != nil {
				return false
			}
			return got.Equal(want)
		},
		gen.SliceOfN(6, gen.IntRange(0, 5)),
	))

	properties.Property("merge is commutative across two replicas", prop.ForAll(
		func(split int) bool {
			k := split % (len(ops) + 1)
			a := journal.NewReplicated()
			b := journal.NewReplicated()
			if _, err := a.MergeRemoteOps(context.Background(), ops[:k]); err != nil {
				return false
			}
			if _, err := b.MergeRemoteOps(context.Background(), ops[k:]); err != nil {
				return false
			}
			// Cross-merge in both directions.
			if _, err := a.MergeRemoteOps(context.Background(), ops[k:]); err != nil {
				return false
			}
			if _, err := b.MergeRemoteOps(context.Background(), ops[:k]); err != nil {
				return false
			}
			ca, err := a.Commitment()
			if err != nil {
				return false
			}
			cb, err := b.Commitment()
			if err != nil {
				return false
			}
			return ca.Equal(cb) && a.Digest() == b.Digest()
		},
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}
