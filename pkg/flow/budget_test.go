package flow_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

func TestRecordChargeRespectsLimit(t *testing.T) {
	b := flow.NewBudget(5, 0)

	assert.True(t, b.RecordCharge(3))
	assert.Equal(t, uint64(3), b.Spent)

	assert.False(t, b.RecordCharge(3))
	assert.Equal(t, uint64(3), b.Spent, "failed charge must not mutate")

	assert.True(t, b.RecordCharge(2))
	assert.Equal(t, uint64(0), b.Remaining())
}

func TestRotateEpochResetsSpend(t *testing.T) {
	b := flow.NewBudget(5, 0)
	b.RecordCharge(5)

	assert.True(t, b.RotateEpoch(1))
	assert.Equal(t, uint64(0), b.Spent)
	assert.Equal(t, identifiers.Epoch(1), b.Epoch)

	assert.False(t, b.RotateEpoch(1), "rotation to same epoch is a no-op")
	assert.False(t, b.RotateEpoch(0), "rotation never goes backwards")
}

// The deterministic-budget scenario: three peers each hold the same three
// journaled facts and must converge on the same cap.
func TestMeetAllConvergesAcrossEpochs(t *testing.T) {
	facts := []flow.Budget{
		{Limit: 10, Spent: 2, Epoch: 0},
		{Limit: 8, Spent: 4, Epoch: 0},
		{Limit: 10, Spent: 3, Epoch: 1},
	}

	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}} {
		permuted := make([]flow.Budget, len(facts))
		for i, j := range order {
			permuted[i] = facts[j]
		}
		got := flow.MeetAll(permuted, 1)
		assert.Equal(t, flow.Budget{Limit: 8, Spent: 0, Epoch: 1}, got)
	}
}

func TestMeetAllSameEpochKeepsSpend(t *testing.T) {
	facts := []flow.Budget{
		{Limit: 10, Spent: 2, Epoch: 3},
		{Limit: 8, Spent: 4, Epoch: 3},
	}
	got := flow.MeetAll(facts, 3)
	assert.Equal(t, flow.Budget{Limit: 8, Spent: 4, Epoch: 3}, got)
}

func TestMeetAllEmpty(t *testing.T) {
	got := flow.MeetAll(nil, 2)
	assert.Equal(t, identifiers.Epoch(2), got.Epoch)
	assert.Equal(t, uint64(0), got.Spent)
}

func TestMeetAllRotatesToCurrent(t *testing.T) {
	facts := []flow.Budget{{Limit: 5, Spent: 5, Epoch: 0}}
	got := flow.MeetAll(facts, 1)
	assert.Equal(t, flow.Budget{Limit: 5, Spent: 0, Epoch: 1}, got)
}

func genBudget() gopter.Gen {
	return gopter.CombineGens(
		gen.UInt64Range(0, 1000),
		gen.UInt64Range(0, 1000),
		gen.UInt64Range(0, 4),
	).Map(func(vals []interface{}) flow.Budget {
		return flow.Budget{
			Limit: vals[0].(uint64),
			Spent: vals[1].(uint64),
			Epoch: identifiers.Epoch(vals[2].(uint64)),
		}
	})
}

func TestMeetProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("meet is commutative", prop.ForAll(
		func(a, b flow.Budget) bool {
			return a.Meet(b) == b.Meet(a)
		},
		genBudget(), genBudget(),
	))

	properties.Property("meet is idempotent", prop.ForAll(
		func(a flow.Budget) bool {
			return a.Meet(a) == a
		},
		genBudget(),
	))

	properties.Property("meet never raises the limit", prop.ForAll(
		func(a, b flow.Budget) bool {
			m := a.Meet(b)
			return m.Limit <= a.Limit && m.Limit <= b.Limit
		},
		genBudget(), genBudget(),
	))

	properties.Property("spent never decreases within an epoch", prop.ForAll(
		func(limit uint64, costs []uint64) bool {
			b := flow.NewBudget(limit, 0)
			prev := uint64(0)
			for _, c := range costs {
				b.RecordCharge(c % 64)
				if b.Spent < prev {
					return false
				}
				prev = b.Spent
			}
			return true
		},
		gen.UInt64Range(0, 128),
		gen.SliceOf(gen.UInt64Range(0, 64)),
	))

	properties.TestingRun(t)
}
