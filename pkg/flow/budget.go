// Package flow implements the flow-budget guard: the deterministically
// computed per-(context, peer) send budget that gates all outbound transport,
// and the signed, hash-chained receipts it emits.
package flow

import (
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// Budget is the per-(context, peer) spend cap for a single epoch.
//
// Budgets form a lattice under Meet (limit=min, epoch=max), so replicas that
// have journaled the same set of budget facts converge on the same cap
// regardless of order. Spend carries across facts only while every fact
// agrees on the epoch; an epoch rotation observed anywhere in the fact set
// zeroes the spend for the new epoch.
type Budget struct {
	Limit uint64            `json:"limit"`
	Spent uint64            `json:"spent"`
	Epoch identifiers.Epoch `json:"epoch"`
}

// NewBudget returns an unspent budget with the given limit and epoch.
func NewBudget(limit uint64, epoch identifiers.Epoch) Budget {
	return Budget{Limit: limit, Epoch: epoch}
}

// Unlimited is the identity element of Meet.
func Unlimited(epoch identifiers.Epoch) Budget {
	return Budget{Limit: ^uint64(0), Epoch: epoch}
}

// Remaining returns the spend still available in the current epoch.
func (b Budget) Remaining() uint64 {
	if b.Spent >= b.Limit {
		return 0
	}
	return b.Limit - b.Spent
}

// Meet folds another budget fact into this one: limit=min, epoch=max. Facts
// at the same epoch keep the larger spend; an epoch mismatch means a
// rotation happened between the two facts, which resets spend.
func (b Budget) Meet(o Budget) Budget {
	out := b
	if o.Limit < out.Limit {
		out.Limit = o.Limit
	}
	switch {
	case o.Epoch == out.Epoch:
		if o.Spent > out.Spent {
			out.Spent = o.Spent
		}
	case o.Epoch > out.Epoch:
		out.Epoch = o.Epoch
		out.Spent = 0
	default:
		out.Spent = 0
	}
	return out
}

// RotateEpoch advances the budget to epoch if it is higher, resetting spend.
// Rotation is the only mechanism that reduces Spent.
func (b *Budget) RotateEpoch(epoch identifiers.Epoch) bool {
	if epoch <= b.Epoch {
		return false
	}
	b.Epoch = epoch
	b.Spent = 0
	return true
}

// RecordCharge adds cost to the spend if it fits under the limit. Returns
// false, without mutating, when the charge would exceed the cap.
func (b *Budget) RecordCharge(cost uint64) bool {
	if cost > b.Limit || b.Spent > b.Limit-cost {
		return false
	}
	b.Spent += cost
	return true
}

// MeetAll computes the canonical budget for a set of journaled facts and
// rotates it to the current epoch. The computation is over the set, not a
// fold order: limit is the minimum, epoch the maximum, and spend survives
// only when every fact shares that maximum epoch. Every peer holding the
// same facts derives the same cap.
func MeetAll(facts []Budget, current identifiers.Epoch) Budget {
	if len(facts) == 0 {
		return Unlimited(current)
	}
	out := facts[0]
	allSame := true
	for _, f := range facts[1:] {
		if f.Limit < out.Limit {
			out.Limit = f.Limit
		}
		if f.Epoch != out.Epoch {
			allSame = false
			if f.Epoch > out.Epoch {
				out.Epoch = f.Epoch
			}
		} else if f.Spent > out.Spent {
			out.Spent = f.Spent
		}
	}
	if !allSame {
		out.Spent = 0
	}
	out.RotateEpoch(current)
	return out
}
