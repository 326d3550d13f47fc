package flow

import (
	"context"

	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// Hint names the budget a caller wants the next transport send charged
// against. A hint installed on a context is one-shot: it is consumed by the
// next send.
type Hint struct {
	Context identifiers.ContextId `json:"context"`
	Peer    identifiers.DeviceId  `json:"peer"`
	Cost    uint32                `json:"cost"`
}

// NewHint builds a hint for the given context, peer, and cost.
func NewHint(ctx identifiers.ContextId, peer identifiers.DeviceId, cost uint32) Hint {
	return Hint{Context: ctx, Peer: peer, Cost: cost}
}

// Charger is the budget machinery the guard drives. The effect system
// implements it: load the deterministic budget, charge it, persist, and
// emit a chained receipt.
type Charger interface {
	ChargeFlow(ctx context.Context, contextID identifiers.ContextId, peer identifiers.DeviceId, cost uint32) (Receipt, error)
}

// Guard performs pre-send authorization for a single hint.
type Guard struct {
	hint Hint
}

// NewGuard builds a guard for an explicit (context, peer, cost) triple.
func NewGuard(contextID identifiers.ContextId, peer identifiers.DeviceId, cost uint32) Guard {
	return Guard{hint: NewHint(contextID, peer, cost)}
}

// FromHint builds a guard from a previously installed hint.
func FromHint(hint Hint) Guard {
	return Guard{hint: hint}
}

// Hint returns the guard's hint.
func (g Guard) Hint() Hint { return g.hint }

// Authorize charges the hint's cost against the (context, peer) budget and
// returns the emitted receipt. On budget exhaustion the charger returns
// PermissionDenied and no transport I/O may take place.
func (g Guard) Authorize(ctx context.Context, charger Charger) (Receipt, error) {
	return charger.ChargeFlow(ctx, g.hint.Context, g.hint.Peer, g.hint.Cost)
}
