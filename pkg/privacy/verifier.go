// Package privacy provides per-operation authorization against context
// isolation and leakage-budget rules. Contexts partition observations; an
// operation that lets one context observe another charges a leakage budget
// and is denied, fail-closed, once the budget is spent.
package privacy

import (
	"sync"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/effects"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// Decision is the outcome of one authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	// LeakageCharged is the leakage spent by this operation, if any.
	LeakageCharged uint64 `json:"leakage_charged,omitempty"`
}

// leakage tracks a context's cross-context observation budget.
type leakage struct {
	limit uint64
	spent uint64
}

// Verifier enforces context isolation. All state is local; verdicts are
// advisory for same-context traffic and binding for cross-context
// observation.
type Verifier struct {
	mu      sync.Mutex
	bridges map[identifiers.ContextId]map[identifiers.ContextId]bool
	budgets map[identifiers.ContextId]*leakage
	// costs maps effect kinds to leakage units for cross-context use;
	// unlisted kinds cost 1.
	costs map[effects.Kind]uint64
}

// NewVerifier returns a verifier with no bridges and no budgets: every
// cross-context observation is denied until configured.
func NewVerifier() *Verifier {
	return &Verifier{
		bridges: make(map[identifiers.ContextId]map[identifiers.ContextId]bool),
		budgets: make(map[identifiers.ContextId]*leakage),
		costs: map[effects.Kind]uint64{
			effects.KindNetwork: 2,
			effects.KindStorage: 1,
			effects.KindConsole: 3,
		},
	}
}

// AllowBridge declares that from may observe into to.
func (v *Verifier) AllowBridge(from, to identifiers.ContextId) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bridges[from] == nil {
		v.bridges[from] = make(map[identifiers.ContextId]bool)
	}
	v.bridges[from][to] = true
}

// SetLeakageBudget installs the cross-context observation cap for a
// context.
func (v *Verifier) SetLeakageBudget(ctx identifiers.ContextId, limit uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.budgets[ctx] = &leakage{limit: limit}
}

// LeakageSpent reports the units a context has consumed.
func (v *Verifier) LeakageSpent(ctx identifiers.ContextId) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b, ok := v.budgets[ctx]; ok {
		return b.spent
	}
	return 0
}

// AuthorizeOperation checks one effect operation issued from caller scope
// against the context it observes. Same-context operations pass. Cross-
// context operations require a declared bridge and charge the caller's
// leakage budget; exhaustion or a missing bridge denies, fail-closed.
func (v *Verifier) AuthorizeOperation(caller, observed identifiers.ContextId, kind effects.Kind) (Decision, error) {
	if caller == observed {
		return Decision{Allowed: true, Reason: "same context"}, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.bridges[caller][observed] {
		return Decision{Allowed: false, Reason: "no bridge declared"},
			aerr.PermissionDenied("context %s may not observe %s", caller, observed)
	}

	cost, ok := v.costs[kind]
	if !ok {
		cost = 1
	}
	budget, ok := v.budgets[caller]
	if !ok {
		return Decision{Allowed: false, Reason: "no leakage budget"},
			aerr.PermissionDenied("context %s has no leakage budget", caller)
	}
	if budget.spent+cost > budget.limit {
		return Decision{Allowed: false, Reason: "leakage budget exhausted"},
			aerr.PermissionDenied("leakage budget exhausted for %s (limit=%d, spent=%d, cost=%d)",
				caller, budget.limit, budget.spent, cost)
	}
	budget.spent += cost
	return Decision{Allowed: true, Reason: "bridged", LeakageCharged: cost}, nil
}
