package handlers

import (
	"context"
	"encoding/json"

	"github.com/hxrts/aura-sub001/pkg/effects"
	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

// JournalHandler adapts a replicated journal to the journal effect
// interface. The journal itself is shared by reference: the effect system,
// the anti-entropy syncer and the flow guard all see the same instance.
// With a store attached, accepted ops land under journal/op/<cid> and
// budgets under journal/budget/<ctx>/<peer>.
type JournalHandler struct {
	journal *journal.Replicated
	store   effects.Storage
}

// NewJournalHandler wraps a journal with no durable store.
func NewJournalHandler(j *journal.Replicated) *JournalHandler {
	return &JournalHandler{journal: j}
}

// NewPersistentJournalHandler wraps a journal backed by a store.
func NewPersistentJournalHandler(j *journal.Replicated, store effects.Storage) *JournalHandler {
	return &JournalHandler{journal: j, store: store}
}

// Journal exposes the underlying replicated journal.
func (h *JournalHandler) Journal() *journal.Replicated { return h.journal }

func (h *JournalHandler) AppendAttestedOp(ctx context.Context, op journal.AttestedOp) (identifiers.Hash32, error) {
	cid, err := h.journal.AppendAttestedOp(ctx, op)
	if err != nil {
		return cid, err
	}
	if h.store != nil {
		raw, encErr := op.Encode()
		if encErr == nil {
			_ = h.store.Put(ctx, "journal/op/"+cid.String(), raw)
		}
	}
	return cid, nil
}

func (h *JournalHandler) MergeRemoteOps(ctx context.Context, ops []journal.AttestedOp) (int, error) {
	return h.journal.MergeRemoteOps(ctx, ops)
}

func (h *JournalHandler) TreeState(ctx context.Context) (*journal.TreeState, error) {
	return h.journal.TreeState(), nil
}

func (h *JournalHandler) Commitment(ctx context.Context) (identifiers.Hash32, error) {
	return h.journal.Commitment()
}

func (h *JournalHandler) OplogDigest(ctx context.Context) (identifiers.Hash32, error) {
	return h.journal.Digest(), nil
}

func (h *JournalHandler) GetFlowBudget(ctx context.Context, contextID identifiers.ContextId, peer identifiers.DeviceId, epoch identifiers.Epoch) (flow.Budget, error) {
	return h.journal.DeterministicBudget(contextID, peer, epoch), nil
}

func (h *JournalHandler) UpdateFlowBudget(ctx context.Context, contextID identifiers.ContextId, peer identifiers.DeviceId, budget flow.Budget) error {
	h.journal.UpdateBudget(contextID, peer, budget)
	if h.store != nil {
		raw, err := json.Marshal(budget)
		if err == nil {
			_ = h.store.Put(ctx, "journal/budget/"+string(contextID)+"/"+peer.String(), raw)
		}
	}
	return nil
}
