package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// AggregateVerifier checks an op's threshold signature against the policy
// reachable from its parents. Concrete threshold schemes (FROST) live
// outside this module; deterministic mocks implement this for testing and
// simulation.
type AggregateVerifier interface {
	VerifyAggregateSig(ctx context.Context, op *AttestedOp, state *TreeState) (bool, error)
}

// Broadcaster is the best-effort push hook invoked after a successful local
// append. Failures are non-fatal; anti-entropy pulls reconcile later. The
// hook runs under the journal lock and must not call back into the journal.
type Broadcaster interface {
	BroadcastCid(ctx context.Context, cid identifiers.Hash32)
}

type budgetKey struct {
	ctx  identifiers.ContextId
	peer identifiers.DeviceId
}

// Replicated is the journal a device holds: the op log, its cached
// reduction, per-(context, peer) flow-budget facts, a queue of ops whose
// parents have not arrived, and the snapshot proposal table.
//
// Op acceptance is serialized: appends take the write lock and re-reduce
// before releasing it.
type Replicated struct {
	mu          sync.RWMutex
	log         *OpLog
	tree        *TreeState
	budgets     map[budgetKey][]flow.Budget
	pending     map[identifiers.Hash32][]AttestedOp
	proposals   map[identifiers.Hash32]*snapshotProposal
	verifier    AggregateVerifier
	broadcaster Broadcaster
	logger      *slog.Logger
}

// Option configures a Replicated journal.
type Option func(*Replicated)

// WithVerifier installs the aggregate-signature verifier. Without one,
// signatures are not checked (testing only).
func WithVerifier(v AggregateVerifier) Option {
	return func(j *Replicated) { j.verifier = v }
}

// WithBroadcaster installs the push-on-append hook.
func WithBroadcaster(b Broadcaster) Option {
	return func(j *Replicated) { j.broadcaster = b }
}

// WithLogger overrides the journal's logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Replicated) { j.logger = l }
}

// NewReplicated returns an empty journal.
func NewReplicated(opts ...Option) *Replicated {
	j := &Replicated{
		log:       NewOpLog(),
		budgets:   make(map[budgetKey][]flow.Budget),
		pending:   make(map[identifiers.Hash32][]AttestedOp),
		proposals: make(map[identifiers.Hash32]*snapshotProposal),
		logger:    slog.Default().With("component", "journal"),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.tree = Reduce(j.log)
	return j
}

// AppendAttestedOp validates and inserts one op:
//
//  1. Verify the aggregate signature against the policy reachable from the
//     op's parents in the current reduction.
//  2. Require all parents present; otherwise the op is queued and a
//     Storage error asks the caller to fetch the missing parents.
//  3. Insert, re-reduce, and broadcast the CID best-effort.
func (j *Replicated) AppendAttestedOp(ctx context.Context, op AttestedOp) (identifiers.Hash32, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cid, err := j.appendLocked(ctx, op)
	if err != nil {
		return cid, err
	}
	if j.broadcaster != nil {
		j.broadcaster.BroadcastCid(ctx, cid)
	}
	return cid, nil
}

func (j *Replicated) appendLocked(ctx context.Context, op AttestedOp) (identifiers.Hash32, error) {
	cid := op.CID()
	if j.log.Contains(cid) {
		return cid, nil
	}

	if j.verifier != nil {
		ok, err := j.verifier.VerifyAggregateSig(ctx, &op, j.tree)
		if err != nil {
			return cid, aerr.Wrap(aerr.CodeInternal, err, "verify aggregate sig")
		}
		if !ok {
			return cid, aerr.PermissionDenied("aggregate signature rejected for op %s", cid)
		}
	}

	if missing := j.log.Missing(op.Parents); len(missing) > 0 {
		for _, parent := range missing {
			j.pending[parent] = append(j.pending[parent], op)
		}
		return cid, aerr.Storage("op %s queued: %d parent(s) missing", cid, len(missing))
	}

	j.log.Insert(op)
	j.tree = Reduce(j.log)
	j.drainPending(ctx, cid)
	return cid, nil
}

// drainPending retries ops that were waiting on the op just inserted.
func (j *Replicated) drainPending(ctx context.Context, arrived identifiers.Hash32) {
	waiters := j.pending[arrived]
	if len(waiters) == 0 {
		return
	}
	delete(j.pending, arrived)
	for _, op := range waiters {
		if _, err := j.appendLocked(ctx, op); err != nil {
			j.logger.Debug("queued op still blocked", "cid", op.CID(), "err", err)
		}
	}
}

// MergeRemoteOps unions a batch of remote ops into the log. Each op is
// validated on its own; a malformed or rejected op is discarded alone and
// does not poison the batch. Returns the number of newly accepted ops.
func (j *Replicated) MergeRemoteOps(ctx context.Context, ops []AttestedOp) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	before := j.log.Len()
	// Ops may arrive in any order; retry until a pass makes no progress so
	// children queued behind their parents land in the same merge.
	remaining := append([]AttestedOp(nil), ops...)
	for {
		var deferred []AttestedOp
		progress := false
		for _, op := range remaining {
			if j.log.Contains(op.CID()) {
				continue
			}
			if _, err := j.appendLocked(ctx, op); err != nil {
				if aerr.IsCode(err, aerr.CodeStorage) {
					deferred = append(deferred, op)
					continue
				}
				j.logger.Warn("rejected remote op", "cid", op.CID(), "err", err)
				continue
			}
			progress = true
		}
		if !progress || len(deferred) == 0 {
			break
		}
		remaining = deferred
	}
	return j.log.Len() - before, nil
}

// TreeState returns a copy of the cached reduction.
func (j *Replicated) TreeState() *TreeState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.tree.Clone()
}

// Commitment returns the current tree commitment.
func (j *Replicated) Commitment() (identifiers.Hash32, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.tree.Commitment()
}

// CurrentEpoch returns the tree's current epoch.
func (j *Replicated) CurrentEpoch() identifiers.Epoch {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.tree.CurrentEpoch()
}

// Digest returns the op-log digest for anti-entropy comparison.
func (j *Replicated) Digest() identifiers.Hash32 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.log.Digest()
}

// Cids returns the sorted CIDs of the local log.
func (j *Replicated) Cids() []identifiers.Hash32 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.log.Cids()
}

// GetOp serves a single op by CID, for peers reconciling against us.
func (j *Replicated) GetOp(cid identifiers.Hash32) (AttestedOp, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.log.Get(cid)
}

// MissingCids returns which of the given CIDs the local log lacks.
func (j *Replicated) MissingCids(cids []identifiers.Hash32) []identifiers.Hash32 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.log.Missing(cids)
}

// SeedBudgetFact journals a flow-budget fact for (context, peer).
func (j *Replicated) SeedBudgetFact(ctx identifiers.ContextId, peer identifiers.DeviceId, fact flow.Budget) {
	j.mu.Lock()
	defer j.mu.Unlock()
	key := budgetKey{ctx: ctx, peer: peer}
	j.budgets[key] = append(j.budgets[key], fact)
}

// UpdateBudget records the post-charge budget as the latest fact, compacting
// earlier facts it supersedes (same epoch, lower or equal spend, equal or
// higher limit).
func (j *Replicated) UpdateBudget(ctx identifiers.ContextId, peer identifiers.DeviceId, b flow.Budget) {
	j.mu.Lock()
	defer j.mu.Unlock()
	key := budgetKey{ctx: ctx, peer: peer}
	kept := j.budgets[key][:0]
	for _, f := range j.budgets[key] {
		if f.Epoch == b.Epoch && f.Spent <= b.Spent && f.Limit >= b.Limit {
			continue
		}
		kept = append(kept, f)
	}
	j.budgets[key] = append(kept, b)
}

// BudgetFacts returns a copy of the journaled facts for (context, peer).
func (j *Replicated) BudgetFacts(ctx identifiers.ContextId, peer identifiers.DeviceId) []flow.Budget {
	j.mu.RLock()
	defer j.mu.RUnlock()
	facts := j.budgets[budgetKey{ctx: ctx, peer: peer}]
	return append([]flow.Budget(nil), facts...)
}

// DeterministicBudget computes the canonical budget for (context, peer):
// the meet of every journaled fact, rotated to the current epoch. Every
// device holding the same facts derives the same cap.
func (j *Replicated) DeterministicBudget(ctx identifiers.ContextId, peer identifiers.DeviceId, current identifiers.Epoch) flow.Budget {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return flow.MeetAll(j.budgets[budgetKey{ctx: ctx, peer: peer}], current)
}

// Stats summarizes the journal for telemetry.
type Stats struct {
	Ops       int                `json:"ops"`
	Pending   int                `json:"pending"`
	Proposals int                `json:"proposals"`
	Epoch     identifiers.Epoch  `json:"epoch"`
	Digest    identifiers.Hash32 `json:"digest"`
}

// Statistics returns a snapshot of journal counters.
func (j *Replicated) Statistics() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	pending := 0
	for _, ops := range j.pending {
		pending += len(ops)
	}
	return Stats{
		Ops:       j.log.Len(),
		Pending:   pending,
		Proposals: len(j.proposals),
		Epoch:     j.tree.CurrentEpoch(),
		Digest:    j.log.Digest(),
	}
}
