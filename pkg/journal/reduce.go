package journal

import (
	"sort"

	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// DefaultRootPolicy is the genesis policy a reduction starts from before any
// ChangePolicy op establishes one.
var DefaultRootPolicy = Policy{Threshold: 1, Total: 1}

// Reduce deterministically folds an op log into a tree state. The function
// is total and pure: malformed ops are skipped individually, missing parents
// do not block (append-time validation queues those), and any two calls over
// the same op set yield byte-identical states.
//
// The walk is a topological order of the DAG with ties broken by CID, so
// parent-before-child holds and the linearization is canonical. Snapshot ops
// act as cuts: the latest snapshot (max epoch, CID tie-break) seeds the tree
// and all ancestors of its cut are ignored.
func Reduce(log *OpLog) *TreeState {
	base, ignored := snapshotBase(log)

	tree := base
	for _, op := range topoOrder(log, ignored) {
		applyOp(tree, op)
	}
	return tree
}

// snapshotBase finds the governing snapshot, if any, and returns the tree it
// seeds plus the set of op CIDs the cut supersedes.
func snapshotBase(log *OpLog) (*TreeState, map[identifiers.Hash32]bool) {
	var best *AttestedOp
	var bestPayload SnapshotPayload
	for _, cid := range log.Cids() {
		op, _ := log.Get(cid)
		if op.Kind != OpSnapshot {
			continue
		}
		var payload SnapshotPayload
		if err := DecodePayload(op.Payload, &payload); err != nil {
			continue
		}
		if best == nil || payload.Epoch > bestPayload.Epoch ||
			(payload.Epoch == bestPayload.Epoch && op.CID().String() > best.CID().String()) {
			o := op
			best = &o
			bestPayload = payload
		}
	}

	if best == nil {
		return NewTreeState(DefaultRootPolicy), nil
	}

	tree := NewTreeState(bestPayload.RootPolicy)
	tree.rotateEpoch(bestPayload.Epoch)
	for _, leaf := range bestPayload.Membership {
		_ = tree.addLeaf(leaf, RootIndex)
	}

	ignored := log.ancestors(bestPayload.Cut)
	ignored[best.CID()] = true
	return tree, ignored
}

// topoOrder returns the ops outside the ignored set in parent-before-child
// order with CID tie-breaks.
func topoOrder(log *OpLog, ignored map[identifiers.Hash32]bool) []AttestedOp {
	pending := make(map[identifiers.Hash32]int)
	dependents := make(map[identifiers.Hash32][]identifiers.Hash32)

	include := func(cid identifiers.Hash32) bool {
		return log.Contains(cid) && !ignored[cid]
	}

	var ready []identifiers.Hash32
	for _, cid := range log.Cids() {
		if !include(cid) {
			continue
		}
		op, _ := log.Get(cid)
		count := 0
		for _, parent := range op.Parents {
			if include(parent) {
				count++
				dependents[parent] = append(dependents[parent], cid)
			}
		}
		pending[cid] = count
		if count == 0 {
			ready = append(ready, cid)
		}
	}

	ordered := make([]AttestedOp, 0, len(pending))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return ready[i].String() < ready[j].String()
		})
		cid := ready[0]
		ready = ready[1:]
		op, _ := log.Get(cid)
		ordered = append(ordered, op)
		for _, dep := range dependents[cid] {
			pending[dep]--
			if pending[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return ordered
}

// applyOp folds one op into the tree. Invalid ops are rejected alone; the
// reduction carries on.
func applyOp(tree *TreeState, op AttestedOp) {
	switch op.Kind {
	case OpAddLeaf:
		var p AddLeafPayload
		if DecodePayload(op.Payload, &p) != nil {
			return
		}
		_ = tree.addLeaf(p.Leaf, p.Under)
	case OpRemoveLeaf:
		var p RemoveLeafPayload
		if DecodePayload(op.Payload, &p) != nil {
			return
		}
		_ = tree.removeLeaf(p.Device)
	case OpChangePolicy:
		var p ChangePolicyPayload
		if DecodePayload(op.Payload, &p) != nil {
			return
		}
		_ = tree.changePolicy(p.Node, p.Policy)
	case OpRotateEpoch:
		var p RotateEpochPayload
		if DecodePayload(op.Payload, &p) != nil {
			return
		}
		tree.rotateEpoch(p.NewEpoch)
	case OpSnapshot:
		// Snapshots are consumed by snapshotBase; a non-governing snapshot
		// contributes nothing beyond its epoch.
		var p SnapshotPayload
		if DecodePayload(op.Payload, &p) != nil {
			return
		}
		tree.rotateEpoch(p.Epoch)
	}
}
