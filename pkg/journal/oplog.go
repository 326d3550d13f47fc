package journal

import (
	"sort"

	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// OpLog is the multiset of attested ops received so far, indexed by CID.
// Merge is set-union; ops superseded by an applied snapshot are pruned.
type OpLog struct {
	ops map[identifiers.Hash32]AttestedOp
}

// NewOpLog returns an empty log.
func NewOpLog() *OpLog {
	return &OpLog{ops: make(map[identifiers.Hash32]AttestedOp)}
}

// Insert adds an op. Returns false if the op was already present.
func (l *OpLog) Insert(op AttestedOp) bool {
	cid := op.CID()
	if _, ok := l.ops[cid]; ok {
		return false
	}
	l.ops[cid] = op
	return true
}

// Contains reports whether the log holds the given CID.
func (l *OpLog) Contains(cid identifiers.Hash32) bool {
	_, ok := l.ops[cid]
	return ok
}

// Get returns the op with the given CID.
func (l *OpLog) Get(cid identifiers.Hash32) (AttestedOp, bool) {
	op, ok := l.ops[cid]
	return op, ok
}

// Len returns the number of ops in the log.
func (l *OpLog) Len() int { return len(l.ops) }

// Cids returns all CIDs in canonical (lexicographic) order.
func (l *OpLog) Cids() []identifiers.Hash32 {
	cids := make([]identifiers.Hash32, 0, len(l.ops))
	for cid := range l.ops {
		cids = append(cids, cid)
	}
	sort.Slice(cids, func(i, j int) bool {
		return cids[i].String() < cids[j].String()
	})
	return cids
}

// Ops returns the ops keyed by CID. The map is the log's own; callers must
// not mutate it.
func (l *OpLog) Ops() map[identifiers.Hash32]AttestedOp { return l.ops }

// Missing returns, from the given CIDs, those not present locally.
func (l *OpLog) Missing(cids []identifiers.Hash32) []identifiers.Hash32 {
	var missing []identifiers.Hash32
	for _, cid := range cids {
		if !l.Contains(cid) {
			missing = append(missing, cid)
		}
	}
	return missing
}

// Union merges the other log's ops into this one, returning how many were
// new.
func (l *OpLog) Union(other *OpLog) int {
	added := 0
	for _, op := range other.ops {
		if l.Insert(op) {
			added++
		}
	}
	return added
}

// ancestors returns the transitive parent closure of the given CIDs,
// including the CIDs themselves, restricted to ops present in the log.
func (l *OpLog) ancestors(cids []identifiers.Hash32) map[identifiers.Hash32]bool {
	seen := make(map[identifiers.Hash32]bool)
	stack := append([]identifiers.Hash32(nil), cids...)
	for len(stack) > 0 {
		cid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cid] {
			continue
		}
		seen[cid] = true
		if op, ok := l.ops[cid]; ok {
			stack = append(stack, op.Parents...)
		}
	}
	return seen
}

// PruneSnapshot removes every op that is an ancestor of the snapshot's cut.
// The snapshot op itself stays: it is the new base of the log.
func (l *OpLog) PruneSnapshot(snapshot *AttestedOp) (int, error) {
	var payload SnapshotPayload
	if err := DecodePayload(snapshot.Payload, &payload); err != nil {
		return 0, err
	}
	doomed := l.ancestors(payload.Cut)
	delete(doomed, snapshot.CID())
	pruned := 0
	for cid := range doomed {
		if _, ok := l.ops[cid]; ok {
			delete(l.ops, cid)
			pruned++
		}
	}
	return pruned, nil
}

// Clone returns a shallow copy of the log (ops are immutable values).
func (l *OpLog) Clone() *OpLog {
	c := NewOpLog()
	for cid, op := range l.ops {
		c.ops[cid] = op
	}
	return c
}
