package journal

import (
	"context"
	"sort"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/canonical"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// ProposalId identifies a snapshot proposal: the canonical hash of its cut
// and epoch.
type ProposalId = identifiers.Hash32

// Partial is one device's threshold-signature share over a proposal.
type Partial struct {
	Device identifiers.DeviceId `json:"device"`
	Share  []byte               `json:"share"`
}

// snapshotProposal tracks approvals toward the finalization threshold.
//
// Quorum rule: approvals count only from devices that were leaves of the
// tree at the proposal's epoch; an approval arriving after a later epoch
// rotation is rejected. The threshold is the root policy threshold at
// proposal time.
type snapshotProposal struct {
	cut        []identifiers.Hash32
	epoch      identifiers.Epoch
	membership map[identifiers.DeviceId]bool
	threshold  uint32
	payload    SnapshotPayload
	approvals  map[identifiers.DeviceId]Partial
}

// ProposeSnapshot emits a candidate cut at the current epoch and returns its
// proposal ID.
func (j *Replicated) ProposeSnapshot(cut []identifiers.Hash32) (ProposalId, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if missing := j.log.Missing(cut); len(missing) > 0 {
		return ProposalId{}, aerr.Storage("snapshot cut references %d unknown op(s)", len(missing))
	}

	epoch := j.tree.CurrentEpoch()
	commitment, err := j.tree.Commitment()
	if err != nil {
		return ProposalId{}, err
	}

	id, err := canonical.Hash(struct {
		Cut   []identifiers.Hash32 `json:"cut"`
		Epoch identifiers.Epoch    `json:"epoch"`
	}{Cut: cut, Epoch: epoch})
	if err != nil {
		return ProposalId{}, aerr.Wrap(aerr.CodeSerialization, err, "proposal id")
	}
	if _, ok := j.proposals[id]; ok {
		return id, nil
	}

	membership := make(map[identifiers.DeviceId]bool)
	for _, leaf := range j.tree.Membership() {
		membership[leaf.Device] = true
	}

	j.proposals[id] = &snapshotProposal{
		cut:        append([]identifiers.Hash32(nil), cut...),
		epoch:      epoch,
		membership: membership,
		threshold:  j.tree.RootPolicy().Threshold,
		payload: SnapshotPayload{
			Cut:            append([]identifiers.Hash32(nil), cut...),
			TreeCommitment: commitment,
			Epoch:          epoch,
			Membership:     j.tree.Membership(),
			RootPolicy:     j.tree.RootPolicy(),
		},
		approvals: make(map[identifiers.DeviceId]Partial),
	}
	return id, nil
}

// ApproveSnapshot records a partial signature from one device. Approvals
// from devices outside the proposal-epoch membership, or arriving after the
// epoch has rotated past the proposal, are rejected.
func (j *Replicated) ApproveSnapshot(id ProposalId, partial Partial) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	p, ok := j.proposals[id]
	if !ok {
		return 0, aerr.Storage("unknown snapshot proposal %s", id)
	}
	if j.tree.CurrentEpoch() > p.epoch {
		return 0, aerr.PermissionDenied("snapshot proposal %s expired at epoch rotation", id)
	}
	if !p.membership[partial.Device] {
		return 0, aerr.PermissionDenied("device %s is not in the proposal membership", partial.Device)
	}
	p.approvals[partial.Device] = partial
	return len(p.approvals), nil
}

// FinalizeSnapshot emits the Snapshot op once approvals reach the
// threshold. The aggregate signature is the canonical hash of the gathered
// shares; real deployments substitute the threshold scheme's aggregation.
func (j *Replicated) FinalizeSnapshot(ctx context.Context, id ProposalId) (AttestedOp, error) {
	j.mu.Lock()
	p, ok := j.proposals[id]
	if !ok {
		j.mu.Unlock()
		return AttestedOp{}, aerr.Storage("unknown snapshot proposal %s", id)
	}
	if uint32(len(p.approvals)) < p.threshold {
		n := len(p.approvals)
		threshold := p.threshold
		j.mu.Unlock()
		return AttestedOp{}, aerr.PermissionDenied("snapshot proposal %s has %d of %d approvals", id, n, threshold)
	}

	payload, err := EncodePayload(p.payload)
	if err != nil {
		j.mu.Unlock()
		return AttestedOp{}, err
	}

	shares := make([]Partial, 0, len(p.approvals))
	for _, device := range sortedDevices(p.approvals) {
		shares = append(shares, p.approvals[device])
	}
	aggregate, err := canonical.Hash(shares)
	if err != nil {
		j.mu.Unlock()
		return AttestedOp{}, aerr.Wrap(aerr.CodeSerialization, err, "aggregate snapshot shares")
	}

	op, err := NewAttestedOp(OpSnapshot, p.cut, payload, aggregate.Bytes())
	if err != nil {
		j.mu.Unlock()
		return AttestedOp{}, err
	}
	delete(j.proposals, id)
	j.mu.Unlock()

	if _, err := j.AppendAttestedOp(ctx, op); err != nil {
		return AttestedOp{}, err
	}
	return op, nil
}

// ApplySnapshot prunes every op superseded by the snapshot's cut.
func (j *Replicated) ApplySnapshot(snapshot *AttestedOp) (int, error) {
	if snapshot.Kind != OpSnapshot {
		return 0, aerr.Internal("apply snapshot: op %s is %s", snapshot.CID(), snapshot.Kind)
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.log.Contains(snapshot.CID()) {
		return 0, aerr.Storage("snapshot %s not in local log", snapshot.CID())
	}
	pruned, err := j.log.PruneSnapshot(snapshot)
	if err != nil {
		return 0, err
	}
	j.tree = Reduce(j.log)
	return pruned, nil
}

func sortedDevices(approvals map[identifiers.DeviceId]Partial) []identifiers.DeviceId {
	devices := make([]identifiers.DeviceId, 0, len(approvals))
	for d := range approvals {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].String() < devices[j].String()
	})
	return devices
}
