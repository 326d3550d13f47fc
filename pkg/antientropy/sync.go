// Package antientropy reconciles op logs between peers: digest-based pull,
// push-on-append, and merge of remote ops. No causal delivery is assumed on
// the network; the journal's order-insensitive reducer compensates, so
// peers may interleave push and pull freely.
package antientropy

import (
	"context"
	"log/slog"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

// Peer is a remote replica reachable for reconciliation. Transport-level
// concerns live behind the implementation; QUIC/TCP peers are external
// collaborators, and LocalPeer adapts an in-process journal for tests and
// simulation.
type Peer interface {
	DeviceId() identifiers.DeviceId
	OplogDigest(ctx context.Context) (identifiers.Hash32, error)
	OplogCids(ctx context.Context) ([]identifiers.Hash32, error)
	RequestOp(ctx context.Context, cid identifiers.Hash32) (*journal.AttestedOp, error)
	OfferOp(ctx context.Context, op journal.AttestedOp) error
}

// Syncer drives reconciliation for one local journal.
type Syncer struct {
	journal *journal.Replicated
	logger  *slog.Logger
}

// NewSyncer wraps a journal.
func NewSyncer(j *journal.Replicated, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default().With("component", "antientropy")
	}
	return &Syncer{journal: j, logger: logger}
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Peer         identifiers.DeviceId `json:"peer"`
	DigestsEqual bool                 `json:"digests_equal"`
	Fetched      int                  `json:"fetched"`
	Accepted     int                  `json:"accepted"`
}

// SyncWithPeer pulls the ops we lack:
//
//  1. Exchange digests; equal digests end the pass.
//  2. Exchange CID lists and compute what is missing locally.
//  3. Fetch each missing op individually; a failed fetch is skipped, the
//     next pass will retry.
//  4. Merge the fetched ops.
func (s *Syncer) SyncWithPeer(ctx context.Context, peer Peer) (SyncResult, error) {
	result := SyncResult{Peer: peer.DeviceId()}

	remoteDigest, err := peer.OplogDigest(ctx)
	if err != nil {
		return result, aerr.Wrap(aerr.CodeNetwork, err, "fetch digest from %s", peer.DeviceId())
	}
	if remoteDigest.Equal(s.journal.Digest()) {
		result.DigestsEqual = true
		return result, nil
	}

	remoteCids, err := peer.OplogCids(ctx)
	if err != nil {
		return result, aerr.Wrap(aerr.CodeNetwork, err, "fetch cid list from %s", peer.DeviceId())
	}

	var fetched []journal.AttestedOp
	for _, cid := range s.journal.MissingCids(remoteCids) {
		op, err := peer.RequestOp(ctx, cid)
		if err != nil {
			s.logger.Debug("fetch failed, will retry next pass", "cid", cid, "err", err)
			continue
		}
		if op == nil {
			continue
		}
		fetched = append(fetched, *op)
	}
	result.Fetched = len(fetched)

	accepted, err := s.journal.MergeRemoteOps(ctx, fetched)
	if err != nil {
		return result, err
	}
	result.Accepted = accepted
	return result, nil
}

// PushOpToPeers offers a newly appended op to each peer, best-effort. Loss
// is tolerated: the next pull reconciles.
func (s *Syncer) PushOpToPeers(ctx context.Context, op journal.AttestedOp, peers []Peer) {
	for _, peer := range peers {
		if err := peer.OfferOp(ctx, op); err != nil {
			s.logger.Debug("push failed", "peer", peer.DeviceId(), "cid", op.CID(), "err", err)
		}
	}
}

// LocalPeer adapts an in-process journal as a Peer.
type LocalPeer struct {
	device  identifiers.DeviceId
	journal *journal.Replicated
}

// NewLocalPeer wraps a journal under a device identity.
func NewLocalPeer(device identifiers.DeviceId, j *journal.Replicated) *LocalPeer {
	return &LocalPeer{device: device, journal: j}
}

func (p *LocalPeer) DeviceId() identifiers.DeviceId { return p.device }

func (p *LocalPeer) OplogDigest(ctx context.Context) (identifiers.Hash32, error) {
	return p.journal.Digest(), nil
}

func (p *LocalPeer) OplogCids(ctx context.Context) ([]identifiers.Hash32, error) {
	return p.journal.Cids(), nil
}

func (p *LocalPeer) RequestOp(ctx context.Context, cid identifiers.Hash32) (*journal.AttestedOp, error) {
	op, ok := p.journal.GetOp(cid)
	if !ok {
		return nil, nil
	}
	return &op, nil
}

func (p *LocalPeer) OfferOp(ctx context.Context, op journal.AttestedOp) error {
	_, err := p.journal.MergeRemoteOps(ctx, []journal.AttestedOp{op})
	return err
}
