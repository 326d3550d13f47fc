// Package journal implements the replicated, content-addressed operation log
// and its deterministic reduction to a ratchet-tree state. Two replicas that
// hold the same set of attested ops produce byte-identical tree states and
// commitments, regardless of the order ops arrived.
package journal

import (
	"encoding/json"
	"sort"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/canonical"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// OpKind enumerates the journal operation kinds.
type OpKind string

const (
	OpAddLeaf      OpKind = "add_leaf"
	OpRemoveLeaf   OpKind = "remove_leaf"
	OpChangePolicy OpKind = "change_policy"
	OpRotateEpoch  OpKind = "rotate_epoch"
	OpSnapshot     OpKind = "snapshot"
)

func (k OpKind) valid() bool {
	switch k {
	case OpAddLeaf, OpRemoveLeaf, OpChangePolicy, OpRotateEpoch, OpSnapshot:
		return true
	}
	return false
}

// AttestedOp is a single journal operation: a kind, the parent ops it
// extends (a DAG), a kind-specific canonical payload, and a threshold
// signature by the policy valid in the parent state. The CID is
// content-addressed over the first three fields and never transmitted; it is
// always recomputed on receipt.
type AttestedOp struct {
	Kind         OpKind               `json:"kind"`
	Parents      []identifiers.Hash32 `json:"parents"`
	Payload      []byte               `json:"payload"`
	AggregateSig []byte               `json:"aggregate_sig"`

	cid identifiers.Hash32
}

// opWire is the on-the-wire form: kind, sorted parent cids, payload,
// aggregate signature.
type opWire struct {
	Kind         OpKind               `json:"kind"`
	Parents      []identifiers.Hash32 `json:"parents"`
	Payload      []byte               `json:"payload"`
	AggregateSig []byte               `json:"aggregate_sig"`
}

// cidMaterial covers exactly the content-addressed fields.
type cidMaterial struct {
	Kind    OpKind               `json:"kind"`
	Parents []identifiers.Hash32 `json:"parents"`
	Payload []byte               `json:"payload"`
}

// NewAttestedOp assembles an op, sorting parents into canonical order and
// computing the CID.
func NewAttestedOp(kind OpKind, parents []identifiers.Hash32, payload, aggregateSig []byte) (AttestedOp, error) {
	if !kind.valid() {
		return AttestedOp{}, aerr.Serialization("invalid op kind %q", kind)
	}
	sorted := sortParents(parents)
	op := AttestedOp{
		Kind:         kind,
		Parents:      sorted,
		Payload:      payload,
		AggregateSig: aggregateSig,
	}
	cid, err := canonical.Hash(cidMaterial{Kind: kind, Parents: sorted, Payload: payload})
	if err != nil {
		return AttestedOp{}, aerr.Wrap(aerr.CodeSerialization, err, "compute op cid")
	}
	op.cid = cid
	return op, nil
}

// CID returns the content ID, computing it on first use for decoded ops.
func (op *AttestedOp) CID() identifiers.Hash32 {
	if op.cid.IsZero() {
		cid, err := canonical.Hash(cidMaterial{Kind: op.Kind, Parents: op.Parents, Payload: op.Payload})
		if err == nil {
			op.cid = cid
		}
	}
	return op.cid
}

// SignatureMessage is the byte string the aggregate signature covers: the
// canonical encoding of the content-addressed fields.
func (op *AttestedOp) SignatureMessage() ([]byte, error) {
	return canonical.Encode(cidMaterial{Kind: op.Kind, Parents: op.Parents, Payload: op.Payload})
}

// Encode produces the canonical wire encoding.
func (op *AttestedOp) Encode() ([]byte, error) {
	b, err := canonical.Encode(opWire{
		Kind:         op.Kind,
		Parents:      op.Parents,
		Payload:      op.Payload,
		AggregateSig: op.AggregateSig,
	})
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeSerialization, err, "encode attested op")
	}
	return b, nil
}

// DecodeAttestedOp parses a wire encoding, recomputing the CID.
func DecodeAttestedOp(raw []byte) (AttestedOp, error) {
	var w opWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return AttestedOp{}, aerr.Wrap(aerr.CodeSerialization, err, "decode attested op")
	}
	return NewAttestedOp(w.Kind, w.Parents, w.Payload, w.AggregateSig)
}

func sortParents(parents []identifiers.Hash32) []identifiers.Hash32 {
	sorted := make([]identifiers.Hash32, len(parents))
	copy(sorted, parents)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}

// Payload types, canonically encoded into AttestedOp.Payload.

// AddLeafPayload attaches a device leaf under an interior node.
type AddLeafPayload struct {
	Leaf  LeafNode  `json:"leaf"`
	Under NodeIndex `json:"under"`
}

// RemoveLeafPayload detaches a device leaf.
type RemoveLeafPayload struct {
	Device identifiers.DeviceId `json:"device"`
	Reason uint8                `json:"reason"`
}

// ChangePolicyPayload replaces the threshold policy of an interior node.
type ChangePolicyPayload struct {
	Node   NodeIndex `json:"node"`
	Policy Policy    `json:"policy"`
}

// RotateEpochPayload advances the account epoch.
type RotateEpochPayload struct {
	NewEpoch identifiers.Epoch `json:"new_epoch"`
	Affected []NodeIndex       `json:"affected"`
}

// SnapshotPayload summarizes history up to a cut: ops that are ancestors of
// the cut are pruned once the snapshot is applied.
type SnapshotPayload struct {
	Cut            []identifiers.Hash32 `json:"cut"`
	TreeCommitment identifiers.Hash32   `json:"tree_commitment"`
	Epoch          identifiers.Epoch    `json:"epoch"`
	Membership     []LeafNode           `json:"membership"`
	RootPolicy     Policy               `json:"root_policy"`
}

// EncodePayload canonically encodes any payload type.
func EncodePayload(v interface{}) ([]byte, error) {
	b, err := canonical.Encode(v)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeSerialization, err, "encode op payload")
	}
	return b, nil
}

// DecodePayload decodes a payload into dst.
func DecodePayload(raw []byte, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return aerr.Wrap(aerr.CodeSerialization, err, "decode op payload")
	}
	return nil
}
