package flow

import (
	"fmt"

	"github.com/hxrts/aura-sub001/pkg/canonical"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// Receipt is the signed record of a single authorized send. Receipts emitted
// by one source form a hash chain through PrevReceiptHash and are auditable
// out-of-band.
type Receipt struct {
	Ctx             identifiers.ContextId `json:"ctx"`
	Src             identifiers.DeviceId  `json:"src"`
	Dst             identifiers.DeviceId  `json:"dst"`
	Epoch           identifiers.Epoch     `json:"epoch"`
	Cost            uint32                `json:"cost"`
	Nonce           uint64                `json:"nonce"`
	PrevReceiptHash identifiers.Hash32    `json:"prev_receipt_hash"`
	Sig             identifiers.Hash32    `json:"sig"`
}

// SignatureMaterial is the canonical 6-tuple every peer can independently
// reconstruct to verify Sig. Field order is fixed.
func SignatureMaterial(ctx identifiers.ContextId, src, dst identifiers.DeviceId, epoch identifiers.Epoch, cost uint32, nonce uint64) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d|%d", ctx, src, dst, epoch.Value(), cost, nonce)
}

// NewReceipt assembles a receipt, computing Sig from the signature material.
func NewReceipt(ctx identifiers.ContextId, src, dst identifiers.DeviceId, epoch identifiers.Epoch, cost uint32, nonce uint64, prev identifiers.Hash32) Receipt {
	material := SignatureMaterial(ctx, src, dst, epoch, cost, nonce)
	return Receipt{
		Ctx:             ctx,
		Src:             src,
		Dst:             dst,
		Epoch:           epoch,
		Cost:            cost,
		Nonce:           nonce,
		PrevReceiptHash: prev,
		Sig:             canonical.HashBytes([]byte(material)),
	}
}

// VerifySig recomputes the signature material and checks it against Sig.
func (r Receipt) VerifySig() bool {
	material := SignatureMaterial(r.Ctx, r.Src, r.Dst, r.Epoch, r.Cost, r.Nonce)
	return canonical.HashBytes([]byte(material)).Equal(r.Sig)
}

// ContentHash is the canonical hash of the whole receipt; it becomes the
// next receipt's PrevReceiptHash.
func (r Receipt) ContentHash() (identifiers.Hash32, error) {
	return canonical.Hash(r)
}
