// Package store persists the receipt chain durably so the hash chain can
// be audited out-of-band and survives process restarts. Production uses
// SQLite; deterministic modes use the in-memory store.
package store

import (
	"context"

	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// ReceiptStore records emitted receipts in chain order.
type ReceiptStore interface {
	// Append stores a receipt; the caller guarantees chain order.
	Append(ctx context.Context, receipt flow.Receipt) error

	// Head returns the content hash of the newest receipt, or the zero
	// hash for an empty chain.
	Head(ctx context.Context) (identifiers.Hash32, error)

	// List returns up to limit receipts, newest first.
	List(ctx context.Context, limit int) ([]flow.Receipt, error)

	// VerifyChain replays the stored chain and reports whether every
	// receipt's prev hash matches its predecessor's content hash and every
	// receipt's signature verifies.
	VerifyChain(ctx context.Context) (bool, error)
}

// verifyChain checks prev-hash linkage over receipts in chain order.
func verifyChain(receipts []flow.Receipt) (bool, error) {
	prev := identifiers.ZeroHash
	for _, r := range receipts {
		if !r.PrevReceiptHash.Equal(prev) {
			return false, nil
		}
		if !r.VerifySig() {
			return false, nil
		}
		h, err := r.ContentHash()
		if err != nil {
			return false, err
		}
		prev = h
	}
	return true, nil
}
