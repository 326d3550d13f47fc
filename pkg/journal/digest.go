package journal

import (
	"crypto/sha256"

	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// Digest is a compact summary of an op log: the Merkle root over the sorted
// CIDs. Two peers with equal digests hold the same op set and can skip
// reconciliation.
func (l *OpLog) Digest() identifiers.Hash32 {
	cids := l.Cids()
	if len(cids) == 0 {
		return identifiers.ZeroHash
	}

	level := make([][32]byte, len(cids))
	for i, cid := range cids {
		level[i] = sha256.Sum256(cid.Bytes())
	}

	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// Odd node is promoted unchanged.
				next = append(next, level[i])
				continue
			}
			joined := append(level[i][:], level[i+1][:]...)
			next = append(next, sha256.Sum256(joined))
		}
		level = next
	}
	return identifiers.Hash32(level[0])
}
