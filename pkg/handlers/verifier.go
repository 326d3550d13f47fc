package handlers

import (
	"context"

	"github.com/hxrts/aura-sub001/pkg/effects"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

// CryptoAggregateVerifier checks attested-op signatures through the crypto
// effect, against the root policy of the tree state reachable from the op's
// parents. While the tree has no group key yet (bootstrap), ops are
// accepted so an account can form.
type CryptoAggregateVerifier struct {
	crypto effects.Crypto
}

// NewCryptoAggregateVerifier wraps a crypto handler.
func NewCryptoAggregateVerifier(crypto effects.Crypto) *CryptoAggregateVerifier {
	return &CryptoAggregateVerifier{crypto: crypto}
}

func (v *CryptoAggregateVerifier) VerifyAggregateSig(ctx context.Context, op *journal.AttestedOp, state *journal.TreeState) (bool, error) {
	policy := state.RootPolicy()
	if len(policy.GroupPublicKey) == 0 {
		return true, nil
	}
	message, err := op.SignatureMessage()
	if err != nil {
		return false, err
	}
	return v.crypto.VerifyAggregate(ctx, message, op.AggregateSig, policy.GroupPublicKey)
}
