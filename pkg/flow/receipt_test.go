package flow_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

func TestReceiptSigVerifies(t *testing.T) {
	src := identifiers.NewDeviceId()
	dst := identifiers.NewDeviceId()

	r := flow.NewReceipt("chat:a-b", src, dst, 1, 3, 7, identifiers.ZeroHash)
	assert.True(t, r.VerifySig())

	tampered := r
	tampered.Cost = 4
	assert.False(t, tampered.VerifySig())
}

func TestReceiptRoundTrip(t *testing.T) {
	src := identifiers.NewDeviceId()
	dst := identifiers.NewDeviceId()
	r := flow.NewReceipt("ctx", src, dst, 2, 1, 9, identifiers.ZeroHash)

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var back flow.Receipt
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, r, back)
	assert.True(t, back.VerifySig())
}

func TestContentHashChangesWithNonce(t *testing.T) {
	src := identifiers.NewDeviceId()
	dst := identifiers.NewDeviceId()

	r1 := flow.NewReceipt("ctx", src, dst, 0, 1, 1, identifiers.ZeroHash)
	r2 := flow.NewReceipt("ctx", src, dst, 0, 1, 2, identifiers.ZeroHash)

	h1, err := r1.ContentHash()
	require.NoError(t, err)
	h2, err := r2.ContentHash()
	require.NoError(t, err)
	assert.False(t, h1.Equal(h2))
}
