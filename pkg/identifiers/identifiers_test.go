package identifiers_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

func TestDeviceIdRoundTrip(t *testing.T) {
	d := identifiers.NewDeviceId()

	back, err := identifiers.DeviceIdFromBytes(d.Bytes())
	require.NoError(t, err)
	assert.Equal(t, d, back)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	var decoded identifiers.DeviceId
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, d, decoded)
}

func TestDeviceIdFromSeedIsStable(t *testing.T) {
	a := identifiers.DeviceIdFromSeed(42, 0)
	b := identifiers.DeviceIdFromSeed(42, 0)
	c := identifiers.DeviceIdFromSeed(42, 1)
	d := identifiers.DeviceIdFromSeed(43, 0)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestHash32RoundTrip(t *testing.T) {
	h := identifiers.Hash32FromBytes([]byte{1, 2, 3, 4})
	raw, err := json.Marshal(h)
	require.NoError(t, err)

	var back identifiers.Hash32
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, h.Equal(back))
}

func TestHash32RejectsBadLength(t *testing.T) {
	var h identifiers.Hash32
	err := json.Unmarshal([]byte(`"abcd"`), &h)
	assert.Error(t, err)
}

func TestZeroHash(t *testing.T) {
	assert.True(t, identifiers.ZeroHash.IsZero())
	assert.False(t, identifiers.Hash32FromBytes([]byte{1}).IsZero())
}

func TestEpochMax(t *testing.T) {
	assert.Equal(t, identifiers.Epoch(7), identifiers.Epoch(3).Max(7))
	assert.Equal(t, identifiers.Epoch(7), identifiers.Epoch(7).Max(3))
}
