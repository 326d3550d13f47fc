package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub001/pkg/canonical"
)

func TestEncodeSortsKeys(t *testing.T) {
	type sample struct {
		Zebra int `json:"zebra"`
		Alpha int `json:"alpha"`
	}
	out, err := canonical.Encode(sample{Zebra: 1, Alpha: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"zebra":1}`, string(out))
}

func TestEncodeNoHTMLEscaping(t *testing.T) {
	out, err := canonical.Encode(map[string]string{"k": "<&>"})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"<&>"}`, string(out))
}

func TestHashIsStable(t *testing.T) {
	v := map[string]interface{}{"b": 2, "a": 1}
	h1, err := canonical.Hash(v)
	require.NoError(t, err)
	h2, err := canonical.Hash(map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.True(t, h1.Equal(h2))
}

func TestHashDistinguishesValues(t *testing.T) {
	h1, err := canonical.Hash(map[string]int{"a": 1})
	require.NoError(t, err)
	h2, err := canonical.Hash(map[string]int{"a": 2})
	require.NoError(t, err)
	assert.False(t, h1.Equal(h2))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := canonical.Encode(make(chan int))
	assert.Error(t, err)
}
