package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub001/pkg/effects"
	"github.com/hxrts/aura-sub001/pkg/observability"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	ctx := context.Background()
	p, err := observability.NewProvider(ctx, observability.DefaultConfig())
	require.NoError(t, err)

	// Safe to observe and span without exporters.
	p.ObserveDispatch(effects.KindCrypto, "hash", nil)
	spanCtx, span := p.StartSpan(ctx, "test")
	assert.NotNil(t, spanCtx)
	assert.NotNil(t, span)

	require.NoError(t, p.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	config := observability.DefaultConfig()
	assert.False(t, config.Enabled)
	assert.Equal(t, "aura-node", config.ServiceName)
	assert.Equal(t, 1.0, config.SampleRate)
}
