package system

import "github.com/hxrts/aura-sub001/pkg/identifiers"

// DecodeEnvelopeForTest exposes envelope verification to tests so replay
// and mismatch paths can be exercised without a live transport loop.
func (s *EffectSystem) DecodeEnvelopeForTest(raw []byte, src identifiers.DeviceId) ([]byte, error) {
	return s.decodeEnvelope(raw, src)
}
