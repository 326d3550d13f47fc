package system

import (
	"context"
	"encoding/json"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/canonical"
	"github.com/hxrts/aura-sub001/pkg/effects"
	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// transportEnvelope wraps every outbound message: the flow receipt that
// authorized the send plus the opaque payload. Receipt fields are
// canonically encoded so any peer can independently reconstruct the
// signature.
type transportEnvelope struct {
	Receipt flow.Receipt `json:"receipt"`
	Payload []byte       `json:"payload"`
}

func encodeEnvelope(receipt flow.Receipt, payload []byte) ([]byte, error) {
	raw, err := canonical.Encode(transportEnvelope{Receipt: receipt, Payload: payload})
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeSerialization, err, "encode transport envelope")
	}
	return raw, nil
}

// SendToPeer authorizes a send against the (context, peer) flow budget,
// wraps the payload in an envelope carrying the receipt, and hands it to
// the network handler. A pending flow hint on the context is consumed;
// without one the send charges cost 1 against the account context.
func (s *EffectSystem) SendToPeer(ctx context.Context, peer identifiers.DeviceId, payload []byte) error {
	s.ctxMu.Lock()
	hint, ok := s.ectx.TakeFlowHint()
	if !ok {
		hint = flow.NewHint(s.ectx.FlowContext(), peer, 1)
	}
	s.ctxMu.Unlock()

	receipt, err := flow.FromHint(hint).Authorize(ctx, s)
	if err != nil {
		return err
	}

	envelope, err := encodeEnvelope(receipt, payload)
	if err != nil {
		return err
	}
	if err := s.composite.Network().SendToPeer(ctx, peer, envelope); err != nil {
		return aerr.Wrap(aerr.CodeNetwork, err, "send to %s", peer)
	}
	return nil
}

// Receive takes the next inbound envelope, verifies the receipt endpoints
// and signature, enforces anti-replay, and returns the inner payload.
func (s *EffectSystem) Receive(ctx context.Context) (identifiers.DeviceId, []byte, error) {
	peer, raw, err := s.composite.Network().Receive(ctx)
	if err != nil {
		return identifiers.DeviceId{}, nil, err
	}
	payload, err := s.decodeEnvelope(raw, peer)
	if err != nil {
		return identifiers.DeviceId{}, nil, err
	}
	return peer, payload, nil
}

func (s *EffectSystem) decodeEnvelope(raw []byte, expectedSrc identifiers.DeviceId) ([]byte, error) {
	var envelope transportEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, aerr.Wrap(aerr.CodeSerialization, err, "decode transport envelope")
	}
	receipt := envelope.Receipt

	if receipt.Src != expectedSrc {
		return nil, aerr.PermissionDenied("receipt source mismatch (expected %s, got %s)", expectedSrc, receipt.Src)
	}
	if receipt.Dst != s.device {
		return nil, aerr.PermissionDenied("receipt destination mismatch (expected %s, got %s)", s.device, receipt.Dst)
	}
	if !receipt.VerifySig() {
		return nil, aerr.PermissionDenied("receipt signature invalid")
	}
	if err := s.enforceAntiReplay(receipt); err != nil {
		return nil, err
	}
	return envelope.Payload, nil
}

// enforceAntiReplay requires the (epoch, nonce) pair for (ctx, src, dst) to
// be strictly increasing in lexicographic order.
func (s *EffectSystem) enforceAntiReplay(receipt flow.Receipt) error {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	key := replayKey{ctx: receipt.Ctx, src: receipt.Src, dst: receipt.Dst}
	if last, ok := s.antiReplay[key]; ok {
		if receipt.Epoch < last.epoch ||
			(receipt.Epoch == last.epoch && receipt.Nonce <= last.nonce) {
			return aerr.PermissionDenied(
				"replay detected for ctx=%s src=%s dst=%s (epoch=%d, nonce=%d)",
				receipt.Ctx, receipt.Src, receipt.Dst, receipt.Epoch.Value(), receipt.Nonce)
		}
	}
	s.antiReplay[key] = epochNonce{epoch: receipt.Epoch, nonce: receipt.Nonce}
	return nil
}

// ExecuteSession drives a local session-type program against the transport:
// send steps authorize and emit envelopes, receive steps verify and unwrap
// them, choice steps pick the labeled branch, end terminates.
func (s *EffectSystem) ExecuteSession(ctx context.Context, program *effects.SessionType) error {
	for step := program; step != nil; {
		switch step.Step {
		case effects.StepEnd:
			return nil
		case effects.StepSend:
			if err := s.SendToPeer(ctx, step.Peer, step.Payload); err != nil {
				return err
			}
			step = step.Next
		case effects.StepReceive:
			from, _, err := s.Receive(ctx)
			if err != nil {
				return err
			}
			if from != step.Peer {
				return aerr.PermissionDenied("session expected message from %s, got %s", step.Peer, from)
			}
			step = step.Next
		case effects.StepChoice:
			next, ok := step.Branches[step.Label]
			if !ok {
				return aerr.Internal("session choice %q has no branch", step.Label)
			}
			step = next
		default:
			return aerr.Internal("unknown session step %q", step.Step)
		}
	}
	return nil
}
