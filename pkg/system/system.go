// Package system provides the effect system: the single dispatch plane that
// owns a composite handler and an execution context, enforces flow budgets
// before every transport send, chains receipts, and rejects replayed
// envelopes. A process may hold several effect systems, each with its own
// mode and seed; there is no global state.
package system

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/effects"
	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/handlers"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

// DispatchObserver receives one callback per serialized dispatch, for
// telemetry. Implementations must be cheap; they run on the dispatch path.
type DispatchObserver interface {
	ObserveDispatch(kind effects.Kind, op string, err error)
}

type replayKey struct {
	ctx identifiers.ContextId
	src identifiers.DeviceId
	dst identifiers.DeviceId
}

type epochNonce struct {
	epoch identifiers.Epoch
	nonce uint64
}

// EffectSystem is the primary entry point for all effect execution.
type EffectSystem struct {
	composite *handlers.Composite
	device    identifiers.DeviceId
	mode      effects.ExecutionMode
	logger    *slog.Logger
	observer  DispatchObserver

	ctxMu sync.RWMutex
	ectx  *effects.Context

	// flowMu serializes charge-and-persist per effect system; the nonce and
	// receipt chain advance under it.
	flowMu      sync.Mutex
	flowNonce   uint64
	prevReceipt identifiers.Hash32
	lastReceipt *flow.Receipt

	replayMu   sync.Mutex
	antiReplay map[replayKey]epochNonce
}

// Option configures an effect system.
type Option func(*EffectSystem)

// WithComposite substitutes a custom handler bundle.
func WithComposite(c *handlers.Composite) Option {
	return func(s *EffectSystem) { s.composite = c }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *EffectSystem) { s.logger = l }
}

// WithObserver installs a dispatch observer.
func WithObserver(o DispatchObserver) Option {
	return func(s *EffectSystem) { s.observer = o }
}

// New builds an effect system for the given device and mode.
func New(device identifiers.DeviceId, mode effects.ExecutionMode, opts ...Option) *EffectSystem {
	s := &EffectSystem{
		device:     device,
		mode:       mode,
		logger:     slog.Default().With("component", "effects", "device", device.String()),
		antiReplay: make(map[replayKey]epochNonce),
	}
	switch mode.Kind {
	case effects.ModeProduction:
		s.ectx = effects.ForProduction(device)
	case effects.ModeSimulation:
		s.ectx = effects.ForSimulation(device, mode.Seed)
	default:
		s.ectx = effects.ForTesting(device)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.composite == nil {
		s.composite = handlers.ForMode(mode, device)
	}
	return s
}

// ForTesting builds a deterministic effect system.
func ForTesting(device identifiers.DeviceId, opts ...Option) *EffectSystem {
	return New(device, effects.Testing(), opts...)
}

// ForProduction builds a real-I/O effect system.
func ForProduction(device identifiers.DeviceId, opts ...Option) *EffectSystem {
	return New(device, effects.Production(), opts...)
}

// ForSimulation builds a seeded effect system.
func ForSimulation(device identifiers.DeviceId, seed uint64, opts ...Option) *EffectSystem {
	return New(device, effects.Simulation(seed), opts...)
}

// DeviceId returns this system's device identity.
func (s *EffectSystem) DeviceId() identifiers.DeviceId { return s.device }

// ExecutionMode returns the mode the system was built for.
func (s *EffectSystem) ExecutionMode() effects.ExecutionMode { return s.mode }

// Composite exposes the handler bundle for typed callers.
func (s *EffectSystem) Composite() *handlers.Composite { return s.composite }

// Context returns a copy of the current execution context.
func (s *EffectSystem) Context() *effects.Context {
	s.ctxMu.RLock()
	defer s.ctxMu.RUnlock()
	return s.ectx.Clone()
}

// UpdateContext applies f to the context under the write lock.
func (s *EffectSystem) UpdateContext(f func(*effects.Context) error) error {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	return f(s.ectx)
}

// SetFlowHint installs a one-shot hint consumed by the next transport send.
func (s *EffectSystem) SetFlowHint(hint flow.Hint) {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	s.ectx.SetFlowHint(hint)
}

// LatestReceipt returns the last receipt this system emitted, if any.
func (s *EffectSystem) LatestReceipt() *flow.Receipt {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	if s.lastReceipt == nil {
		return nil
	}
	r := *s.lastReceipt
	return &r
}

// SupportsEffect reports whether the composite carries the kind.
func (s *EffectSystem) SupportsEffect(kind effects.Kind) bool {
	return s.composite.SupportsEffect(kind)
}

// ExecuteEffect is the serialized dispatch entry used by simulation tooling
// and cross-language replay. Typed callers use the composite accessors.
func (s *EffectSystem) ExecuteEffect(ctx context.Context, kind effects.Kind, op string, params []byte) ([]byte, error) {
	ectx := s.Context()
	result, err := s.composite.ExecuteEffect(ctx, kind, op, params, ectx)
	if s.observer != nil {
		s.observer.ObserveDispatch(kind, op, err)
	}
	return result, err
}

// RotateEpoch advances the local epoch; budget spend from older epochs is
// reset when a budget is next loaded at the new epoch. The anti-replay
// table is left unchanged.
func (s *EffectSystem) RotateEpoch(e identifiers.Epoch) {
	s.composite.RotateEpoch(e)
	s.ctxMu.Lock()
	s.ectx.Epoch = s.ectx.Epoch.Max(e)
	s.ctxMu.Unlock()
}

// SeedFlowBudget journals a budget fact for (context, peer) so tests and
// operators can install caps directly.
func (s *EffectSystem) SeedFlowBudget(contextID identifiers.ContextId, peer identifiers.DeviceId, budget flow.Budget) {
	if jh, ok := s.composite.Journal().(*handlers.JournalHandler); ok {
		jh.Journal().SeedBudgetFact(contextID, peer, budget)
	}
}

// Journal returns the underlying replicated journal when the composite uses
// the standard journal handler.
func (s *EffectSystem) Journal() *journal.Replicated {
	if jh, ok := s.composite.Journal().(*handlers.JournalHandler); ok {
		return jh.Journal()
	}
	return nil
}

// ChargeFlow implements flow.Charger: compute the deterministic budget for
// (context, peer), fold in the current epoch, charge, persist the new
// budget to the journal, and emit a chained receipt. On exhaustion the
// charge fails with PermissionDenied and no transport I/O may follow.
func (s *EffectSystem) ChargeFlow(ctx context.Context, contextID identifiers.ContextId, peer identifiers.DeviceId, cost uint32) (flow.Receipt, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	epoch := s.composite.Time().CurrentEpoch(ctx)
	budget, err := s.composite.Journal().GetFlowBudget(ctx, contextID, peer, epoch)
	if err != nil {
		return flow.Receipt{}, aerr.Wrap(aerr.CodeInternal, err, "load flow budget")
	}
	if !budget.RecordCharge(uint64(cost)) {
		return flow.Receipt{}, aerr.PermissionDenied(
			"flow budget exceeded for ctx=%s peer=%s (limit=%d, spent=%d, cost=%d)",
			contextID, peer, budget.Limit, budget.Spent, cost)
	}
	if err := s.composite.Journal().UpdateFlowBudget(ctx, contextID, peer, budget); err != nil {
		return flow.Receipt{}, aerr.Wrap(aerr.CodeStorage, err, "persist flow budget")
	}

	s.flowNonce++
	receipt := flow.NewReceipt(contextID, s.device, peer, epoch, cost, s.flowNonce, s.prevReceipt)

	head, err := receipt.ContentHash()
	if err != nil {
		return flow.Receipt{}, aerr.Wrap(aerr.CodeInternal, err, "hash receipt")
	}
	s.prevReceipt = head
	s.lastReceipt = &receipt
	s.persistChainHead(ctx, head)

	s.logger.Debug("flow receipt emitted",
		"ctx", contextID, "peer", peer.String(), "cost", cost, "nonce", receipt.Nonce)
	return receipt, nil
}

func (s *EffectSystem) persistChainHead(ctx context.Context, head identifiers.Hash32) {
	if err := s.composite.Storage().Put(ctx, "receipt/chain/head", head.Bytes()); err != nil {
		s.logger.Warn("failed to persist receipt chain head", "err", err)
	}
}

// Statistics summarizes the system for telemetry.
type Statistics struct {
	Mode              effects.ExecutionMode `json:"mode"`
	DeviceId          identifiers.DeviceId  `json:"device_id"`
	RegisteredEffects int                   `json:"registered_effects"`
	ReceiptsEmitted   uint64                `json:"receipts_emitted"`
}

// Statistics returns a snapshot of system counters.
func (s *EffectSystem) Statistics() Statistics {
	s.flowMu.Lock()
	nonce := s.flowNonce
	s.flowMu.Unlock()
	return Statistics{
		Mode:              s.mode,
		DeviceId:          s.device,
		RegisteredEffects: len(s.composite.SupportedEffects()),
		ReceiptsEmitted:   nonce,
	}
}
