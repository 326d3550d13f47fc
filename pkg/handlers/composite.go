package handlers

import (
	"context"
	"log/slog"

	"github.com/hxrts/aura-sub001/pkg/effects"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

// Composite bundles one handler per effect kind. All state lives inside the
// bundle; a process may hold several composites, each with its own mode and
// seed. Typed callers reach handlers directly through the accessors; the
// simulation tooling and cross-language replay use ExecuteEffect, the
// serialized dispatch path.
type Composite struct {
	network effects.Network
	storage effects.Storage
	crypto  effects.Crypto
	time    effects.Time
	console effects.Console
	random  effects.Random
	ledger  effects.Ledger
	journal effects.Journal
	choreo  effects.Choreographic
	system  effects.System

	mode effects.ExecutionMode
}

// ForMode builds the standard bundle for an execution mode. Testing and
// simulation share in-memory handlers; simulation is seeded.
func ForMode(mode effects.ExecutionMode, device identifiers.DeviceId) *Composite {
	switch mode.Kind {
	case effects.ModeProduction:
		return ForProduction(device, nil, "")
	case effects.ModeSimulation:
		return forDeterministic(mode, device, NewMemoryBus())
	default:
		return forDeterministic(effects.Testing(), device, NewMemoryBus())
	}
}

// ForTesting builds a deterministic bundle with a private in-memory bus.
func ForTesting(device identifiers.DeviceId) *Composite {
	return forDeterministic(effects.Testing(), device, NewMemoryBus())
}

// ForSimulation builds a seeded bundle attached to a shared bus so many
// simulated nodes interact inside one process.
func ForSimulation(device identifiers.DeviceId, seed uint64, bus *MemoryBus) *Composite {
	if bus == nil {
		bus = NewMemoryBus()
	}
	return forDeterministic(effects.Simulation(seed), device, bus)
}

// ForProduction builds the real-I/O bundle. The transport may be nil until
// an external collaborator binds one; storageRoot falls back to a
// per-device directory.
func ForProduction(device identifiers.DeviceId, transport Transport, storageRoot string) *Composite {
	if storageRoot == "" {
		storageRoot = "aura-data/" + device.String()
	}
	var storage effects.Storage
	if fs, err := NewFSStorage(storageRoot); err != nil {
		slog.Warn("falling back to memory storage", "err", err)
		storage = NewMemoryStorage()
	} else {
		storage = fs
	}
	crypto := NewRealCrypto()
	j := journal.NewReplicated(journal.WithVerifier(NewCryptoAggregateVerifier(crypto)))
	network := NewProductionNetwork(transport, 64, 128)

	return &Composite{
		network: network,
		storage: storage,
		crypto:  crypto,
		time:    NewSystemTime(),
		console: NewStdConsole(),
		random:  NewRealRandom(),
		ledger:  NewMemoryLedger(),
		journal: NewPersistentJournalHandler(j, storage),
		choreo:  NewRoleRouter(network),
		system:  NewSystemHandler(slog.Default().With("device", device.String())),
		mode:    effects.Production(),
	}
}

func forDeterministic(mode effects.ExecutionMode, device identifiers.DeviceId, bus *MemoryBus) *Composite {
	crypto := NewSeededCrypto(mode.Seed)
	j := journal.NewReplicated(journal.WithVerifier(NewCryptoAggregateVerifier(crypto)))
	network := bus.Attach(device)
	return &Composite{
		network: network,
		storage: NewMemoryStorage(),
		crypto:  crypto,
		time:    NewVirtualClock(),
		console: NewCaptureConsole(),
		random:  NewSeededRandom(mode.Seed),
		ledger:  NewMemoryLedger(),
		journal: NewJournalHandler(j),
		choreo:  NewRoleRouter(network),
		system:  NewSystemHandler(slog.Default().With("device", device.String())),
		mode:    mode,
	}
}

// Builder assembles a composite with per-kind overrides.
type Builder struct {
	composite *Composite
}

// NewBuilder starts from the standard bundle for the mode.
func NewBuilder(mode effects.ExecutionMode, device identifiers.DeviceId) *Builder {
	return &Builder{composite: ForMode(mode, device)}
}

func (b *Builder) WithNetwork(n effects.Network) *Builder       { b.composite.network = n; return b }
func (b *Builder) WithStorage(s effects.Storage) *Builder       { b.composite.storage = s; return b }
func (b *Builder) WithCrypto(c effects.Crypto) *Builder         { b.composite.crypto = c; return b }
func (b *Builder) WithTime(t effects.Time) *Builder             { b.composite.time = t; return b }
func (b *Builder) WithConsole(c effects.Console) *Builder       { b.composite.console = c; return b }
func (b *Builder) WithRandom(r effects.Random) *Builder         { b.composite.random = r; return b }
func (b *Builder) WithLedger(l effects.Ledger) *Builder         { b.composite.ledger = l; return b }
func (b *Builder) WithJournal(j effects.Journal) *Builder       { b.composite.journal = j; return b }
func (b *Builder) WithChoreographic(c effects.Choreographic) *Builder {
	b.composite.choreo = c
	return b
}
func (b *Builder) WithSystem(s effects.System) *Builder { b.composite.system = s; return b }

// Build returns the assembled composite.
func (b *Builder) Build() *Composite { return b.composite }

// Mode returns the composite's execution mode.
func (c *Composite) Mode() effects.ExecutionMode { return c.mode }

// Typed accessors: the zero-overhead path for production callers.

func (c *Composite) Network() effects.Network             { return c.network }
func (c *Composite) Storage() effects.Storage             { return c.storage }
func (c *Composite) Crypto() effects.Crypto               { return c.crypto }
func (c *Composite) Time() effects.Time                   { return c.time }
func (c *Composite) Console() effects.Console             { return c.console }
func (c *Composite) Random() effects.Random               { return c.random }
func (c *Composite) Ledger() effects.Ledger               { return c.ledger }
func (c *Composite) Journal() effects.Journal             { return c.journal }
func (c *Composite) Choreographic() effects.Choreographic { return c.choreo }
func (c *Composite) System() effects.System               { return c.system }

// SupportsEffect reports whether a handler is bound for the kind.
func (c *Composite) SupportsEffect(kind effects.Kind) bool {
	switch kind {
	case effects.KindNetwork:
		return c.network != nil
	case effects.KindStorage:
		return c.storage != nil
	case effects.KindCrypto:
		return c.crypto != nil
	case effects.KindTime:
		return c.time != nil
	case effects.KindConsole:
		return c.console != nil
	case effects.KindRandom:
		return c.random != nil
	case effects.KindLedger:
		return c.ledger != nil
	case effects.KindJournal:
		return c.journal != nil
	case effects.KindChoreographic:
		return c.choreo != nil
	case effects.KindSystem:
		return c.system != nil
	}
	return false
}

// SupportedEffects lists the kinds with bound handlers.
func (c *Composite) SupportedEffects() []effects.Kind {
	var out []effects.Kind
	for _, kind := range effects.AllKinds() {
		if c.SupportsEffect(kind) {
			out = append(out, kind)
		}
	}
	return out
}

// RotateEpoch advances the clock handler's epoch when it is a SystemTime or
// a VirtualClock; any other time handler is left unchanged.
func (c *Composite) RotateEpoch(e identifiers.Epoch) {
	switch clock := c.time.(type) {
	case *SystemTime:
		clock.SetEpoch(e)
	case *VirtualClock:
		clock.SetEpoch(e)
	}
}

// ExecuteEffect is the serialized dispatch path: route to the kind's
// sub-dispatcher, decode params, call the typed handler, re-encode the
// result. ectx is accepted for the dispatch signature; no sub-dispatcher
// reads or modifies it.
func (c *Composite) ExecuteEffect(ctx context.Context, kind effects.Kind, op string, params []byte, ectx *effects.Context) ([]byte, error) {
	if !c.SupportsEffect(kind) {
		return nil, aerrUnsupported(kind)
	}
	switch kind {
	case effects.KindNetwork:
		return c.dispatchNetwork(ctx, op, params)
	case effects.KindStorage:
		return c.dispatchStorage(ctx, op, params)
	case effects.KindCrypto:
		return c.dispatchCrypto(ctx, op, params)
	case effects.KindTime:
		return c.dispatchTime(ctx, op, params)
	case effects.KindConsole:
		return c.dispatchConsole(ctx, op, params)
	case effects.KindRandom:
		return c.dispatchRandom(ctx, op, params)
	case effects.KindLedger:
		return c.dispatchLedger(ctx, op, params)
	case effects.KindJournal:
		return c.dispatchJournal(ctx, op, params)
	case effects.KindChoreographic:
		return c.dispatchChoreo(ctx, op, params)
	case effects.KindSystem:
		return c.dispatchSystem(ctx, op, params)
	}
	return nil, aerrUnsupported(kind)
}
