package effects

import (
	"context"
	"time"

	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
	"github.com/hxrts/aura-sub001/pkg/journal"
)

// Network moves opaque byte payloads between peers. Implementations do not
// interpret payloads; envelope wrapping and flow enforcement happen above.
type Network interface {
	SendToPeer(ctx context.Context, peer identifiers.DeviceId, payload []byte) error
	Receive(ctx context.Context) (identifiers.DeviceId, []byte, error)
	Broadcast(ctx context.Context, payload []byte) error
	ConnectedPeers(ctx context.Context) ([]identifiers.DeviceId, error)
}

// Storage is an opaque key→bytes store with prefix scan. Keys follow the
// fixed layout: journal/op/<cid>, journal/budget/<ctx>/<peer>, session/<id>,
// receipt/chain/head.
type Storage interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error)
}

// Crypto covers hashing, signatures, key derivation and AEAD. Threshold
// aggregation (FROST) is an external collaborator reached through
// VerifyAggregate.
type Crypto interface {
	Hash(ctx context.Context, data []byte) identifiers.Hash32
	HMAC(ctx context.Context, key, data []byte) identifiers.Hash32
	GenerateKeypair(ctx context.Context) (public, private []byte, err error)
	Sign(ctx context.Context, message, privateKey []byte) ([]byte, error)
	Verify(ctx context.Context, message, signature, publicKey []byte) (bool, error)
	VerifyAggregate(ctx context.Context, message, signature, groupPublicKey []byte) (bool, error)
	DeriveKey(ctx context.Context, master, salt, info []byte, length int) ([]byte, error)
	Seal(ctx context.Context, plaintext, key, nonce, additionalData []byte) ([]byte, error)
	Open(ctx context.Context, ciphertext, key, nonce, additionalData []byte) ([]byte, error)
}

// Time provides the clock and epoch. Deterministic modes back this with a
// virtual clock advanced explicitly by the test.
type Time interface {
	Now(ctx context.Context) time.Time
	Sleep(ctx context.Context, d time.Duration) error
	CurrentEpoch(ctx context.Context) identifiers.Epoch
}

// Console is operator-facing output and input.
type Console interface {
	Print(ctx context.Context, line string) error
	ReadLine(ctx context.Context) (string, error)
}

// Random yields randomness. Deterministic modes derive every byte from the
// mode seed and a per-handler counter.
type Random interface {
	RandomBytes(ctx context.Context, n int) ([]byte, error)
	RandomU64(ctx context.Context) (uint64, error)
	RandomRange(ctx context.Context, min, max uint64) (uint64, error)
}

// Ledger records append-only facts outside the journal proper (telemetry,
// local bookkeeping) with prefix query.
type Ledger interface {
	AppendFact(ctx context.Context, key string, value []byte) error
	QueryFacts(ctx context.Context, prefix string) (map[string][]byte, error)
}

// Journal exposes the replicated op log and its derived tree.
type Journal interface {
	AppendAttestedOp(ctx context.Context, op journal.AttestedOp) (identifiers.Hash32, error)
	MergeRemoteOps(ctx context.Context, ops []journal.AttestedOp) (int, error)
	TreeState(ctx context.Context) (*journal.TreeState, error)
	Commitment(ctx context.Context) (identifiers.Hash32, error)
	OplogDigest(ctx context.Context) (identifiers.Hash32, error)
	GetFlowBudget(ctx context.Context, contextID identifiers.ContextId, peer identifiers.DeviceId, epoch identifiers.Epoch) (flow.Budget, error)
	UpdateFlowBudget(ctx context.Context, contextID identifiers.ContextId, peer identifiers.DeviceId, budget flow.Budget) error
}

// Choreographic delivers role-addressed messages inside a ceremony.
type Choreographic interface {
	SendToRole(ctx context.Context, role string, payload []byte) error
	ReceiveFromRole(ctx context.Context, role string) ([]byte, error)
}

// System covers logging, health, configuration and metrics for the process.
type System interface {
	Log(ctx context.Context, level, component, message string) error
	LogWithContext(ctx context.Context, level, component, message string, fields map[string]string) error
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
	HealthCheck(ctx context.Context) (bool, error)
	Metrics(ctx context.Context) (map[string]float64, error)
}
