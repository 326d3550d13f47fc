// Package identifiers defines the opaque identifiers shared by every
// component: device, account, guardian and session IDs (128-bit), the
// string-backed context ID, the 32-byte content hash, and the epoch counter.
package identifiers

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DeviceId identifies a single device in an account cluster.
type DeviceId struct{ id uuid.UUID }

// AccountId identifies an account (a quorum of devices).
type AccountId struct{ id uuid.UUID }

// GuardianId identifies an external recovery guardian.
type GuardianId struct{ id uuid.UUID }

// SessionId identifies a single ceremony run.
type SessionId struct{ id uuid.UUID }

// NewDeviceId returns a fresh random device ID.
func NewDeviceId() DeviceId { return DeviceId{id: uuid.New()} }

// NewAccountId returns a fresh random account ID.
func NewAccountId() AccountId { return AccountId{id: uuid.New()} }

// NewGuardianId returns a fresh random guardian ID.
func NewGuardianId() GuardianId { return GuardianId{id: uuid.New()} }

// NewSessionId returns a fresh random session ID.
func NewSessionId() SessionId { return SessionId{id: uuid.New()} }

// DeviceIdFromBytes reconstructs a device ID from its 16-byte canonical form.
func DeviceIdFromBytes(b []byte) (DeviceId, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return DeviceId{}, fmt.Errorf("device id: %w", err)
	}
	return DeviceId{id: id}, nil
}

// DeviceIdFromSeed derives a stable device ID from a seed and an index.
// Used by deterministic execution modes so identical seeds yield identical
// device identities.
func DeviceIdFromSeed(seed uint64, index uint32) DeviceId {
	var raw [16]byte
	for i := 0; i < 8; i++ {
		raw[i] = byte(seed >> (8 * i))
	}
	for i := 0; i < 4; i++ {
		raw[8+i] = byte(index >> (8 * i))
	}
	// Mark as a v4-shaped UUID so String() renders uniformly.
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80
	id, _ := uuid.FromBytes(raw[:])
	return DeviceId{id: id}
}

func (d DeviceId) Bytes() []byte    { b := d.id; return b[:] }
func (d DeviceId) String() string   { return d.id.String() }
func (d DeviceId) IsZero() bool     { return d.id == uuid.Nil }
func (a AccountId) Bytes() []byte   { b := a.id; return b[:] }
func (a AccountId) String() string  { return a.id.String() }
func (a AccountId) IsZero() bool    { return a.id == uuid.Nil }
func (g GuardianId) Bytes() []byte  { b := g.id; return b[:] }
func (g GuardianId) String() string { return g.id.String() }
func (s SessionId) Bytes() []byte   { b := s.id; return b[:] }
func (s SessionId) String() string  { return s.id.String() }
func (s SessionId) IsZero() bool    { return s.id == uuid.Nil }

func (d DeviceId) MarshalJSON() ([]byte, error)  { return json.Marshal(d.id.String()) }
func (d *DeviceId) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &d.id) }

func (a AccountId) MarshalJSON() ([]byte, error)  { return json.Marshal(a.id.String()) }
func (a *AccountId) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &a.id) }

func (g GuardianId) MarshalJSON() ([]byte, error)  { return json.Marshal(g.id.String()) }
func (g *GuardianId) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &g.id) }

func (s SessionId) MarshalJSON() ([]byte, error)  { return json.Marshal(s.id.String()) }
func (s *SessionId) UnmarshalJSON(b []byte) error { return unmarshalUUID(b, &s.id) }

func unmarshalUUID(b []byte, dst *uuid.UUID) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("identifier: %w", err)
	}
	*dst = id
	return nil
}

// ContextId is a named scope (e.g. "chat:alice-bob") used to partition flow
// budgets and isolate observations. The value is stable and string-backed.
type ContextId string

// GlobalContext is the fallback context used when a caller supplies none.
const GlobalContext ContextId = "global"

func (c ContextId) String() string { return string(c) }

// Hash32 is a 32-byte collision-resistant hash over canonical encoding.
type Hash32 [32]byte

// ZeroHash is the all-zero hash; it seeds every receipt chain.
var ZeroHash Hash32

// Hash32FromBytes copies up to 32 bytes of b into a Hash32.
func Hash32FromBytes(b []byte) Hash32 {
	var h Hash32
	copy(h[:], b)
	return h
}

func (h Hash32) Bytes() []byte      { return h[:] }
func (h Hash32) String() string     { return hex.EncodeToString(h[:]) }
func (h Hash32) IsZero() bool       { return h == Hash32{} }
func (h Hash32) Equal(o Hash32) bool { return bytes.Equal(h[:], o[:]) }

func (h Hash32) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h[:]))
}

func (h *Hash32) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("hash32: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("hash32: expected 32 bytes, got %d", len(raw))
	}
	copy(h[:], raw)
	return nil
}

// Epoch is the monotonically advancing counter governing key validity and
// flow-budget windows. Rotating to a higher epoch is the only mechanism that
// resets per-epoch state.
type Epoch uint64

func (e Epoch) Value() uint64 { return uint64(e) }

// Max returns the larger of two epochs.
func (e Epoch) Max(o Epoch) Epoch {
	if o > e {
		return o
	}
	return e
}
