package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// RealCrypto is the production crypto handler: SHA-256, HMAC-SHA256,
// Ed25519, HKDF and ChaCha20-Poly1305. Aggregate verification treats the
// group public key as an Ed25519 key; real threshold schemes plug in via
// the external FROST collaborator.
type RealCrypto struct{}

// NewRealCrypto returns the production crypto handler.
func NewRealCrypto() *RealCrypto { return &RealCrypto{} }

func (c *RealCrypto) Hash(ctx context.Context, data []byte) identifiers.Hash32 {
	return identifiers.Hash32(sha256.Sum256(data))
}

func (c *RealCrypto) HMAC(ctx context.Context, key, data []byte) identifiers.Hash32 {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return identifiers.Hash32FromBytes(mac.Sum(nil))
}

func (c *RealCrypto) GenerateKeypair(ctx context.Context) ([]byte, []byte, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, aerr.Wrap(aerr.CodeInternal, err, "generate keypair")
	}
	return public, private, nil
}

func (c *RealCrypto) Sign(ctx context.Context, message, privateKey []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, aerr.Internal("invalid private key length %d", len(privateKey))
	}
	return ed25519.Sign(privateKey, message), nil
}

func (c *RealCrypto) Verify(ctx context.Context, message, signature, publicKey []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, aerr.Internal("invalid public key length %d", len(publicKey))
	}
	return ed25519.Verify(publicKey, message, signature), nil
}

func (c *RealCrypto) VerifyAggregate(ctx context.Context, message, signature, groupPublicKey []byte) (bool, error) {
	return c.Verify(ctx, message, signature, groupPublicKey)
}

func (c *RealCrypto) DeriveKey(ctx context.Context, master, salt, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, info), out); err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, err, "hkdf derive")
	}
	return out, nil
}

func (c *RealCrypto) Seal(ctx context.Context, plaintext, key, nonce, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, err, "aead seal")
	}
	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

func (c *RealCrypto) Open(ctx context.Context, ciphertext, key, nonce, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, err, "aead open")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodePermissionDenied, err, "aead open")
	}
	return plaintext, nil
}

// SeededCrypto is the deterministic crypto mock for testing and simulation.
// Private keys are derived from the seed with an HMAC-SHA256 counter and
// signatures are HMACs under those keys, so identical seeds yield identical
// runs. Aggregate checks are HMACs keyed by the group public key and do not
// depend on the seed.
type SeededCrypto struct {
	mu      sync.Mutex
	seed    []byte
	counter uint64
	keys    map[string][]byte // public -> private
}

// NewSeededCrypto returns a mock seeded from the mode seed.
func NewSeededCrypto(seed uint64) *SeededCrypto {
	raw := make([]byte, 8)
	for i := 0; i < 8; i++ {
		raw[i] = byte(seed >> (8 * i))
	}
	return &SeededCrypto{seed: raw, keys: make(map[string][]byte)}
}

func (c *SeededCrypto) next(label string) []byte {
	c.counter++
	mac := hmac.New(sha256.New, c.seed)
	mac.Write([]byte(label))
	var ctr [8]byte
	for i := 0; i < 8; i++ {
		ctr[i] = byte(c.counter >> (8 * i))
	}
	mac.Write(ctr[:])
	return mac.Sum(nil)
}

func (c *SeededCrypto) Hash(ctx context.Context, data []byte) identifiers.Hash32 {
	return identifiers.Hash32(sha256.Sum256(data))
}

func (c *SeededCrypto) HMAC(ctx context.Context, key, data []byte) identifiers.Hash32 {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return identifiers.Hash32FromBytes(mac.Sum(nil))
}

func (c *SeededCrypto) GenerateKeypair(ctx context.Context) ([]byte, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	private := c.next("keypair")
	public := sha256.Sum256(private)
	c.keys[string(public[:])] = private
	return public[:], private, nil
}

// Sign derives a deterministic signature: HMAC(private, message).
func (c *SeededCrypto) Sign(ctx context.Context, message, privateKey []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, privateKey)
	mac.Write(message)
	return mac.Sum(nil), nil
}

func (c *SeededCrypto) Verify(ctx context.Context, message, signature, publicKey []byte) (bool, error) {
	c.mu.Lock()
	private, ok := c.keys[string(publicKey)]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	expected, _ := c.Sign(ctx, message, private)
	return bytes.Equal(expected, signature), nil
}

// VerifyAggregate accepts signatures of the form HMAC(groupPublicKey,
// message): the convention mock signers in tests use for aggregate sigs.
func (c *SeededCrypto) VerifyAggregate(ctx context.Context, message, signature, groupPublicKey []byte) (bool, error) {
	mac := hmac.New(sha256.New, groupPublicKey)
	mac.Write(message)
	return bytes.Equal(mac.Sum(nil), signature), nil
}

// AggregateSign produces the matching mock aggregate signature.
func AggregateSign(message, groupPublicKey []byte) []byte {
	mac := hmac.New(sha256.New, groupPublicKey)
	mac.Write(message)
	return mac.Sum(nil)
}

func (c *SeededCrypto) DeriveKey(ctx context.Context, master, salt, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, info), out); err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, err, "hkdf derive")
	}
	return out, nil
}

func (c *SeededCrypto) Seal(ctx context.Context, plaintext, key, nonce, additionalData []byte) ([]byte, error) {
	return NewRealCrypto().Seal(ctx, plaintext, key, nonce, additionalData)
}

func (c *SeededCrypto) Open(ctx context.Context, ciphertext, key, nonce, additionalData []byte) ([]byte, error) {
	return NewRealCrypto().Open(ctx, ciphertext, key, nonce, additionalData)
}
