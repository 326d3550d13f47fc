package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/hxrts/aura-sub001/pkg/aerr"
)

// RealRandom draws from crypto/rand.
type RealRandom struct{}

// NewRealRandom returns the production randomness handler.
func NewRealRandom() *RealRandom { return &RealRandom{} }

func (r *RealRandom) RandomBytes(ctx context.Context, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, err, "random bytes")
	}
	return out, nil
}

func (r *RealRandom) RandomU64(ctx context.Context) (uint64, error) {
	b, err := r.RandomBytes(ctx, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *RealRandom) RandomRange(ctx context.Context, min, max uint64) (uint64, error) {
	if max <= min {
		return min, nil
	}
	span := new(big.Int).SetUint64(max - min)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, aerr.Wrap(aerr.CodeInternal, err, "random range")
	}
	return min + n.Uint64(), nil
}

// SeededRandom is an HMAC-SHA256 counter PRNG: every output is derived from
// the seed and a monotonic counter, so identical seeds replay identical
// byte streams.
type SeededRandom struct {
	mu      sync.Mutex
	seed    [8]byte
	counter uint64
	buf     []byte
}

// NewSeededRandom returns a PRNG for the given mode seed.
func NewSeededRandom(seed uint64) *SeededRandom {
	r := &SeededRandom{}
	binary.LittleEndian.PutUint64(r.seed[:], seed)
	return r
}

func (r *SeededRandom) generate() []byte {
	r.counter++
	mac := hmac.New(sha256.New, r.seed[:])
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], r.counter)
	mac.Write(ctr[:])
	return mac.Sum(nil)
}

func (r *SeededRandom) RandomBytes(ctx context.Context, n int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, 0, n)
	for len(out) < n {
		if len(r.buf) == 0 {
			r.buf = r.generate()
		}
		take := n - len(out)
		if take > len(r.buf) {
			take = len(r.buf)
		}
		out = append(out, r.buf[:take]...)
		r.buf = r.buf[take:]
	}
	return out, nil
}

func (r *SeededRandom) RandomU64(ctx context.Context) (uint64, error) {
	b, err := r.RandomBytes(ctx, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *SeededRandom) RandomRange(ctx context.Context, min, max uint64) (uint64, error) {
	if max <= min {
		return min, nil
	}
	v, err := r.RandomU64(ctx)
	if err != nil {
		return 0, err
	}
	return min + v%(max-min), nil
}
