package store

import (
	"context"
	"sync"

	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// MemoryReceiptStore keeps the chain in memory for deterministic modes.
type MemoryReceiptStore struct {
	mu       sync.RWMutex
	receipts []flow.Receipt
}

// NewMemoryReceiptStore returns an empty store.
func NewMemoryReceiptStore() *MemoryReceiptStore { return &MemoryReceiptStore{} }

func (s *MemoryReceiptStore) Append(ctx context.Context, receipt flow.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, receipt)
	return nil
}

func (s *MemoryReceiptStore) Head(ctx context.Context) (identifiers.Hash32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.receipts) == 0 {
		return identifiers.ZeroHash, nil
	}
	return s.receipts[len(s.receipts)-1].ContentHash()
}

func (s *MemoryReceiptStore) List(ctx context.Context, limit int) ([]flow.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.receipts)
	if limit > n {
		limit = n
	}
	out := make([]flow.Receipt, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.receipts[i])
	}
	return out, nil
}

func (s *MemoryReceiptStore) VerifyChain(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return verifyChain(s.receipts)
}
