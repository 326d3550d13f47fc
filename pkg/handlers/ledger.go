package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/hxrts/aura-sub001/pkg/aerr"
)

// MemoryLedger records append-only facts with prefix query. A fact key is
// written once; re-appending the same key is an error, which keeps local
// bookkeeping honest about immutability.
type MemoryLedger struct {
	mu    sync.RWMutex
	facts map[string][]byte
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{facts: make(map[string][]byte)}
}

func (l *MemoryLedger) AppendFact(ctx context.Context, key string, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.facts[key]; ok {
		return aerr.Storage("fact %q already recorded", key)
	}
	l.facts[key] = append([]byte(nil), value...)
	return nil
}

func (l *MemoryLedger) QueryFacts(ctx context.Context, prefix string) (map[string][]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range l.facts {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}
