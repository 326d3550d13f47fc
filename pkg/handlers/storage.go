// Package handlers provides the concrete effect implementations per
// execution mode and the composite that bundles one handler of each kind
// behind a single serialized dispatch plane.
package handlers

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hxrts/aura-sub001/pkg/aerr"
)

// MemoryStorage is the deterministic in-memory store used by testing and
// simulation. Thread-safe via RWMutex; reads return copies.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (s *MemoryStorage) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStorage) ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

// FSStorage is the production store: one file per key under a root
// directory. Key segments are hex-armored so arbitrary identifiers cannot
// escape the root.
type FSStorage struct {
	root string
}

// NewFSStorage creates the root directory if needed.
func NewFSStorage(root string) (*FSStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, aerr.Wrap(aerr.CodeStorage, err, "create storage root %s", root)
	}
	return &FSStorage{root: root}, nil
}

func (s *FSStorage) path(key string) string {
	segments := strings.Split(key, "/")
	armored := make([]string, len(segments))
	for i, seg := range segments {
		armored[i] = hex.EncodeToString([]byte(seg))
	}
	return filepath.Join(append([]string{s.root}, armored...)...)
}

func (s *FSStorage) keyFromPath(path string) (string, bool) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", false
	}
	segments := strings.Split(rel, string(filepath.Separator))
	decoded := make([]string, len(segments))
	for i, seg := range segments {
		raw, err := hex.DecodeString(seg)
		if err != nil {
			return "", false
		}
		decoded[i] = string(raw)
	}
	return strings.Join(decoded, "/"), true
}

func (s *FSStorage) Put(ctx context.Context, key string, value []byte) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return aerr.Wrap(aerr.CodeStorage, err, "put %s", key)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return aerr.Wrap(aerr.CodeStorage, err, "put %s", key)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return aerr.Wrap(aerr.CodeStorage, err, "put %s", key)
	}
	return nil
}

func (s *FSStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, aerr.Wrap(aerr.CodeStorage, err, "get %s", key)
	}
	return raw, true, nil
}

func (s *FSStorage) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return aerr.Wrap(aerr.CodeStorage, err, "delete %s", key)
	}
	return nil
}

func (s *FSStorage) ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return err
		}
		key, ok := s.keyFromPath(path)
		if !ok || !strings.HasPrefix(key, prefix) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	})
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeStorage, err, "scan %s", prefix)
	}
	return out, nil
}
