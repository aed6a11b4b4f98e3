// Package memory is an in-process bucket used by tests and for exercising the cleaner without a
// storage service.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dev-tams/deployprune/internal/storage/prunable"
)

type Storage struct {
	name string

	mu      sync.Mutex
	objects map[string]prunable.ObjectInfo

	// Failure injection.
	ListPrefixesErr error
	ListErr         map[string]error
	DeleteErr       map[string]error

	// DeleteCalls records every prefix passed to DeletePrefix, in order.
	DeleteCalls []string
}

func New(name string) *Storage {
	return &Storage{
		name:      name,
		objects:   make(map[string]prunable.ObjectInfo),
		ListErr:   make(map[string]error),
		DeleteErr: make(map[string]error),
	}
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) Put(key string, size int64, mod time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = prunable.ObjectInfo{Key: key, Size: size, ModTime: mod}
}

func (s *Storage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedKeys()
}

func (s *Storage) ListPrefixes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.ListPrefixesErr != nil {
		return nil, s.ListPrefixesErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, k := range s.sortedKeys() {
		p, ok := prunable.TopLevelPrefix(k)
		if !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func (s *Storage) List(ctx context.Context, prefix string, limit int) ([]prunable.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ListErr[prefix]; err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []prunable.ObjectInfo
	for _, k := range s.sortedKeys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, s.objects[k])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Storage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.DeleteCalls = append(s.DeleteCalls, prefix)
	if err := prunable.CheckPrefix(prefix); err != nil {
		return 0, fmt.Errorf("delete %q: %w", prefix, err)
	}
	if err := s.DeleteErr[prefix]; err != nil {
		return 0, err
	}

	n := 0
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			delete(s.objects, k)
			n++
		}
	}
	return n, nil
}

func (s *Storage) sortedKeys() []string {
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
