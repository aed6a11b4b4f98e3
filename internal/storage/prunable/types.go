package prunable

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Delimiter separates the deployment prefix from the rest of an object key.
const Delimiter = "/"

// ErrInvalidPrefix is returned when a delete is requested for a prefix that could match
// objects outside a single deployment.
var ErrInvalidPrefix = errors.New("invalid deployment prefix")

type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Prunable is the storage collaborator the cleaner runs against. Implementations are bound to
// one bucket.
type Prunable interface {
	Name() string
	// ListPrefixes returns the distinct top-level prefixes, each ending in Delimiter.
	ListPrefixes(ctx context.Context) ([]string, error)
	// List returns objects under prefix in ascending key order. limit <= 0 means no limit.
	List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)
	// DeletePrefix removes every object whose key starts with prefix and reports how many
	// were removed. A failure may leave some objects removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// CheckPrefix rejects prefixes that are not exactly one top-level key segment.
func CheckPrefix(prefix string) error {
	if prefix == "" || prefix == Delimiter {
		return ErrInvalidPrefix
	}
	if !strings.HasSuffix(prefix, Delimiter) {
		return ErrInvalidPrefix
	}
	if strings.Contains(strings.TrimSuffix(prefix, Delimiter), Delimiter) {
		return ErrInvalidPrefix
	}
	return nil
}

// TopLevelPrefix returns the key up to and including the first Delimiter.
func TopLevelPrefix(key string) (string, bool) {
	i := strings.Index(key, Delimiter)
	if i <= 0 {
		return "", false
	}
	return key[:i+1], true
}
