package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dev-tams/deployprune/internal/storage/prunable"
)

// Storage treats <root>/<bucket> as a bucket: each top-level directory is a deployment prefix and
// every regular file below it is an object keyed by its slash-separated relative path.
type Storage struct {
	name string
	base string
}

func New(name, root, bucket string) *Storage {
	return &Storage{name: name, base: filepath.Join(root, bucket)}
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) BasePath() string { return s.base }

func (s *Storage) ListPrefixes(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return nil, fmt.Errorf("list bucket dir: %w", err)
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, e.Name()+prunable.Delimiter)
	}
	return out, nil
}

func (s *Storage) List(ctx context.Context, prefix string, limit int) ([]prunable.ObjectInfo, error) {
	root, err := s.walkRoot(prefix)
	if err != nil {
		return nil, err
	}

	var out []prunable.ObjectInfo
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) && p == root {
				return fs.SkipDir
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		// Skip tmp files left behind by interrupted uploads
		if filepath.Ext(d.Name()) == ".tmp" {
			return nil
		}

		key, err := s.keyFor(p)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat: %w", err)
		}
		out = append(out, prunable.ObjectInfo{
			Key:     key,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeletePrefix removes the deployment directory. The count covers every regular file removed,
// including .tmp leftovers that List hides.
func (s *Storage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := prunable.CheckPrefix(prefix); err != nil {
		return 0, fmt.Errorf("delete %q: %w", prefix, err)
	}

	dir := filepath.Join(s.base, filepath.FromSlash(strings.TrimSuffix(prefix, prunable.Delimiter)))
	deleted := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := os.Remove(p); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			key, _ := s.keyFor(p)
			return fmt.Errorf("delete %s: %w", key, err)
		}
		deleted++
		return nil
	})
	if err != nil {
		return deleted, err
	}

	if err := os.RemoveAll(dir); err != nil {
		return deleted, fmt.Errorf("remove dir %s: %w", prefix, err)
	}
	return deleted, nil
}

// walkRoot is the directory that holds every key starting with prefix.
func (s *Storage) walkRoot(prefix string) (string, error) {
	if strings.Contains(prefix, "..") {
		return "", fmt.Errorf("list %q: %w", prefix, prunable.ErrInvalidPrefix)
	}
	dir := ""
	if i := strings.LastIndex(prefix, prunable.Delimiter); i >= 0 {
		dir = prefix[:i]
	}
	return filepath.Join(s.base, filepath.FromSlash(dir)), nil
}

func (s *Storage) keyFor(p string) (string, error) {
	rel, err := filepath.Rel(s.base, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
