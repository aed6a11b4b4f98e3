package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/deployprune/internal/storage/prunable"
)

func writeObject(t *testing.T, base, key string, mod time.Time) {
	t.Helper()
	p := filepath.Join(base, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(key), 0o644))
	require.NoError(t, os.Chtimes(p, mod, mod))
}

func newBucket(t *testing.T) *Storage {
	t.Helper()
	root := t.TempDir()
	s := New("local", root, "deployments")
	require.NoError(t, os.MkdirAll(s.BasePath(), 0o755))
	return s
}

func TestListPrefixesReturnsTopLevelDirectories(t *testing.T) {
	s := newBucket(t)
	now := time.Now()
	writeObject(t, s.BasePath(), "beta_2000/index.html", now)
	writeObject(t, s.BasePath(), "alpha_1000/css/font.css", now)
	writeObject(t, s.BasePath(), "robots.txt", now)

	got, err := s.ListPrefixes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha_1000/", "beta_2000/"}, got)
}

func TestListPrefixesMissingBucket(t *testing.T) {
	s := New("local", t.TempDir(), "nope")
	_, err := s.ListPrefixes(context.Background())
	require.Error(t, err)
}

func TestListReturnsKeysInOrderWithLimit(t *testing.T) {
	s := newBucket(t)
	mod := time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)
	writeObject(t, s.BasePath(), "site_1/root.html", mod)
	writeObject(t, s.BasePath(), "site_1/css/font.css", mod)
	writeObject(t, s.BasePath(), "site_1/base.html", mod)
	writeObject(t, s.BasePath(), "site_10/index.html", mod)

	all, err := s.List(context.Background(), "site_1/", 0)
	require.NoError(t, err)
	keys := make([]string, 0, len(all))
	for _, o := range all {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"site_1/base.html", "site_1/css/font.css", "site_1/root.html"}, keys)

	first, err := s.List(context.Background(), "site_1/", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "site_1/base.html", first[0].Key)
	assert.True(t, first[0].ModTime.Equal(mod))
}

func TestListMissingPrefixIsEmpty(t *testing.T) {
	s := newBucket(t)
	got, err := s.List(context.Background(), "ghost/", 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeletePrefixOnlyRemovesThatDeployment(t *testing.T) {
	s := newBucket(t)
	now := time.Now()
	writeObject(t, s.BasePath(), "site_1/index.html", now)
	writeObject(t, s.BasePath(), "site_1/img/hey.png", now)
	writeObject(t, s.BasePath(), "site_10/index.html", now)

	n, err := s.DeletePrefix(context.Background(), "site_1/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = os.Stat(filepath.Join(s.BasePath(), "site_1"))
	assert.True(t, os.IsNotExist(err))

	left, err := s.List(context.Background(), "site_10/", 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestDeletePrefixRejectsUnscopedPrefix(t *testing.T) {
	s := newBucket(t)
	writeObject(t, s.BasePath(), "site_1/index.html", time.Now())

	for _, p := range []string{"", "/", "site", "site_1/sub/"} {
		_, err := s.DeletePrefix(context.Background(), p)
		assert.True(t, errors.Is(err, prunable.ErrInvalidPrefix), "prefix %q", p)
	}

	left, err := s.List(context.Background(), "site_1/", 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestDeletePrefixCountsTmpLeftovers(t *testing.T) {
	s := newBucket(t)
	now := time.Now()
	writeObject(t, s.BasePath(), "site_2/index.html", now)
	writeObject(t, s.BasePath(), "site_2/app.js.tmp", now)
	writeObject(t, s.BasePath(), "site_2/css/main.css.tmp", now)

	listed, err := s.List(context.Background(), "site_2/", 0)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	n, err := s.DeletePrefix(context.Background(), "site_2/")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = os.Stat(filepath.Join(s.BasePath(), "site_2"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeletePrefixMissingDeployment(t *testing.T) {
	s := newBucket(t)

	n, err := s.DeletePrefix(context.Background(), "site_9/")
	require.NoError(t, err)
	assert.Zero(t, n)
}
