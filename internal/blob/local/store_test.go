package localblob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

func TestStore_PutGetExists(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	require.NoError(t, s.Put(ctx, "treemap_metadata/2026-01-02.json", strings.NewReader(`{"date":"2026-01-02"}`), "application/json"))

	ok, err := s.Exists(ctx, "treemap_metadata/2026-01-02.json")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, "treemap_metadata/2026-01-02.json")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"date":"2026-01-02"}`, string(body))

	ok, err = s.Exists(ctx, "treemap_metadata/missing.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "treemap_metadata/missing.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	require.NoError(t, s.Put(ctx, "a.txt", strings.NewReader("one"), ""))
	require.NoError(t, s.Put(ctx, "a.txt", strings.NewReader("two"), ""))

	rc, err := s.Get(ctx, "a.txt")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "two", string(body))
}

func TestStore_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	for _, p := range []string{"treemaps/2026-01-02_treemap.html", "treemaps/2025-12-31_treemap.html", "data/2026-01-02.csv"} {
		require.NoError(t, s.Put(ctx, p, strings.NewReader("x"), ""))
	}

	infos, err := s.List(ctx, "treemaps/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "treemaps/2025-12-31_treemap.html", infos[0].Path)
	assert.Equal(t, "treemaps/2026-01-02_treemap.html", infos[1].Path)
	assert.Equal(t, int64(1), infos[0].Size)
}

func TestStore_ListMissingRoot(t *testing.T) {
	s := New(t.TempDir() + "/nope")
	infos, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestStore_RejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	_, err := s.Get(ctx, "../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	err = s.Put(ctx, "treemaps/../../x", strings.NewReader("x"), "")
	assert.Error(t, err)
}
