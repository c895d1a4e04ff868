package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestDocumentStore_AppendAndDedup(t *testing.T) {
	// Given: an empty store
	s := NewDocumentStore()

	// When: two texts and a duplicate are appended
	a, added := s.Append("the sky is blue", map[string]string{"source": "test"})
	require.True(t, added)
	b, added := s.Append("grass is green", nil)
	require.True(t, added)
	dup, added := s.Append("the sky is blue", nil)

	// Then: positions are ordinal and the duplicate is not stored
	assert.False(t, added)
	assert.Equal(t, 0, a.ID)
	assert.Equal(t, 1, b.ID)
	assert.Equal(t, a, dup)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"the sky is blue", "grass is green"}, s.Texts())

	pos, ok := s.Lookup("grass is green")
	assert.True(t, ok)
	assert.Equal(t, 1, pos)

	got, ok := s.Get(0)
	require.True(t, ok)
	assert.Equal(t, "test", got.Metadata["source"])
	_, ok = s.Get(2)
	assert.False(t, ok)
	_, ok = s.Get(-1)
	assert.False(t, ok)
}

func TestDocumentStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DocStoreFile)
	s := NewDocumentStore()
	s.Append("alpha", nil)
	s.Append("beta", nil)
	require.NoError(t, s.Save(path))

	// The file is a plain JSON array of texts
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["alpha","beta"]`, string(data))

	loaded := NewDocumentStore()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, []string{"alpha", "beta"}, loaded.Texts())
	_, added := loaded.Append("beta", nil)
	assert.False(t, added)
}

func TestDocumentStore_LoadKeepsDuplicatePositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), DocStoreFile)
	require.NoError(t, os.WriteFile(path, []byte(`["x","y","x"]`), 0o644))

	s := NewDocumentStore()
	require.NoError(t, s.Load(path))

	assert.Equal(t, 3, s.Len())
	pos, _ := s.Lookup("x")
	assert.Equal(t, 0, pos)
}

func TestDocumentStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	s := NewDocumentStore()

	err := s.Load(filepath.Join(dir, "missing.json"))
	assert.Equal(t, ragerrors.ErrCodeFileNotFound, ragerrors.GetCode(err))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"not":"an array"}`), 0o644))
	err = s.Load(bad)
	assert.Equal(t, ragerrors.ErrCodeFileCorrupt, ragerrors.GetCode(err))
}

func TestDocumentStore_Reset(t *testing.T) {
	s := NewDocumentStore()
	s.Append("one", nil)

	s.Reset()

	assert.Equal(t, 0, s.Len())
	_, ok := s.Lookup("one")
	assert.False(t, ok)
	doc, added := s.Append("one", nil)
	assert.True(t, added)
	assert.Equal(t, 0, doc.ID)
}
