package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sps2/pm/pkg/hash"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestAddBytes_ComputesBlake3Hash(t *testing.T) {
	s := newTestStore(t)

	h, err := s.AddBytes(strings.NewReader("package contents"))
	require.NoError(t, err)

	assert.Equal(t, hash.FromBytes([]byte("package contents")), h)
	assert.True(t, s.Contains(h))
}

func TestAddBytes_DeduplicatesIdenticalContent(t *testing.T) {
	s := newTestStore(t)

	first, err := s.AddBytes(strings.NewReader("same bytes"))
	require.NoError(t, err)

	second, err := s.AddBytes(strings.NewReader("same bytes"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAddBytes_ObjectIsReadOnly(t *testing.T) {
	s := newTestStore(t)

	h, err := s.AddBytes(strings.NewReader("sealed"))
	require.NoError(t, err)

	info, err := os.Stat(s.PathOf(h))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())
}

func TestAddBytes_SweepsLeftoverTmpOnRestart(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	leftover := filepath.Join(root, "tmp", "stale-upload")
	require.NoError(t, os.WriteFile(leftover, []byte("partial"), 0o644))

	_, err = New(root)
	require.NoError(t, err)

	_, statErr := os.Stat(leftover)
	assert.True(t, os.IsNotExist(statErr))
	_ = s
}

func TestContains_FalseForUnknownHash(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Contains(hash.FromBytes([]byte("never added"))))
}

func TestSizeOf_MatchesContentLength(t *testing.T) {
	s := newTestStore(t)

	h, err := s.AddBytes(strings.NewReader("twelve bytes"))
	require.NoError(t, err)

	size, err := s.SizeOf(h)
	require.NoError(t, err)
	assert.Equal(t, int64(len("twelve bytes")), size)
}

func TestLinkInto_CopiesWhenPermsDiffer(t *testing.T) {
	s := newTestStore(t)

	h, err := s.AddBytes(strings.NewReader("#!/bin/sh\necho hi\n"))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, s.LinkInto(h, dest, 0o755))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	contents, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(contents))
}

func TestLinkInto_MissingObjectFails(t *testing.T) {
	s := newTestStore(t)
	dest := filepath.Join(t.TempDir(), "out")

	err := s.LinkInto(hash.FromBytes([]byte("never stored")), dest, 0o444)
	assert.Error(t, err)
}

func TestGarbageCollect_RemovesOnlyUnreferencedObjects(t *testing.T) {
	s := newTestStore(t)

	keep, err := s.AddBytes(strings.NewReader("keep me"))
	require.NoError(t, err)
	drop, err := s.AddBytes(strings.NewReader("drop me"))
	require.NoError(t, err)

	stats, err := s.GarbageCollect(map[hash.Hash]struct{}{keep: {}})
	require.NoError(t, err)

	assert.True(t, s.Contains(keep))
	assert.False(t, s.Contains(drop))
	assert.Equal(t, int64(1), stats.ObjectsDeleted)
	assert.Equal(t, int64(len("drop me")), stats.BytesReclaimed)
}

func TestQuarantine_MovesObjectOutOfObjectsTree(t *testing.T) {
	s := newTestStore(t)

	h, err := s.AddBytes(strings.NewReader("corrupted later"))
	require.NoError(t, err)

	dest, err := s.Quarantine(h)
	require.NoError(t, err)

	assert.False(t, s.Contains(h))
	_, statErr := os.Stat(dest)
	assert.NoError(t, statErr)
}
