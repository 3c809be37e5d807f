package credential

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveLoad(t *testing.T) {
	t.Setenv(EnvVar, "")
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir, nil)

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, " sk-ant-123 "))

	key, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-ant-123", key)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, FileName))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestFileStore_EnvFallback(t *testing.T) {
	t.Setenv(EnvVar, "from-env")
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)

	key, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "from-env", key)

	require.NoError(t, s.Save(ctx, "from-file"))
	key, _, _ = s.Load(ctx)
	assert.Equal(t, "from-file", key, "saved key wins over environment")
}

func TestFileStore_CorruptFileIsNoKey(t *testing.T) {
	t.Setenv(EnvVar, "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{oops"), 0600))

	_, ok, err := NewFileStore(dir, nil).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_EmptySaveClears(t *testing.T) {
	t.Setenv(EnvVar, "")
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)

	require.NoError(t, s.Save(ctx, "abc"))
	require.NoError(t, s.Save(ctx, ""))

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatic(t *testing.T) {
	key, ok, err := Static("k").Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "k", key)

	_, ok, _ = Static("").Load(context.Background())
	assert.False(t, ok)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********cdef", Mask("sk-abcdef"))
	assert.Equal(t, "***", Mask("abc"))
}
