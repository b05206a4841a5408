package prompt_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdcanvas/crowdcanvas/internal/prompt"
)

func newTestStore(t *testing.T) (*prompt.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "base_prompt.txt")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := prompt.NewStore(path, log)
	require.NoError(t, err)
	return store, path
}

func TestNewStore_SeedsDefault(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, prompt.DefaultBasePrompt, string(data))
	assert.Equal(t, prompt.DefaultBasePrompt, store.Current())
}

func TestNewStore_KeepsExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "base_prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("watercolor sketches"), 0o644))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := prompt.NewStore(path, log)
	require.NoError(t, err)
	assert.Equal(t, "watercolor sketches", store.Current())
}

func TestNewStore_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := prompt.NewStore("", nil)
	assert.Error(t, err)
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t)

	require.NoError(t, store.Update("  neon cyberpunk alleys  "))
	assert.Equal(t, "neon cyberpunk alleys", store.Current(), "whitespace is trimmed")

	// The update survives a fresh store on the same file.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reopened, err := prompt.NewStore(path, log)
	require.NoError(t, err)
	assert.Equal(t, "neon cyberpunk alleys", reopened.Current())
}

func TestUpdate_RejectsEmpty(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	assert.Error(t, store.Update(""))
	assert.Error(t, store.Update("   \n\t  "))
	assert.Equal(t, prompt.DefaultBasePrompt, store.Current(), "failed update leaves prompt intact")
}

func TestCurrent_FallsBackWhenFileEmptied(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("   "), 0o644))

	assert.Equal(t, prompt.DefaultBasePrompt, store.Current())
}

func TestCurrent_FallsBackWhenFileRemoved(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t)
	require.NoError(t, os.Remove(path))

	assert.Equal(t, prompt.DefaultBasePrompt, store.Current())
}
