package phrase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yomiage-bot/internal/store"
)

func newTestResolver(t *testing.T, phrasesJSON string) (*Resolver, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dataDir, store.SoundLinksFile), []byte(phrasesJSON), 0o644))

	st := store.New(dataDir, filepath.Join(dir, "settings"))
	return NewResolver(st, zap.NewNop()), st
}

func TestResolve_FirstMatchWins(t *testing.T) {
	r, _ := newTestResolver(t, `[
    {"id": 1, "pattern": "おは.*", "link": "https://example.com/first.mp3"},
    {"id": 2, "pattern": "おはよう", "link": "https://example.com/second.mp3"}
]`)

	link, ok, err := r.Resolve("おはよう", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/first.mp3", link)
}

func TestResolve_FullMatchOnly(t *testing.T) {
	r, _ := newTestResolver(t, `[
    {"id": 1, "pattern": "おはよう", "link": "https://example.com/a.mp3"}
]`)

	_, ok, err := r.Resolve("おはようございます", "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolve_CaseInsensitive(t *testing.T) {
	r, _ := newTestResolver(t, `[
    {"id": 1, "pattern": "gg", "link": "https://example.com/gg.mp3"}
]`)

	link, ok, err := r.Resolve("GG", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/gg.mp3", link)
}

func TestResolve_FullwidthTildeNormalized(t *testing.T) {
	r, _ := newTestResolver(t, `[
    {"id": 1, "pattern": "おつ〜", "link": "https://example.com/otsu.mp3"}
]`)

	_, ok, err := r.Resolve("おつ～", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolve_Miss(t *testing.T) {
	r, _ := newTestResolver(t, `[
    {"id": 1, "pattern": "おはよう", "link": "https://example.com/a.mp3"}
]`)

	link, ok, err := r.Resolve("こんばんは", "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, link)
}

func TestResolve_RecordsUsageOnce(t *testing.T) {
	r, st := newTestResolver(t, `[
    {"id": 1, "pattern": "おはよう", "link": "https://example.com/a.mp3"},
    {"id": 2, "pattern": "おやすみ", "link": "https://example.com/b.mp3"},
    {"id": 3, "pattern": "おつかれ", "link": "https://example.com/c.mp3"}
]`)

	_, ok, err := r.Resolve("おやすみ", "u1")
	require.NoError(t, err)
	require.True(t, ok)

	usage, err := st.Usage()
	require.NoError(t, err)
	assert.Equal(t, 3, usage.SoundCount)
	assert.Equal(t, []int{0, 1, 0}, usage.UserData["u1"])
}

func TestResolve_SkipsInvalidPattern(t *testing.T) {
	r, _ := newTestResolver(t, `[
    {"id": 1, "pattern": "([", "link": "https://example.com/bad.mp3"},
    {"id": 2, "pattern": "おはよう", "link": "https://example.com/good.mp3"}
]`)

	link, ok, err := r.Resolve("おはよう", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/good.mp3", link)
}

func TestResolve_EmptyTable(t *testing.T) {
	r, _ := newTestResolver(t, `[]`)

	_, ok, err := r.Resolve("おはよう", "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}
