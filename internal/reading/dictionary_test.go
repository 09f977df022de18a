package reading

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yomiage-bot/internal/store"
)

func newTestDictionary(t *testing.T) *Dictionary {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "data"), filepath.Join(dir, "settings"))
	return NewDictionary(st)
}

func TestDictionary_EntriesLongestFirst(t *testing.T) {
	d := newTestDictionary(t)
	require.NoError(t, d.Add("東京", "とうきょう"))
	require.NoError(t, d.Add("東京タワー", "とうきょうたわー"))
	require.NoError(t, d.Add("京", "きょう"))

	entries, err := d.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "東京タワー", entries[0].Surface)
	assert.Equal(t, "東京", entries[1].Surface)
	assert.Equal(t, "京", entries[2].Surface)
}

func TestDictionary_EqualLengthOrderIsDeterministic(t *testing.T) {
	d := newTestDictionary(t)
	require.NoError(t, d.Add("bb", "びー"))
	require.NoError(t, d.Add("aa", "えー"))

	entries, err := d.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "aa", entries[0].Surface)
	assert.Equal(t, "bb", entries[1].Surface)
}

func TestDictionary_AddOverwrites(t *testing.T) {
	d := newTestDictionary(t)
	require.NoError(t, d.Add("草", "そう"))
	require.NoError(t, d.Add("草", "くさ"))

	entries, err := d.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "くさ", entries[0].Reading)
}

func TestDictionary_DeleteMissing(t *testing.T) {
	d := newTestDictionary(t)
	assert.Error(t, d.Delete("nothing"))
}
