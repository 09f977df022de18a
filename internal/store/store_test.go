package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "data"), filepath.Join(dir, "settings"))
}

func TestUserSetting_MissingDocument(t *testing.T) {
	s := newTestStore(t)

	setting, err := s.UserSetting("12345")
	require.NoError(t, err)
	assert.Equal(t, "normal", setting.Voice)
	assert.Equal(t, float64(50), setting.Speed)
	assert.Equal(t, float64(100), setting.Volume)
}

func TestUserSetting_FallsBackToDefaultEntry(t *testing.T) {
	s := newTestStore(t)

	custom := UserSetting{Voice: "happy", Speed: 70, Tone: 50, Intone: 50, Threshold: 50, Volume: 100}
	require.NoError(t, s.UpdateUserSetting(DefaultKey, custom))

	setting, err := s.UserSetting("unknown-user")
	require.NoError(t, err)
	assert.Equal(t, "happy", setting.Voice)
	assert.Equal(t, float64(70), setting.Speed)
}

func TestUpdateUserSetting_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := UserSetting{Voice: "male", Speed: 30, Tone: 60, Intone: 40, Threshold: 50, Volume: 100}
	require.NoError(t, s.UpdateUserSetting("42", want))

	got, err := s.UserSetting("42")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Other users are untouched
	other, err := s.UserSetting("43")
	require.NoError(t, err)
	assert.Equal(t, "normal", other.Voice)
}

func TestGuildSetting_MissingDocument(t *testing.T) {
	s := newTestStore(t)

	setting, err := s.GuildSetting("guild1")
	require.NoError(t, err)
	assert.Empty(t, setting.WatchChannel.Voice)
	assert.Empty(t, setting.WatchChannel.Text)
}

func TestUpdateGuildSetting_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := GuildSetting{WatchChannel: WatchChannel{Voice: "v1", Text: "t1"}}
	require.NoError(t, s.UpdateGuildSetting("guild1", want))

	got, err := s.GuildSetting("guild1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWords_PutAndDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutWord("草", "くさ"))
	require.NoError(t, s.PutWord("www", "わらわら"))

	words, err := s.Words()
	require.NoError(t, err)
	assert.Equal(t, "くさ", words["草"])
	assert.Len(t, words, 2)

	require.NoError(t, s.DeleteWord("草"))
	words, err = s.Words()
	require.NoError(t, err)
	assert.NotContains(t, words, "草")
}

func TestDeleteWord_Missing(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteWord("nothing")
	assert.Error(t, err)
}

func TestRecordPhraseUse_NewUser(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordPhraseUse("u1", 2, 3))

	usage, err := s.Usage()
	require.NoError(t, err)
	assert.Equal(t, 3, usage.SoundCount)
	assert.Equal(t, []int{0, 1, 0}, usage.UserData["u1"])
}

func TestRecordPhraseUse_GrowsVector(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordPhraseUse("u1", 1, 2))
	// Table gained two entries since the last write
	require.NoError(t, s.RecordPhraseUse("u1", 4, 4))

	usage, err := s.Usage()
	require.NoError(t, err)
	assert.Equal(t, 4, usage.SoundCount)
	assert.Equal(t, []int{1, 0, 0, 1}, usage.UserData["u1"])
}

func TestRecordPhraseUse_InvalidID(t *testing.T) {
	s := newTestStore(t)

	assert.Error(t, s.RecordPhraseUse("u1", 0, 3))
}

func TestPhrases_TableOrderPreserved(t *testing.T) {
	s := newTestStore(t)

	doc := `[
    {"id": 1, "pattern": "おはよう", "link": "https://example.com/a.mp3"},
    {"id": 2, "pattern": "おは.*", "link": "https://example.com/b.mp3"}
]`
	require.NoError(t, os.MkdirAll(s.dataDir, 0o755))
	require.NoError(t, os.WriteFile(s.dataPath(SoundLinksFile), []byte(doc), 0o644))

	entries, err := s.Phrases()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].ID)
	assert.Equal(t, "おはよう", entries[0].Pattern)
	assert.Equal(t, 2, entries[1].ID)
}

func TestRewriteRules_MissingDocument(t *testing.T) {
	s := newTestStore(t)

	rules, err := s.RewriteRules()
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestIntroTracks(t *testing.T) {
	s := newTestStore(t)

	doc := `[{"title": "song", "url": "https://example.com/v", "tags": ["anime"]}]`
	require.NoError(t, os.MkdirAll(s.dataDir, 0o755))
	require.NoError(t, os.WriteFile(s.dataPath(IntroDataFile), []byte(doc), 0o644))

	tracks, err := s.IntroTracks()
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "song", tracks[0].Title)
	assert.Equal(t, []string{"anime"}, tracks[0].Tags)
}
