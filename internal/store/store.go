// Package store implements the persisted JSON document stores shared by the
// bot and the HTTP server: user/guild settings, the user dictionary, the
// phrase table, the usage log, serif templates and quiz data.
//
// Every document is re-read before use and written back whole
// (last-writer-wins). Read-modify-write sequences hold the per-store mutex
// for their full duration; concurrent usage counter updates for the same
// user would otherwise lose increments.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "yomiage-bot/pkg/errors"
)

// Document file names.
const (
	UserSettingFile  = "user_setting.json"
	GuildSettingFile = "guild_setting.json"
	WordsFile        = "words.json"
	GlobalWordsFile  = "global_words.json"
	SoundLinksFile   = "sound_links.json"
	SoundLogFile     = "sound_log.json"
	SerifsFile       = "serifs.json"
	EnglishKanaFile  = "english_kana.json"
	IntroDataFile    = "intro_data.json"
)

// DefaultKey is the fallback entry used when a user or guild has no
// explicit settings document entry.
const DefaultKey = "default"

// UserSetting holds one user's voice parameters. All numeric parameters are
// stored in [0,100] and interpolated to engine-native ranges at synthesis
// time.
type UserSetting struct {
	Voice     string            `json:"voice"`
	Speed     float64           `json:"speed"`
	Tone      float64           `json:"tone"`
	Intone    float64           `json:"intone"`
	Threshold float64           `json:"threshold"`
	Volume    float64           `json:"volume"`
	Theme     map[string]string `json:"theme,omitempty"` // guild ID -> login jingle URL
}

// WatchChannel is a guild's auto-join configuration. Empty IDs mean
// auto-join is disarmed.
type WatchChannel struct {
	Voice string `json:"voice"`
	Text  string `json:"text"`
}

// GuildSetting holds one guild's configuration.
type GuildSetting struct {
	WatchChannel WatchChannel `json:"watch_channel_id"`
}

// PhraseEntry is one row of the phrase table. Table order is a priority
// order; IDs are one-based and index the usage log.
type PhraseEntry struct {
	ID      int    `json:"id"`
	Pattern string `json:"pattern"`
	Link    string `json:"link"`
}

// UsageLog counts phrase plays per user. Each user's slice is sized to
// SoundCount; slot i counts plays of phrase ID i+1.
type UsageLog struct {
	SoundCount int              `json:"sound_count"`
	UserData   map[string][]int `json:"user_data"`
}

// RewriteRule is one entry of the global regex substitution table.
// The table is an array because its order is authoritative.
type RewriteRule struct {
	Pattern string `json:"pattern"`
	Replace string `json:"replace"`
}

// IntroTrack is one quiz track.
type IntroTrack struct {
	Title string   `json:"title"`
	URL   string   `json:"url"`
	Tags  []string `json:"tags"`
}

// Store reads and writes the JSON documents under a data directory and a
// settings directory.
type Store struct {
	dataDir     string
	settingsDir string

	userMu  sync.Mutex
	guildMu sync.Mutex
	wordsMu sync.Mutex
	logMu   sync.Mutex
}

// New creates a Store rooted at the given directories.
func New(dataDir, settingsDir string) *Store {
	return &Store{
		dataDir:     dataDir,
		settingsDir: settingsDir,
	}
}

func defaultUserSetting() UserSetting {
	return UserSetting{
		Voice:     "normal",
		Speed:     50,
		Tone:      50,
		Intone:    50,
		Threshold: 50,
		Volume:    100,
	}
}

// UserSetting returns a user's settings, falling back to the document's
// "default" entry, then to builtin defaults.
func (s *Store) UserSetting(userID string) (UserSetting, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	return s.readUserSetting(userID)
}

func (s *Store) readUserSetting(userID string) (UserSetting, error) {
	all := make(map[string]UserSetting)
	if err := s.readJSON(s.settingsPath(UserSettingFile), &all); err != nil {
		if os.IsNotExist(err) {
			return defaultUserSetting(), nil
		}
		return UserSetting{}, apperrors.NewStoreReadFailed(UserSettingFile, err)
	}
	if setting, ok := all[userID]; ok {
		return setting, nil
	}
	if setting, ok := all[DefaultKey]; ok {
		return setting, nil
	}
	return defaultUserSetting(), nil
}

// UpdateUserSetting persists one user's settings (read-modify-write).
func (s *Store) UpdateUserSetting(userID string, setting UserSetting) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	all := make(map[string]UserSetting)
	if err := s.readJSON(s.settingsPath(UserSettingFile), &all); err != nil && !os.IsNotExist(err) {
		return apperrors.NewStoreReadFailed(UserSettingFile, err)
	}
	all[userID] = setting
	if err := s.writeJSON(s.settingsPath(UserSettingFile), all); err != nil {
		return apperrors.NewStoreWriteFailed(UserSettingFile, err)
	}
	return nil
}

// GuildSetting returns a guild's settings with the same fallback rules as
// UserSetting.
func (s *Store) GuildSetting(guildID string) (GuildSetting, error) {
	s.guildMu.Lock()
	defer s.guildMu.Unlock()

	all := make(map[string]GuildSetting)
	if err := s.readJSON(s.settingsPath(GuildSettingFile), &all); err != nil {
		if os.IsNotExist(err) {
			return GuildSetting{}, nil
		}
		return GuildSetting{}, apperrors.NewStoreReadFailed(GuildSettingFile, err)
	}
	if setting, ok := all[guildID]; ok {
		return setting, nil
	}
	return all[DefaultKey], nil
}

// UpdateGuildSetting persists one guild's settings (read-modify-write).
func (s *Store) UpdateGuildSetting(guildID string, setting GuildSetting) error {
	s.guildMu.Lock()
	defer s.guildMu.Unlock()

	all := make(map[string]GuildSetting)
	if err := s.readJSON(s.settingsPath(GuildSettingFile), &all); err != nil && !os.IsNotExist(err) {
		return apperrors.NewStoreReadFailed(GuildSettingFile, err)
	}
	all[guildID] = setting
	if err := s.writeJSON(s.settingsPath(GuildSettingFile), all); err != nil {
		return apperrors.NewStoreWriteFailed(GuildSettingFile, err)
	}
	return nil
}

// Words returns the user dictionary (surface form -> reading).
func (s *Store) Words() (map[string]string, error) {
	s.wordsMu.Lock()
	defer s.wordsMu.Unlock()

	words := make(map[string]string)
	if err := s.readJSON(s.dataPath(WordsFile), &words); err != nil {
		if os.IsNotExist(err) {
			return words, nil
		}
		return nil, apperrors.NewStoreReadFailed(WordsFile, err)
	}
	return words, nil
}

// PutWord registers or overwrites one dictionary entry.
func (s *Store) PutWord(surface, reading string) error {
	s.wordsMu.Lock()
	defer s.wordsMu.Unlock()

	words := make(map[string]string)
	if err := s.readJSON(s.dataPath(WordsFile), &words); err != nil && !os.IsNotExist(err) {
		return apperrors.NewStoreReadFailed(WordsFile, err)
	}
	words[surface] = reading
	if err := s.writeJSON(s.dataPath(WordsFile), words); err != nil {
		return apperrors.NewStoreWriteFailed(WordsFile, err)
	}
	return nil
}

// DeleteWord removes one dictionary entry.
func (s *Store) DeleteWord(surface string) error {
	s.wordsMu.Lock()
	defer s.wordsMu.Unlock()

	words := make(map[string]string)
	if err := s.readJSON(s.dataPath(WordsFile), &words); err != nil && !os.IsNotExist(err) {
		return apperrors.NewStoreReadFailed(WordsFile, err)
	}
	if _, ok := words[surface]; !ok {
		return apperrors.NewWordNotFound(surface)
	}
	delete(words, surface)
	if err := s.writeJSON(s.dataPath(WordsFile), words); err != nil {
		return apperrors.NewStoreWriteFailed(WordsFile, err)
	}
	return nil
}

// RewriteRules returns the global regex substitution table in table order.
func (s *Store) RewriteRules() ([]RewriteRule, error) {
	var rules []RewriteRule
	if err := s.readJSON(s.dataPath(GlobalWordsFile), &rules); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewStoreReadFailed(GlobalWordsFile, err)
	}
	return rules, nil
}

// EnglishReadings returns the English pronunciation table (lowercased word
// -> kana reading).
func (s *Store) EnglishReadings() (map[string]string, error) {
	readings := make(map[string]string)
	if err := s.readJSON(s.dataPath(EnglishKanaFile), &readings); err != nil {
		if os.IsNotExist(err) {
			return readings, nil
		}
		return nil, apperrors.NewStoreReadFailed(EnglishKanaFile, err)
	}
	return readings, nil
}

// Phrases returns the phrase table in priority order.
func (s *Store) Phrases() ([]PhraseEntry, error) {
	var entries []PhraseEntry
	if err := s.readJSON(s.dataPath(SoundLinksFile), &entries); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewStoreReadFailed(SoundLinksFile, err)
	}
	return entries, nil
}

// RecordPhraseUse increments one user's usage slot for a phrase ID
// (one-based). The whole read-modify-write runs under the log mutex.
func (s *Store) RecordPhraseUse(userID string, phraseID, phraseCount int) error {
	if phraseID < 1 {
		return fmt.Errorf("phrase id must be positive, got %d", phraseID)
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	log := UsageLog{UserData: make(map[string][]int)}
	if err := s.readJSON(s.dataPath(SoundLogFile), &log); err != nil && !os.IsNotExist(err) {
		return apperrors.NewStoreReadFailed(SoundLogFile, err)
	}
	if log.UserData == nil {
		log.UserData = make(map[string][]int)
	}
	if log.SoundCount < phraseCount {
		log.SoundCount = phraseCount
	}

	counts, ok := log.UserData[userID]
	if !ok {
		counts = make([]int, log.SoundCount)
	}
	// Grow existing vectors when the table gained entries since last write.
	for len(counts) < log.SoundCount {
		counts = append(counts, 0)
	}
	if phraseID > len(counts) {
		return fmt.Errorf("phrase id %d out of range for usage vector of %d", phraseID, len(counts))
	}
	counts[phraseID-1]++
	log.UserData[userID] = counts

	if err := s.writeJSON(s.dataPath(SoundLogFile), log); err != nil {
		return apperrors.NewStoreWriteFailed(SoundLogFile, err)
	}
	return nil
}

// Usage returns the current usage log.
func (s *Store) Usage() (UsageLog, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	log := UsageLog{UserData: make(map[string][]int)}
	if err := s.readJSON(s.dataPath(SoundLogFile), &log); err != nil && !os.IsNotExist(err) {
		return UsageLog{}, apperrors.NewStoreReadFailed(SoundLogFile, err)
	}
	if log.UserData == nil {
		log.UserData = make(map[string][]int)
	}
	return log, nil
}

// Serifs returns the bot line templates, or nil when the document is absent
// (callers fall back to builtin lines).
func (s *Store) Serifs() (map[string]string, error) {
	serifs := make(map[string]string)
	if err := s.readJSON(s.dataPath(SerifsFile), &serifs); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewStoreReadFailed(SerifsFile, err)
	}
	return serifs, nil
}

// IntroTracks returns the quiz track list.
func (s *Store) IntroTracks() ([]IntroTrack, error) {
	var tracks []IntroTrack
	if err := s.readJSON(s.dataPath(IntroDataFile), &tracks); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewStoreReadFailed(IntroDataFile, err)
	}
	return tracks, nil
}

func (s *Store) dataPath(name string) string {
	return filepath.Join(s.dataDir, name)
}

func (s *Store) settingsPath(name string) string {
	return filepath.Join(s.settingsDir, name)
}

func (s *Store) readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
