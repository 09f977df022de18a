// Package theme plays a member's personal login jingle when they join a
// voice channel the bot is reading for.
package theme

import (
	"context"

	"go.uber.org/zap"

	"yomiage-bot/internal/store"
	"yomiage-bot/internal/voice"
)

// Feature implements the login jingle.
type Feature struct {
	store    *store.Store
	acquirer *voice.Acquirer
	manager  *voice.Manager
	log      *zap.Logger
}

// New creates the login theme feature.
func New(s *store.Store, acquirer *voice.Acquirer, manager *voice.Manager, log *zap.Logger) *Feature {
	return &Feature{store: s, acquirer: acquirer, manager: manager, log: log}
}

// HandleVoiceState plays the joining member's jingle, if one is configured
// for this guild and the bot holds a voice connection here. Every failure
// is soft: the jingle is simply skipped.
func (f *Feature) HandleVoiceState(ctx context.Context, ev voice.VoiceStateEvent) {
	if ev.IsBot || ev.BeforeChannelID == ev.AfterChannelID || ev.AfterChannelID == "" {
		return
	}

	session := f.manager.Session(ev.GuildID)
	conn := session.Conn()
	if conn == nil {
		return
	}

	setting, err := f.store.UserSetting(ev.UserID)
	if err != nil {
		f.log.Warn("failed to read user setting for theme", zap.Error(err))
		return
	}
	clipURL := setting.Theme[ev.GuildID]
	if clipURL == "" {
		return
	}

	asset, err := f.acquirer.FetchClip(ctx, clipURL)
	if err != nil {
		f.log.Warn("failed to fetch login theme",
			zap.String("user_id", ev.UserID), zap.Error(err))
		return
	}
	if asset == nil {
		return
	}

	if err := session.Player().Play(conn, asset); err != nil {
		f.log.Debug("login theme playback skipped",
			zap.String("user_id", ev.UserID), zap.Error(err))
	}
}

// SetTheme persists a member's jingle URL for one guild.
func (f *Feature) SetTheme(userID, guildID, clipURL string) error {
	setting, err := f.store.UserSetting(userID)
	if err != nil {
		return err
	}
	if setting.Theme == nil {
		setting.Theme = make(map[string]string)
	}
	setting.Theme[guildID] = clipURL
	return f.store.UpdateUserSetting(userID, setting)
}
