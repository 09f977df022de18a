package discord

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"yomiage-bot/internal/store"
	"yomiage-bot/internal/voice"
	apperrors "yomiage-bot/pkg/errors"
)

// Custom emoji mentions collapse to their name in dictionary arguments,
// e.g. <:kusa:12345> -> kusa.
var customEmojiPattern = regexp.MustCompile(`<a?:(\w+):\d+>`)

const embedColor = 0xad1457

// statusLabels maps user setting names to their display labels.
var statusLabels = map[string]string{
	"voice":  "ボイスの種類",
	"speed":  "話す速度",
	"tone":   "声のトーン",
	"intone": "声のイントネーション",
}

func (h *Handler) handleCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	args := strings.Fields(strings.TrimPrefix(m.Content, h.prefix))
	if len(args) == 0 {
		return
	}

	h.logger.Debug("dispatching command",
		zap.String("command", args[0]),
		zap.String("user_id", m.Author.ID),
		zap.String("guild_id", m.GuildID),
	)

	switch args[0] {
	case "voice", "vo":
		h.cmdVoice(s, m, args[1:])
	case "auto_join", "aj":
		h.cmdAutoJoin(s, m)
	case "join":
		h.cmdJoin(s, m)
	case "bye", "exit":
		h.cmdBye(s, m)
	case "stop", "st":
		h.cmdStop(s, m)
	case "wa", "word_add":
		h.cmdWordAdd(s, m, args[1:])
	case "wd", "word_delete":
		h.cmdWordDelete(s, m, args[1:])
	case "wl", "word_list":
		h.cmdWordList(s, m)
	case "sl", "sound_list":
		h.cmdSoundList(s, m)
	case "intro":
		if len(args) >= 2 && args[1] == "start" {
			tag := "all"
			if len(args) >= 3 {
				tag = args[2]
			}
			h.quiz.Start(s, m, tag)
		}
	case "theme", "th":
		h.cmdTheme(s, m, args[1:])
	}
}

func (h *Handler) cmdVoice(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf(
			"コマンドが間違っているわ…\n例えば、声のトーンを変更したい時は\n`%svoice tone 0~100の数値` と入力してみて", h.prefix))
		return
	}

	switch args[0] {
	case "status":
		h.showUserSetting(s, m)
	case "change", "ch":
		if len(args) < 2 {
			return
		}
		name := args[1]
		if !voice.IsKnownVoice(name) {
			s.ChannelMessageSend(m.ChannelID, h.serifs.Get("voice_not_exist", m.Author.Mention()))
			return
		}
		h.updateUserStatus(s, m, "voice", func(setting *store.UserSetting) (before string) {
			before = setting.Voice
			setting.Voice = name
			return before
		}, name)
	case "speed", "spd":
		h.updateNumericStatus(s, m, args, "speed")
	case "tone":
		h.updateNumericStatus(s, m, args, "tone")
	case "intone":
		h.updateNumericStatus(s, m, args, "intone")
	}
}

func (h *Handler) updateNumericStatus(s *discordgo.Session, m *discordgo.MessageCreate, args []string, status string) {
	if len(args) < 2 {
		return
	}
	param, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return
	}
	param = voice.Clamp(param, 0, 100)

	h.updateUserStatus(s, m, status, func(setting *store.UserSetting) (before string) {
		var field *float64
		switch status {
		case "speed":
			field = &setting.Speed
		case "tone":
			field = &setting.Tone
		case "intone":
			field = &setting.Intone
		}
		before = formatNum(*field)
		*field = param
		return before
	}, formatNum(param))
}

// updateUserStatus applies mutate to the author's setting document and
// announces the change.
func (h *Handler) updateUserStatus(s *discordgo.Session, m *discordgo.MessageCreate, status string, mutate func(*store.UserSetting) string, after string) {
	setting, err := h.manager.Store().UserSetting(m.Author.ID)
	if err != nil {
		h.logger.Warn("failed to read user setting", zap.Error(err))
		return
	}
	before := mutate(&setting)
	if err := h.manager.Store().UpdateUserSetting(m.Author.ID, setting); err != nil {
		h.logger.Warn("failed to update user setting", zap.Error(err))
		return
	}
	s.ChannelMessageSend(m.ChannelID,
		h.serifs.Get("status_change", m.Author.Mention(), statusLabels[status], before, after))
}

func (h *Handler) showUserSetting(s *discordgo.Session, m *discordgo.MessageCreate) {
	setting, err := h.manager.Store().UserSetting(m.Author.ID)
	if err != nil {
		h.logger.Warn("failed to read user setting", zap.Error(err))
		return
	}

	embed := &discordgo.MessageEmbed{
		Color: embedColor,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    fmt.Sprintf("%s のボイス読み上げ設定", m.Author.Username),
			IconURL: m.Author.AvatarURL(""),
		},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "ユーザー設定",
				Value: strings.Join([]string{
					fmt.Sprintf("声の種類　　　　： %s", setting.Voice),
					fmt.Sprintf("話す速度　　　　： %s", formatNum(setting.Speed)),
					fmt.Sprintf("トーン　　　　　： %s", formatNum(setting.Tone)),
					fmt.Sprintf("イントネーション： %s", formatNum(setting.Intone)),
				}, "\n"),
			},
		},
	}
	s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content: h.serifs.Get("show_user_status", m.Author.Mention()),
		Embed:   embed,
	})
}

func (h *Handler) cmdAutoJoin(s *discordgo.Session, m *discordgo.MessageCreate) {
	voiceChannelID := h.memberVoiceChannel(s, m.GuildID, m.Author.ID)
	if voiceChannelID == "" {
		s.ChannelMessageSend(m.ChannelID, "VCに接続した状態で設定してね")
		return
	}

	session := h.manager.Session(m.GuildID)
	armed, err := session.ToggleAutoJoin(voiceChannelID, m.ChannelID)
	if err != nil {
		h.logger.Warn("failed to toggle auto join", zap.Error(err))
		return
	}

	msg := m.Author.Mention() + " "
	if armed {
		msg += h.serifs.Get("auto_join_enable", h.channelName(s, voiceChannelID), "<#"+m.ChannelID+">")
	} else {
		msg += h.serifs.Get("auto_join_disable")
	}
	s.ChannelMessageSend(m.ChannelID, msg)
}

func (h *Handler) cmdJoin(s *discordgo.Session, m *discordgo.MessageCreate) {
	voiceChannelID := h.memberVoiceChannel(s, m.GuildID, m.Author.ID)
	if voiceChannelID == "" {
		s.ChannelMessageSend(m.ChannelID, "私を呼ぶ時はVCに入った状態で呼んで")
		return
	}
	h.manager.Session(m.GuildID).Join(voiceChannelID, m.ChannelID)
}

func (h *Handler) cmdBye(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := h.manager.Session(m.GuildID)
	if !session.Connected() {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf(
			"VCにいないわ…\n私をVCに呼びたいときは`%sjoin`と入力して", h.prefix))
		return
	}
	s.MessageReactionAdd(m.ChannelID, m.ID, "👋")
	session.Leave()
}

func (h *Handler) cmdStop(s *discordgo.Session, m *discordgo.MessageCreate) {
	session := h.manager.Session(m.GuildID)
	if !session.Connected() {
		s.ChannelMessageSend(m.ChannelID, "何も喋ってないわ。作業に集中しましょ")
		return
	}
	if session.StopPlayback() {
		s.MessageReactionAdd(m.ChannelID, m.ID, "⏹")
	}
}

func (h *Handler) cmdWordAdd(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 2 {
		s.ChannelMessageSend(m.ChannelID, h.serifs.Get("error_word_add", h.prefix))
		return
	}
	word := customEmojiPattern.ReplaceAllString(args[0], "$1")
	reading := customEmojiPattern.ReplaceAllString(args[1], "$1")

	if err := h.manager.Dictionary().Add(word, reading); err != nil {
		h.logger.Warn("failed to add dictionary entry", zap.Error(err))
		return
	}
	s.ChannelMessageSend(m.ChannelID, h.serifs.Get("complete_word_add", args[0], reading))
}

func (h *Handler) cmdWordDelete(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 1 {
		s.ChannelMessageSend(m.ChannelID, h.serifs.Get("error_word_delete", h.prefix))
		return
	}
	word := customEmojiPattern.ReplaceAllString(args[0], "$1")

	if err := h.manager.Dictionary().Delete(word); err != nil {
		if _, ok := err.(*apperrors.ErrWordNotFound); ok {
			s.ChannelMessageSend(m.ChannelID, h.serifs.Get("error_word_delete", h.prefix))
			return
		}
		h.logger.Warn("failed to delete dictionary entry", zap.Error(err))
		return
	}
	s.ChannelMessageSend(m.ChannelID, h.serifs.Get("complete_word_delete", args[0]))
}

func (h *Handler) cmdWordList(s *discordgo.Session, m *discordgo.MessageCreate) {
	entries, err := h.manager.Dictionary().Entries()
	if err != nil {
		h.logger.Warn("failed to list dictionary", zap.Error(err))
		return
	}

	lines := []string{h.serifs.Get("show_word_list") + "\n単語（読み）"}
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("・%s（%s）", entry.Surface, entry.Reading))
	}
	s.ChannelMessageSend(m.ChannelID, strings.Join(lines, "\n"))
}

func (h *Handler) cmdSoundList(s *discordgo.Session, m *discordgo.MessageCreate) {
	phrases, err := h.manager.Store().Phrases()
	if err != nil {
		h.logger.Warn("failed to list phrases", zap.Error(err))
		return
	}

	lines := []string{"登録されている音源はこれよ"}
	for _, p := range phrases {
		lines = append(lines, fmt.Sprintf("・%s", p.Pattern))
	}
	s.ChannelMessageSend(m.ChannelID, strings.Join(lines, "\n"))
}

func (h *Handler) cmdTheme(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) < 1 {
		return
	}
	switch args[0] {
	case "change", "ch":
		if len(args) < 2 {
			return
		}
		url := args[len(args)-1]

		targetID := m.Author.ID
		if len(m.Mentions) > 0 {
			targetID = m.Mentions[0].ID
		}
		if _, err := s.State.Member(m.GuildID, targetID); err != nil {
			return
		}
		// Changing someone else's jingle needs nickname management rights.
		if targetID != m.Author.ID && !h.canManageNicknames(s, m.ChannelID, m.Author.ID) {
			return
		}

		if err := h.theme.SetTheme(targetID, m.GuildID, url); err != nil {
			h.logger.Warn("failed to set login theme", zap.Error(err))
			return
		}
		s.MessageReactionAdd(m.ChannelID, m.ID, "🎺")
	}
}

// memberVoiceChannel returns the voice channel a member currently occupies,
// or empty.
func (h *Handler) memberVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

func (h *Handler) channelName(s *discordgo.Session, channelID string) string {
	ch, err := s.State.Channel(channelID)
	if err != nil {
		return channelID
	}
	return ch.Name
}

func (h *Handler) canManageNicknames(s *discordgo.Session, channelID, userID string) bool {
	perms, err := s.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionManageNicknames != 0
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
