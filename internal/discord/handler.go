package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"yomiage-bot/internal/quiz"
	"yomiage-bot/internal/theme"
	"yomiage-bot/internal/voice"
)

// Handler routes Discord gateway events into the read-aloud sessions, the
// command surface, the intro quiz and the login theme feature.
type Handler struct {
	manager *voice.Manager
	quiz    *quiz.Feature
	theme   *theme.Feature
	serifs  *Serifs
	prefix  string
	logger  *zap.Logger
}

// NewHandler creates the event handler.
func NewHandler(manager *voice.Manager, quizFeature *quiz.Feature, themeFeature *theme.Feature, serifs *Serifs, prefix string, logger *zap.Logger) *Handler {
	return &Handler{
		manager: manager,
		quiz:    quizFeature,
		theme:   themeFeature,
		serifs:  serifs,
		prefix:  prefix,
		logger:  logger,
	}
}

// HandleMessage processes a Discord message: commands are dispatched,
// everything else is considered for reading aloud.
func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID == "" {
		return
	}

	if isCommand(m.Content, h.prefix) {
		h.handleCommand(s, m)
		return
	}

	session := h.manager.Session(m.GuildID)
	session.HandleMessage(context.Background(), voice.MessageEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		Content:   m.ContentWithMentionsReplaced(),
	})
}

// HandleVoiceStateUpdate feeds membership changes to the guild session and
// the login theme feature.
func (h *Handler) HandleVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.GuildID == "" {
		return
	}

	isBot := false
	if v.Member != nil && v.Member.User != nil {
		isBot = v.Member.User.Bot
	}
	before := ""
	if v.BeforeUpdate != nil {
		before = v.BeforeUpdate.ChannelID
	}

	ev := voice.VoiceStateEvent{
		GuildID:         v.GuildID,
		UserID:          v.UserID,
		IsBot:           isBot,
		BeforeChannelID: before,
		AfterChannelID:  v.ChannelID,
	}

	h.manager.Session(v.GuildID).HandleVoiceState(ev)
	h.theme.HandleVoiceState(context.Background(), ev)
}

// HandleReactionAdd forwards reactions to the quiz panel.
func (h *Handler) HandleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	h.quiz.HandleReaction(s, r)
}

func isCommand(content, prefix string) bool {
	return len(content) > len(prefix) && content[:len(prefix)] == prefix
}
