// Package discord adapts discordgo to the bot's transport interfaces and
// implements the user-facing command surface.
package discord

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"yomiage-bot/internal/voice"
	apperrors "yomiage-bot/pkg/errors"
)

// Gateway implements voice.Transport over a discordgo session.
type Gateway struct {
	session *discordgo.Session
	log     *zap.Logger
}

// NewGateway wraps a discordgo session.
func NewGateway(session *discordgo.Session, log *zap.Logger) *Gateway {
	return &Gateway{session: session, log: log}
}

// JoinVoice connects to a voice channel (unmuted, deafened; the bot only
// speaks).
func (g *Gateway) JoinVoice(guildID, channelID string) (voice.Conn, error) {
	vc, err := g.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	return &gatewayConn{vc: vc}, nil
}

// SendMessage posts a text message.
func (g *Gateway) SendMessage(channelID, content string) error {
	if _, err := g.session.ChannelMessageSend(channelID, content); err != nil {
		g.log.Warn("failed to send message", zap.String("channel_id", channelID), zap.Error(err))
		return apperrors.NewDiscordMessageSendFailed(channelID, err)
	}
	return nil
}

// Channel resolves a channel, preferring the state cache.
func (g *Gateway) Channel(channelID string) (voice.ChannelInfo, error) {
	ch, err := g.session.State.Channel(channelID)
	if err != nil {
		ch, err = g.session.Channel(channelID)
	}
	if err != nil {
		return voice.ChannelInfo{}, apperrors.NewDiscordChannelNotFound(channelID)
	}
	return voice.ChannelInfo{ID: ch.ID, GuildID: ch.GuildID}, nil
}

// NonBotMembers counts human members currently in a voice channel.
func (g *Gateway) NonBotMembers(guildID, channelID string) int {
	guild, err := g.session.State.Guild(guildID)
	if err != nil {
		return 0
	}
	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		member, err := g.session.State.Member(guildID, vs.UserID)
		if err != nil || member.User == nil || member.User.Bot {
			continue
		}
		count++
	}
	return count
}

// gatewayConn implements voice.Conn over a discordgo voice connection.
type gatewayConn struct {
	vc *discordgo.VoiceConnection
}

func (c *gatewayConn) GuildID() string {
	return c.vc.GuildID
}

func (c *gatewayConn) ChannelID() string {
	return c.vc.ChannelID
}

func (c *gatewayConn) Speaking(b bool) error {
	return c.vc.Speaking(b)
}

func (c *gatewayConn) OpusSend() chan<- []byte {
	return c.vc.OpusSend
}

func (c *gatewayConn) Disconnect() error {
	return c.vc.Disconnect()
}
