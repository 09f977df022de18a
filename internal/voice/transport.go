// Package voice implements the per-guild read-aloud pipeline: voice channel
// attachment, audio acquisition (canned clip or synthesized speech) and
// playback with bounded busy-retry.
package voice

// ChannelInfo identifies a resolved text channel.
type ChannelInfo struct {
	ID      string
	GuildID string
}

// Conn is an active voice connection. The connection is the exclusive
// playback resource: one opus stream at a time.
type Conn interface {
	GuildID() string
	ChannelID() string
	Speaking(bool) error
	OpusSend() chan<- []byte
	Disconnect() error
}

// Transport is the chat/voice gateway the sessions drive. The Discord
// adapter implements it; tests use fakes.
type Transport interface {
	JoinVoice(guildID, channelID string) (Conn, error)
	SendMessage(channelID, content string) error
	Channel(channelID string) (ChannelInfo, error)
	// NonBotMembers counts human members currently in a voice channel.
	NonBotMembers(guildID, channelID string) int
}

// SerifFunc renders a named bot line with positional arguments. The Discord
// layer supplies it from the serif template store.
type SerifFunc func(name string, args ...string) string
