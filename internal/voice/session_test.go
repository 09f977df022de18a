package voice

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yomiage-bot/internal/reading"
	"yomiage-bot/internal/store"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

type fakeConn struct {
	guildID   string
	channelID string

	mu           sync.Mutex
	disconnected bool
	speaking     []bool
	opusCh       chan []byte
}

func newFakeConn(guildID, channelID string) *fakeConn {
	return &fakeConn{guildID: guildID, channelID: channelID, opusCh: make(chan []byte, 64)}
}

func (c *fakeConn) GuildID() string   { return c.guildID }
func (c *fakeConn) ChannelID() string { return c.channelID }

func (c *fakeConn) Speaking(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = append(c.speaking, on)
	return nil
}

func (c *fakeConn) OpusSend() chan<- []byte { return c.opusCh }

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *fakeConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

type sentMessage struct {
	ChannelID string
	Content   string
}

type fakeTransport struct {
	mu       sync.Mutex
	joins    []string
	joinErr  error
	conn     *fakeConn
	messages []sentMessage
	channels map[string]ChannelInfo
	humans   map[string]int // channel ID -> non-bot member count
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		channels: make(map[string]ChannelInfo),
		humans:   make(map[string]int),
	}
}

func (f *fakeTransport) JoinVoice(guildID, channelID string) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, channelID)
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	f.conn = newFakeConn(guildID, channelID)
	return f.conn, nil
}

func (f *fakeTransport) SendMessage(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{ChannelID: channelID, Content: content})
	return nil
}

func (f *fakeTransport) Channel(channelID string) (ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[channelID]; ok {
		return ch, nil
	}
	return ChannelInfo{}, errors.New("channel not found")
}

func (f *fakeTransport) NonBotMembers(guildID, channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.humans[channelID]
}

func (f *fakeTransport) sentTo(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		if m.ChannelID == channelID {
			out = append(out, m.Content)
		}
	}
	return out
}

func testSerif(name string, args ...string) string {
	line := name
	for _, a := range args {
		line += " " + a
	}
	return line
}

func newTestManager(t *testing.T, transport Transport) (*Manager, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "data"), filepath.Join(dir, "settings"))
	normalizer, err := reading.NewNormalizer(st, testLogger())
	require.NoError(t, err)
	return NewManager(transport, st, normalizer, nil, testSerif, "ffmpeg", 50, testLogger()), st
}

func TestManager_SessionPerGuild(t *testing.T) {
	m, _ := newTestManager(t, newFakeTransport())

	a := m.Session("g1")
	b := m.Session("g2")
	assert.NotSame(t, a, b)
	assert.Same(t, a, m.Session("g1"))
	assert.NotSame(t, a.Player(), b.Player())
}

func TestSession_JoinAttachesAndAnnounces(t *testing.T) {
	tr := newFakeTransport()
	m, _ := newTestManager(t, tr)
	s := m.Session("g1")

	require.NoError(t, s.Join("vc1", "tc1"))

	assert.True(t, s.Connected())
	assert.Equal(t, "tc1", s.AttachedTextChannel())
	msgs := tr.sentTo("tc1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "start_reading <#tc1>", msgs[0])
}

func TestSession_JoinTwiceAnnouncesAlreadyReading(t *testing.T) {
	tr := newFakeTransport()
	m, _ := newTestManager(t, tr)
	s := m.Session("g1")

	require.NoError(t, s.Join("vc1", "tc1"))
	require.NoError(t, s.Join("vc1", "tc1"))

	msgs := tr.sentTo("tc1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "already_reading <#tc1>", msgs[1])
	// The existing connection is reused
	assert.Equal(t, []string{"vc1"}, tr.joins)
}

func TestSession_JoinFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.joinErr = errors.New("gateway down")
	m, _ := newTestManager(t, tr)
	s := m.Session("g1")

	err := s.Join("vc1", "tc1")
	assert.Error(t, err)
	assert.False(t, s.Connected())
	assert.Empty(t, s.AttachedTextChannel())
}

func TestSession_LeaveAnnouncesAndDisconnects(t *testing.T) {
	tr := newFakeTransport()
	m, _ := newTestManager(t, tr)
	s := m.Session("g1")
	require.NoError(t, s.Join("vc1", "tc1"))

	s.Leave()

	assert.False(t, s.Connected())
	assert.Empty(t, s.AttachedTextChannel())
	assert.True(t, tr.conn.isDisconnected())
	msgs := tr.sentTo("tc1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "leave_voice_channel", msgs[1])
}

func TestHandleVoiceState_AutoJoinsWatchChannel(t *testing.T) {
	tr := newFakeTransport()
	tr.channels["tc1"] = ChannelInfo{ID: "tc1", GuildID: "g1"}
	m, st := newTestManager(t, tr)
	require.NoError(t, st.UpdateGuildSetting("g1", store.GuildSetting{
		WatchChannel: store.WatchChannel{Voice: "vc1", Text: "tc1"},
	}))
	s := m.Session("g1")

	s.HandleVoiceState(VoiceStateEvent{
		GuildID: "g1", UserID: "u1", AfterChannelID: "vc1",
	})

	assert.True(t, s.Connected())
	assert.Equal(t, "tc1", s.AttachedTextChannel())
}

func TestHandleVoiceState_IgnoresOtherChannels(t *testing.T) {
	tr := newFakeTransport()
	tr.channels["tc1"] = ChannelInfo{ID: "tc1", GuildID: "g1"}
	m, st := newTestManager(t, tr)
	require.NoError(t, st.UpdateGuildSetting("g1", store.GuildSetting{
		WatchChannel: store.WatchChannel{Voice: "vc1", Text: "tc1"},
	}))
	s := m.Session("g1")

	s.HandleVoiceState(VoiceStateEvent{
		GuildID: "g1", UserID: "u1", AfterChannelID: "vc-other",
	})

	assert.False(t, s.Connected())
}

func TestHandleVoiceState_IgnoresBotsAndNonMoves(t *testing.T) {
	tr := newFakeTransport()
	tr.channels["tc1"] = ChannelInfo{ID: "tc1", GuildID: "g1"}
	m, st := newTestManager(t, tr)
	require.NoError(t, st.UpdateGuildSetting("g1", store.GuildSetting{
		WatchChannel: store.WatchChannel{Voice: "vc1", Text: "tc1"},
	}))
	s := m.Session("g1")

	s.HandleVoiceState(VoiceStateEvent{GuildID: "g1", UserID: "b1", IsBot: true, AfterChannelID: "vc1"})
	assert.False(t, s.Connected())

	s.HandleVoiceState(VoiceStateEvent{GuildID: "g1", UserID: "u1", BeforeChannelID: "vc1", AfterChannelID: "vc1"})
	assert.False(t, s.Connected())
}

func TestHandleVoiceState_CrossGuildTextChannelAbandoned(t *testing.T) {
	tr := newFakeTransport()
	tr.channels["tc1"] = ChannelInfo{ID: "tc1", GuildID: "g2"}
	m, st := newTestManager(t, tr)
	require.NoError(t, st.UpdateGuildSetting("g1", store.GuildSetting{
		WatchChannel: store.WatchChannel{Voice: "vc1", Text: "tc1"},
	}))
	s := m.Session("g1")

	s.HandleVoiceState(VoiceStateEvent{GuildID: "g1", UserID: "u1", AfterChannelID: "vc1"})

	assert.False(t, s.Connected())
	assert.Empty(t, tr.joins)
}

func TestHandleVoiceState_LeavesWhenAlone(t *testing.T) {
	tr := newFakeTransport()
	m, _ := newTestManager(t, tr)
	s := m.Session("g1")
	require.NoError(t, s.Join("vc1", "tc1"))
	tr.humans["vc1"] = 0

	s.HandleVoiceState(VoiceStateEvent{GuildID: "g1", UserID: "u1", BeforeChannelID: "vc1"})

	assert.False(t, s.Connected())
	assert.True(t, tr.conn.isDisconnected())
}

func TestHandleVoiceState_StaysWithHumansPresent(t *testing.T) {
	tr := newFakeTransport()
	m, _ := newTestManager(t, tr)
	s := m.Session("g1")
	require.NoError(t, s.Join("vc1", "tc1"))
	tr.humans["vc1"] = 2

	s.HandleVoiceState(VoiceStateEvent{GuildID: "g1", UserID: "u1", BeforeChannelID: "vc1"})

	assert.True(t, s.Connected())
}

func TestHandleMessage_IgnoredWhileDetached(t *testing.T) {
	tr := newFakeTransport()
	m, _ := newTestManager(t, tr)
	s := m.Session("g1")

	// Must not panic or touch the transport
	s.HandleMessage(context.Background(), MessageEvent{
		GuildID: "g1", ChannelID: "tc1", UserID: "u1", Content: "hello",
	})
	assert.Empty(t, tr.messages)
}

func TestHandleMessage_IgnoresOtherChannels(t *testing.T) {
	tr := newFakeTransport()
	m, _ := newTestManager(t, tr)
	s := m.Session("g1")
	require.NoError(t, s.Join("vc1", "tc1"))

	s.HandleMessage(context.Background(), MessageEvent{
		GuildID: "g1", ChannelID: "tc-other", UserID: "u1", Content: "hello",
	})
	// Only the join announcement went out
	assert.Len(t, tr.messages, 1)
}

func TestHandleMessage_ReconcilesStaleAttachment(t *testing.T) {
	tr := newFakeTransport()
	m, st := newTestManager(t, tr)
	require.NoError(t, st.UpdateGuildSetting("g1", store.GuildSetting{
		WatchChannel: store.WatchChannel{Voice: "vc1", Text: "tc1"},
	}))
	s := m.Session("g1")
	require.NoError(t, s.Join("vc1", "tc1"))

	// Connection survives while the attachment bookkeeping was cleared
	s.mu.Lock()
	s.attachedTextID = ""
	s.mu.Unlock()

	s.HandleMessage(context.Background(), MessageEvent{
		GuildID: "g1", ChannelID: "tc1", UserID: "u1", Content: "",
	})

	assert.Equal(t, "tc1", s.AttachedTextChannel())
}

func TestHandleMessage_ManualAttachmentNotOverridden(t *testing.T) {
	tr := newFakeTransport()
	m, st := newTestManager(t, tr)
	require.NoError(t, st.UpdateGuildSetting("g1", store.GuildSetting{
		WatchChannel: store.WatchChannel{Voice: "vc1", Text: "tc1"},
	}))
	s := m.Session("g1")
	// Deliberate join into a channel other than the configured watch pair
	require.NoError(t, s.Join("vc2", "tc2"))

	s.HandleMessage(context.Background(), MessageEvent{
		GuildID: "g1", ChannelID: "tc2", UserID: "u1", Content: "",
	})

	assert.Equal(t, "tc2", s.AttachedTextChannel())
}

func TestToggleAutoJoin(t *testing.T) {
	tr := newFakeTransport()
	m, st := newTestManager(t, tr)
	s := m.Session("g1")

	armed, err := s.ToggleAutoJoin("vc1", "tc1")
	require.NoError(t, err)
	assert.True(t, armed)

	conf, err := st.GuildSetting("g1")
	require.NoError(t, err)
	assert.Equal(t, store.WatchChannel{Voice: "vc1", Text: "tc1"}, conf.WatchChannel)

	armed, err = s.ToggleAutoJoin("vc2", "tc2")
	require.NoError(t, err)
	assert.False(t, armed)

	conf, err = st.GuildSetting("g1")
	require.NoError(t, err)
	assert.Equal(t, store.WatchChannel{}, conf.WatchChannel)
}

func TestStopPlayback_NothingPlaying(t *testing.T) {
	m, _ := newTestManager(t, newFakeTransport())
	s := m.Session("g1")
	assert.False(t, s.StopPlayback())
}
