package voice

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"yomiage-bot/internal/reading"
	"yomiage-bot/internal/store"
	apperrors "yomiage-bot/pkg/errors"
)

// VoiceStateEvent is a membership change in a guild's voice channels.
type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	IsBot           bool
	BeforeChannelID string
	AfterChannelID  string
}

// MessageEvent is a chat message considered for reading aloud. Command and
// bot messages are filtered before this point.
type MessageEvent struct {
	GuildID   string
	ChannelID string
	UserID    string
	Content   string
}

// Session is one guild's read-aloud state machine: Detached (no attached
// text channel) or Attached (reading a text channel into a voice
// connection). Events for a guild may arrive on different goroutines, so
// all state mutation happens under the session mutex.
type Session struct {
	guildID    string
	transport  Transport
	store      *store.Store
	normalizer *reading.Normalizer
	acquirer   *Acquirer
	player     *Player
	serif      SerifFunc
	maxChars   int
	log        *zap.Logger

	mu             sync.Mutex
	conn           Conn
	attachedTextID string
}

// Player returns the session's playback driver (shared with the quiz and
// login theme features so the exclusivity invariant holds per guild).
func (s *Session) Player() *Player {
	return s.player
}

// Conn returns the current voice connection, or nil while detached.
func (s *Session) Conn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Connected reports whether the session holds a voice connection.
func (s *Session) Connected() bool {
	return s.Conn() != nil
}

// AttachedTextChannel returns the attached text channel ID, or empty while
// detached.
func (s *Session) AttachedTextChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachedTextID
}

// HandleVoiceState reacts to one membership change. Bot members and
// non-moves are ignored. While connected, the session leaves once no human
// members remain in its channel. While detached, a join into the guild's
// watch channel attaches and announces; unresolved or cross-guild announce
// channels abandon the join silently.
func (s *Session) HandleVoiceState(ev VoiceStateEvent) {
	if ev.IsBot || ev.BeforeChannelID == ev.AfterChannelID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		if s.transport.NonBotMembers(s.guildID, s.conn.ChannelID()) < 1 {
			s.leaveLocked()
		}
		return
	}

	// Detached: consider auto-join
	if ev.AfterChannelID == "" {
		return
	}
	conf, err := s.store.GuildSetting(s.guildID)
	if err != nil {
		s.log.Warn("failed to read guild setting", zap.Error(err))
		return
	}
	if ev.AfterChannelID != conf.WatchChannel.Voice || conf.WatchChannel.Text == "" {
		return
	}

	ch, err := s.transport.Channel(conf.WatchChannel.Text)
	if err != nil || ch.GuildID != s.guildID {
		// Latent misconfiguration; the read-aloud is simply missed.
		s.log.Debug("auto-join target channel unresolved",
			zap.String("channel_id", conf.WatchChannel.Text), zap.Error(err))
		return
	}

	s.joinLocked(ev.AfterChannelID, ch.ID)
}

// Join connects to a voice channel and attaches the given text channel.
func (s *Session) Join(voiceChannelID, textChannelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinLocked(voiceChannelID, textChannelID)
}

func (s *Session) joinLocked(voiceChannelID, textChannelID string) error {
	if s.conn == nil || s.conn.ChannelID() != voiceChannelID {
		conn, err := s.transport.JoinVoice(s.guildID, voiceChannelID)
		if err != nil {
			s.log.Warn("failed to connect voice",
				zap.String("channel_id", voiceChannelID), zap.Error(err))
			return err
		}
		s.conn = conn
	}

	if s.attachedTextID != textChannelID {
		// Guards the race where two join events interleave for one channel.
		s.attachedTextID = textChannelID
		s.transport.SendMessage(textChannelID, s.serif("start_reading", "<#"+textChannelID+">"))
	} else {
		s.transport.SendMessage(textChannelID, s.serif("already_reading", "<#"+textChannelID+">"))
	}
	return nil
}

// Leave disconnects and detaches, announcing to the attached text channel.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
}

func (s *Session) leaveLocked() {
	if s.attachedTextID != "" {
		s.transport.SendMessage(s.attachedTextID, s.serif("leave_voice_channel"))
	}
	s.attachedTextID = ""
	if s.conn != nil {
		s.player.Stop()
		if err := s.conn.Disconnect(); err != nil {
			s.log.Warn("voice disconnect failed", zap.Error(err))
		}
		s.conn = nil
	}
}

// HandleMessage reads one chat message aloud if it belongs to the attached
// text channel. All failures are scoped to this message and logged.
func (s *Session) HandleMessage(ctx context.Context, ev MessageEvent) {
	s.mu.Lock()
	// joinLocked and leaveLocked always move conn and attachedTextID
	// together, so the one stale shape this design can reach is a
	// connection the gateway re-established after our bookkeeping was
	// cleared. Re-derive the attachment from the persisted watch
	// configuration for that case only; a non-empty attachment reflects a
	// deliberate join (possibly to a non-watch channel) and must not be
	// overridden.
	if s.conn != nil && s.attachedTextID == "" {
		if conf, err := s.store.GuildSetting(s.guildID); err == nil {
			s.attachedTextID = conf.WatchChannel.Text
		}
	}
	conn := s.conn
	attached := s.attachedTextID
	s.mu.Unlock()

	if conn == nil || attached == "" || ev.ChannelID != attached {
		return
	}

	text := s.normalizer.Normalize(ev.Content, s.maxChars)
	if text == "" {
		return
	}

	asset, err := s.acquirer.Acquire(ctx, text, ev.UserID)
	if err != nil {
		s.log.Warn("audio acquisition failed",
			zap.String("guild_id", s.guildID), zap.Error(err))
		return
	}
	if asset == nil {
		// Soft fetch miss; nothing to play.
		s.log.Debug("clip fetch rejected", zap.String("guild_id", s.guildID))
		return
	}

	if err := s.player.Play(conn, asset); err != nil {
		if err == apperrors.ErrPlaybackDropped {
			s.log.Info("playback dropped after retry budget",
				zap.String("guild_id", s.guildID), zap.String("text", ev.Content))
		} else {
			s.log.Warn("playback failed", zap.String("guild_id", s.guildID), zap.Error(err))
		}
	}
}

// StopPlayback aborts the current utterance, reporting whether anything was
// playing.
func (s *Session) StopPlayback() bool {
	if !s.player.IsPlaying() {
		return false
	}
	s.player.Stop()
	return true
}

// ToggleAutoJoin arms auto-join with the member's current voice channel and
// the invoking text channel, or disarms it when already armed. It never
// changes the attached/detached state by itself.
func (s *Session) ToggleAutoJoin(voiceChannelID, textChannelID string) (armed bool, err error) {
	conf, err := s.store.GuildSetting(s.guildID)
	if err != nil {
		return false, err
	}

	armed = conf.WatchChannel.Voice == ""
	if armed {
		conf.WatchChannel = store.WatchChannel{Voice: voiceChannelID, Text: textChannelID}
	} else {
		conf.WatchChannel = store.WatchChannel{}
	}
	if err := s.store.UpdateGuildSetting(s.guildID, conf); err != nil {
		return false, err
	}
	return armed, nil
}

// Manager lazily creates one session per guild. Sessions live for the
// process lifetime; a detached session is inert, not destroyed.
type Manager struct {
	transport  Transport
	store      *store.Store
	normalizer *reading.Normalizer
	acquirer   *Acquirer
	serif      SerifFunc
	ffmpegBin  string
	maxChars   int
	log        *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(transport Transport, s *store.Store, normalizer *reading.Normalizer, acquirer *Acquirer, serif SerifFunc, ffmpegBin string, maxChars int, log *zap.Logger) *Manager {
	return &Manager{
		transport:  transport,
		store:      s,
		normalizer: normalizer,
		acquirer:   acquirer,
		serif:      serif,
		ffmpegBin:  ffmpegBin,
		maxChars:   maxChars,
		log:        log,
		sessions:   make(map[string]*Session),
	}
}

// Store exposes the settings/data store for the command surface.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Dictionary exposes the user dictionary cache for the word commands.
func (m *Manager) Dictionary() *reading.Dictionary {
	return m.normalizer.Dictionary()
}

// Session gets or creates the session for a guild.
func (m *Manager) Session(guildID string) *Session {
	m.mu.RLock()
	session, ok := m.sessions[guildID]
	m.mu.RUnlock()
	if ok {
		return session
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[guildID]; ok {
		return session
	}
	session = &Session{
		guildID:    guildID,
		transport:  m.transport,
		store:      m.store,
		normalizer: m.normalizer,
		acquirer:   m.acquirer,
		player:     NewPlayer(m.ffmpegBin, m.log),
		serif:      m.serif,
		maxChars:   m.maxChars,
		log:        m.log,
	}
	m.sessions[guildID] = session
	return session
}
