// Package quiz implements the intro quiz: a reaction-driven state machine
// that downloads a track's intro, trims it and plays it through the guild's
// voice session.
package quiz

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"yomiage-bot/internal/store"
	"yomiage-bot/internal/voice"
)

// State is the quiz lifecycle. Transitions are strictly
// Idle -> Downloading -> Converting -> Playing -> Idle; reactions are only
// honored while Idle.
type State int

const (
	Idle State = iota
	Downloading
	Converting
	Playing
)

func (s State) String() string {
	switch s {
	case Downloading:
		return "ダウンロード中"
	case Converting:
		return "音声ファイルの変換中"
	case Playing:
		return "再生中"
	default:
		return "待機中"
	}
}

const (
	emojiReplay = "🔁"
	emojiNext   = "➡"

	// Intro clips are the first five seconds after leading silence.
	introSeconds = 5
	panelColor   = 0xad1457
)

// session is one guild's quiz run.
type session struct {
	mu         sync.Mutex
	state      State
	tracks     []store.IntroTrack
	pos        int
	channelID  string
	replyMsgID string
	panelMsgID string
	clipPath   string // prepared intro clip, reused for replays
}

// Feature manages quiz sessions per guild.
type Feature struct {
	store     *store.Store
	manager   *voice.Manager
	ytdlpBin  string
	ffmpegBin string
	tempDir   string
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates the quiz feature.
func New(s *store.Store, manager *voice.Manager, ytdlpBin, ffmpegBin, tempDir string, log *zap.Logger) *Feature {
	return &Feature{
		store:     s,
		manager:   manager,
		ytdlpBin:  ytdlpBin,
		ffmpegBin: ffmpegBin,
		tempDir:   tempDir,
		log:       log,
		sessions:  make(map[string]*session),
	}
}

// Start begins a quiz over tracks matching tag ("all" plays everything).
func (f *Feature) Start(s *discordgo.Session, m *discordgo.MessageCreate, tag string) {
	tracks, err := f.store.IntroTracks()
	if err != nil {
		f.log.Warn("failed to load intro tracks", zap.Error(err))
		return
	}
	if tag != "all" {
		filtered := tracks[:0:0]
		for _, t := range tracks {
			for _, tg := range t.Tags {
				if tg == tag {
					filtered = append(filtered, t)
					break
				}
			}
		}
		tracks = filtered
	}
	if len(tracks) == 0 {
		s.ChannelMessageSend(m.ChannelID, "その条件の問題はないみたい")
		return
	}
	rand.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})

	// Born claimed: reactions on the panel are rejected until the first
	// question cycle hands the state back to Idle.
	qs := &session{
		state:     Downloading,
		tracks:    tracks,
		channelID: m.ChannelID,
	}
	f.mu.Lock()
	f.sessions[m.GuildID] = qs
	f.mu.Unlock()

	reply, err := s.ChannelMessageSendReply(m.ChannelID,
		fmt.Sprintf("イントロクイズを開始するわ。（全%d問）", len(tracks)), m.Reference())
	if err != nil {
		f.log.Warn("failed to send quiz reply", zap.Error(err))
		return
	}
	qs.replyMsgID = reply.ID

	panel, err := s.ChannelMessageSendEmbed(m.ChannelID, panelEmbed(Idle))
	if err != nil {
		f.log.Warn("failed to send quiz panel", zap.Error(err))
		return
	}
	qs.panelMsgID = panel.ID
	for _, emoji := range []string{emojiReplay, emojiNext} {
		s.MessageReactionAdd(m.ChannelID, panel.ID, emoji)
	}

	f.runQuestion(s, m.GuildID, qs, false)
}

// HandleReaction advances the quiz when a human reacts on the panel while
// the session is idle.
func (f *Feature) HandleReaction(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	f.mu.Lock()
	qs := f.sessions[r.GuildID]
	f.mu.Unlock()
	if qs == nil || qs.panelMsgID == "" || r.MessageID != qs.panelMsgID {
		return
	}

	emoji := r.Emoji.Name
	if emoji != emojiReplay && emoji != emojiNext {
		return
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}

	// Reactions arrive on separate goroutines; the Idle check and the
	// transition out of it must be one compare-and-set or two players
	// reacting together both start a question cycle.
	if !qs.claim() {
		return
	}

	switch emoji {
	case emojiReplay:
		f.runQuestion(s, r.GuildID, qs, true)
	case emojiNext:
		qs.mu.Lock()
		done := qs.pos+1 >= len(qs.tracks)
		answer := qs.tracks[qs.pos]
		answered := qs.pos + 1
		total := len(qs.tracks)
		if !done {
			qs.pos++
		}
		qs.mu.Unlock()

		if done {
			s.ChannelMessageEdit(qs.channelID, qs.replyMsgID,
				fmt.Sprintf("問題は全て終了したわ。お疲れ様。\n%s", answer.URL))
			f.setState(s, qs, Idle)
		} else {
			s.ChannelMessageEdit(qs.channelID, qs.replyMsgID,
				fmt.Sprintf("正解はこれよ。（%d/%d問）\n%s", answered, total, answer.URL))
			f.runQuestion(s, r.GuildID, qs, false)
		}
	}

	s.MessageReactionRemove(qs.channelID, qs.panelMsgID, emoji, r.UserID)
}

// claim atomically takes the session out of Idle. Only the claimant may
// drive the next question cycle; the cycle hands the state back to Idle
// when it finishes.
func (qs *session) claim() bool {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	if qs.state != Idle {
		return false
	}
	qs.state = Downloading
	return true
}

// runQuestion drives one claimed -> ... -> Idle cycle. replay skips the
// download and converts nothing, reusing the prepared clip.
func (f *Feature) runQuestion(s *discordgo.Session, guildID string, qs *session, replay bool) {
	if !replay {
		qs.mu.Lock()
		track := qs.tracks[qs.pos]
		qs.mu.Unlock()

		f.setState(s, qs, Downloading)
		raw, err := f.download(track.URL)
		if err != nil {
			f.log.Warn("quiz download failed", zap.String("url", track.URL), zap.Error(err))
			f.setState(s, qs, Idle)
			return
		}
		defer os.Remove(raw)

		f.setState(s, qs, Converting)
		clip, err := f.convert(raw)
		if err != nil {
			f.log.Warn("quiz conversion failed", zap.Error(err))
			f.setState(s, qs, Idle)
			return
		}

		qs.mu.Lock()
		if qs.clipPath != "" {
			os.Remove(qs.clipPath)
		}
		qs.clipPath = clip
		qs.mu.Unlock()
	}

	f.setState(s, qs, Playing)
	f.playClip(guildID, qs)
	f.setState(s, qs, Idle)
}

func (f *Feature) setState(s *discordgo.Session, qs *session, state State) {
	qs.mu.Lock()
	qs.state = state
	channelID, panelID := qs.channelID, qs.panelMsgID
	qs.mu.Unlock()

	if panelID != "" {
		s.ChannelMessageEditEmbed(channelID, panelID, panelEmbed(state))
	}
}

// download fetches the track's best audio into a temp file via yt-dlp.
func (f *Feature) download(url string) (string, error) {
	out := filepath.Join(f.tempDir, fmt.Sprintf("intro_%d_%s.m4a", time.Now().UnixNano(), uuid.NewString()[:8]))
	cmd := exec.Command(f.ytdlpBin,
		"-f", "bestaudio/best",
		"--no-playlist",
		"-o", out,
		url,
	)
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

// convert trims leading silence, keeps the first five seconds and applies
// half-second fades.
func (f *Feature) convert(raw string) (string, error) {
	out := filepath.Join(f.tempDir, fmt.Sprintf("intro_%d_%s.wav", time.Now().UnixNano(), uuid.NewString()[:8]))
	filter := fmt.Sprintf(
		"silenceremove=start_periods=1:start_threshold=-50dB,afade=t=in:d=0.5,afade=t=out:st=%.1f:d=0.5",
		float64(introSeconds)-0.5)
	cmd := exec.Command(f.ffmpegBin,
		"-hide_banner",
		"-loglevel", "warning",
		"-i", raw,
		"-vn",
		"-af", filter,
		"-t", fmt.Sprintf("%d", introSeconds),
		out,
	)
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

// playClip plays a copy of the prepared clip, leaving the original for
// replays (the playback driver deletes whatever it is handed).
func (f *Feature) playClip(guildID string, qs *session) {
	session := f.manager.Session(guildID)
	conn := session.Conn()
	if conn == nil {
		return
	}

	qs.mu.Lock()
	clip := qs.clipPath
	qs.mu.Unlock()
	if clip == "" {
		return
	}

	copyPath, err := copyFile(clip, f.tempDir)
	if err != nil {
		f.log.Warn("failed to stage quiz clip", zap.Error(err))
		return
	}

	if err := session.Player().Play(conn, voice.NewAsset(copyPath)); err != nil {
		f.log.Debug("quiz playback skipped", zap.Error(err))
	}
}

func copyFile(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := filepath.Join(dir, fmt.Sprintf("intro_play_%d_%s%s",
		time.Now().UnixNano(), uuid.NewString()[:8], filepath.Ext(src)))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func panelEmbed(state State) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color: panelColor,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "操作方法",
				Value: "このメッセージにスタンプを押すことで操作できるわ。\n🔁でもう一度再生、➡で次の問題へ",
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "ステータス：" + state.String(),
		},
	}
}
