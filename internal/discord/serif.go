package discord

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"yomiage-bot/internal/store"
)

// builtinSerifs are the fallback bot lines; serifs.json overrides them.
// Placeholders $0..$n are replaced positionally.
var builtinSerifs = map[string]string{
	"start_reading":        "$0 の読み上げを始めるわ",
	"already_reading":      "もう $0 を読み上げているわ",
	"leave_voice_channel":  "誰もいなくなったみたいだから私も抜けるわね",
	"status_change":        "$0 $1を $2 から $3 に変更したわ",
	"show_user_status":     "$0 あなたの読み上げ設定はこれよ",
	"voice_not_exist":      "$0 そのボイスは知らないわ…",
	"auto_join_enable":     "$0 に誰かが入ったら $1 で読み上げを始めるわ",
	"auto_join_disable":    "自動参加をやめたわ",
	"complete_word_add":    "「$0」を「$1」と読むように覚えたわ",
	"error_word_add":       "登録は `$0wa 単語 読み` の形式でお願いね",
	"complete_word_delete": "「$0」の読みは忘れたわ",
	"error_word_delete":    "削除は `$0wd 単語` の形式でお願いね",
	"show_word_list":       "登録されている単語の読み一覧よ",
}

// Serifs renders named bot lines from the serif template store.
type Serifs struct {
	lines map[string]string
}

// LoadSerifs reads serifs.json once, layered over the builtin lines.
func LoadSerifs(s *store.Store, log *zap.Logger) *Serifs {
	lines := make(map[string]string, len(builtinSerifs))
	for name, line := range builtinSerifs {
		lines[name] = line
	}
	stored, err := s.Serifs()
	if err != nil {
		log.Warn("failed to load serif templates, using builtins", zap.Error(err))
	}
	for name, line := range stored {
		lines[name] = line
	}
	return &Serifs{lines: lines}
}

// Get renders a named line, substituting $0..$n with args. Unknown names
// render empty.
func (s *Serifs) Get(name string, args ...string) string {
	line, ok := s.lines[name]
	if !ok {
		return ""
	}
	// Replace higher indexes first so $10 is not clobbered by $1.
	for i := len(args) - 1; i >= 0; i-- {
		line = strings.ReplaceAll(line, fmt.Sprintf("$%d", i), args[i])
	}
	return line
}
