// Package phrase matches chat text against the named sound-effect table.
package phrase

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"yomiage-bot/internal/store"
)

// Full-width tilde is normalized to the wave dash before matching, so
// patterns only ever need to spell one of the two.
const (
	fullwidthTilde = "～"
	waveDash       = "〜"
)

// Resolver matches text against the phrase table in priority order and
// tracks per-user usage counts.
type Resolver struct {
	store *store.Store
	log   *zap.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(s *store.Store, log *zap.Logger) *Resolver {
	return &Resolver{store: s, log: log}
}

// Resolve returns the audio link of the first table entry whose pattern
// fully matches the canonicalized text. Table order is the priority order;
// there is no other tie-break. A hit increments the user's usage slot for
// that entry. A miss returns ok=false and the caller falls back to
// synthesis.
func (r *Resolver) Resolve(text, userID string) (link string, ok bool, err error) {
	entries, err := r.store.Phrases()
	if err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}

	canonical := strings.ReplaceAll(text, fullwidthTilde, waveDash)

	for _, entry := range entries {
		re, err := regexp.Compile("(?i)^(?:" + entry.Pattern + ")$")
		if err != nil {
			r.log.Warn("skipping invalid phrase pattern",
				zap.Int("id", entry.ID), zap.String("pattern", entry.Pattern), zap.Error(err))
			continue
		}
		if !re.MatchString(canonical) {
			continue
		}

		if err := r.store.RecordPhraseUse(userID, entry.ID, len(entries)); err != nil {
			// Counting is best effort; the clip still plays.
			r.log.Warn("failed to record phrase use",
				zap.String("user_id", userID), zap.Int("phrase_id", entry.ID), zap.Error(err))
		}
		return entry.Link, true, nil
	}
	return "", false, nil
}
