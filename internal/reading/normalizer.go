// Package reading converts raw chat text into a pronounceable form for the
// synthesis engine. The pipeline order is fixed: global regex corrections,
// user dictionary, emoji names, English readings, then romaji conversion.
// English must run before romaji so real English words get dictionary
// pronunciation instead of being mangled into generic syllables.
package reading

import (
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
	"github.com/gojp/kana"
	"go.uber.org/zap"

	"yomiage-bot/internal/store"
)

// OmittedMarker is appended when a message is truncated to the configured
// reading length.
const OmittedMarker = "以下略"

// latinRunPattern matches camel-separated word runs, e.g. "wood", "Ninja".
// Single letters are left alone.
var latinRunPattern = regexp.MustCompile(`[A-Z]?[a-z]{2,}`)

type rewriteRule struct {
	re      *regexp.Regexp
	replace string
}

// Normalizer turns raw chat text into a pronounceable string. It is
// deterministic given the current dictionary snapshot; the dictionary cache
// is refreshed from the store on every call.
type Normalizer struct {
	dict    *Dictionary
	rules   []rewriteRule
	english map[string]string
	log     *zap.Logger
}

// NewNormalizer builds a normalizer. The global regex table and the English
// pronunciation table are loaded once; invalid regex table entries are
// skipped and logged.
func NewNormalizer(s *store.Store, log *zap.Logger) (*Normalizer, error) {
	rawRules, err := s.RewriteRules()
	if err != nil {
		return nil, err
	}
	rules := make([]rewriteRule, 0, len(rawRules))
	for _, r := range rawRules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			log.Warn("skipping invalid rewrite rule",
				zap.String("pattern", r.Pattern), zap.Error(err))
			continue
		}
		rules = append(rules, rewriteRule{re: re, replace: r.Replace})
	}

	english, err := s.EnglishReadings()
	if err != nil {
		return nil, err
	}

	return &Normalizer{
		dict:    NewDictionary(s),
		rules:   rules,
		english: englishTable(english),
		log:     log,
	}, nil
}

// Dictionary returns the user dictionary cache (for the word commands and
// the HTTP server).
func (n *Normalizer) Dictionary() *Dictionary {
	return n.dict
}

// Normalize runs the conversion pipeline. maxLength is in runes; 0 disables
// truncation.
func (n *Normalizer) Normalize(raw string, maxLength int) string {
	if raw == "" {
		return ""
	}

	msg := raw
	msg = n.applyRules(msg)
	msg = n.applyDictionary(msg)
	msg = demojize(msg)
	msg = n.replaceEnglish(msg)
	msg = replaceRomaji(msg)

	if maxLength > 0 {
		runes := []rune(msg)
		if len(runes) > maxLength {
			msg = string(runes[:maxLength]) + OmittedMarker
		}
	}
	return msg
}

// applyRules runs the global regex substitution table in table order.
func (n *Normalizer) applyRules(msg string) string {
	for _, rule := range n.rules {
		msg = rule.re.ReplaceAllString(msg, rule.replace)
	}
	return msg
}

// applyDictionary substitutes user dictionary entries, longest surface form
// first. Entries are literal substrings; repeated occurrences are all
// replaced.
func (n *Normalizer) applyDictionary(msg string) string {
	entries, err := n.dict.Entries()
	if err != nil {
		n.log.Warn("dictionary refresh failed, reading without it", zap.Error(err))
		return msg
	}
	for _, entry := range entries {
		if strings.Contains(msg, entry.Surface) {
			msg = strings.ReplaceAll(msg, entry.Surface, entry.Reading)
		}
	}
	return msg
}

// demojize replaces emoji with their bracketed textual names.
func demojize(msg string) string {
	for _, em := range gomoji.FindAll(msg) {
		msg = strings.ReplaceAll(msg, em.Character, "["+em.Slug+"]")
	}
	return msg
}

// replaceEnglish converts Latin runs with a known English reading to kana.
// Runs without a table entry pass through for romaji conversion. Only the
// first occurrence of each run is replaced, matching one substitution per
// found run.
func (n *Normalizer) replaceEnglish(msg string) string {
	for _, run := range latinRunPattern.FindAllString(msg, -1) {
		if reading, ok := n.english[strings.ToLower(run)]; ok {
			msg = strings.Replace(msg, run, reading, 1)
		}
	}
	return msg
}

// replaceRomaji converts remaining Latin runs to hiragana as romanized
// syllables. Characters that do not form syllables are left verbatim by the
// converter.
func replaceRomaji(msg string) string {
	for _, run := range latinRunPattern.FindAllString(msg, -1) {
		converted := kana.RomajiToHiragana(strings.ToLower(run))
		msg = strings.Replace(msg, run, converted, 1)
	}
	return msg
}
