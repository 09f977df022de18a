package reading

// builtinEnglishReadings is the baseline English pronunciation table. The
// english_kana.json document extends and overrides it; words missing from
// both pass through to romaji conversion.
var builtinEnglishReadings = map[string]string{
	"wood":    "うっど",
	"hello":   "はろー",
	"world":   "わーるど",
	"good":    "ぐっど",
	"morning": "もーにんぐ",
	"night":   "ないと",
	"thanks":  "さんくす",
	"thank":   "さんく",
	"sorry":   "そーりー",
	"nice":    "ないす",
	"game":    "げーむ",
	"games":   "げーむず",
	"start":   "すたーと",
	"stop":    "すとっぷ",
	"join":    "じょいん",
	"server":  "さーばー",
	"channel": "ちゃんねる",
	"voice":   "ぼいす",
	"sound":   "さうんど",
	"music":   "みゅーじっく",
	"live":    "らいぶ",
	"stream":  "すとりーむ",
	"chat":    "ちゃっと",
	"message": "めっせーじ",
	"please":  "ぷりーず",
	"welcome": "うぇるかむ",
	"bye":     "ばい",
	"yes":     "いえす",
	"cool":    "くーる",
	"wait":    "うぇいと",
	"time":    "たいむ",
	"today":   "とぅでい",
	"work":    "わーく",
	"home":    "ほーむ",
	"play":    "ぷれい",
	"player":  "ぷれいやー",
	"win":     "うぃん",
	"lose":    "るーず",
}

// englishTable merges the persisted pronunciation table over the builtin
// baseline.
func englishTable(fromStore map[string]string) map[string]string {
	merged := make(map[string]string, len(builtinEnglishReadings)+len(fromStore))
	for word, reading := range builtinEnglishReadings {
		merged[word] = reading
	}
	for word, reading := range fromStore {
		merged[word] = reading
	}
	return merged
}
