package voice

import (
	"path/filepath"
	"sort"

	apperrors "yomiage-bot/pkg/errors"

	"yomiage-bot/internal/store"
)

// voiceModels maps voice names to htsvoice model files, relative to the
// system voice directory.
var voiceModels = map[string]string{
	"normal":  "mei/mei_normal.htsvoice",
	"happy":   "mei/mei_happy.htsvoice",
	"bashful": "mei/mei_bashful.htsvoice",
	"angry":   "mei/mei_angry.htsvoice",
	"sad":     "mei/mei_sad.htsvoice",
	"male":    "m100/nitech_jp_atr503_m001.htsvoice",
	"miku":    "miku/miku.htsvoice",
}

// VoiceNames lists the selectable voice names, sorted for stable display.
func VoiceNames() []string {
	names := make([]string, 0, len(voiceModels))
	for name := range voiceModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsKnownVoice reports whether a voice name has a model.
func IsKnownVoice(name string) bool {
	_, ok := voiceModels[name]
	return ok
}

// Params are engine-native synthesis parameters derived from a stored
// user setting.
type Params struct {
	Voice     string
	ModelPath string
	Speed     float64 // [0.5, 2.0]
	Tone      float64 // [-20, 20]
	Intone    float64 // [0, 4]
	Threshold float64 // [0, 1]
	Volume    float64 // [-20, 0]; interpolated but not passed to the engine
}

// Interpolate maps stored 0-100 parameters to the engine's native ranges.
// Stored values are clamped to [0,100] first.
func Interpolate(setting store.UserSetting, sysVoiceDir string) (Params, error) {
	rel, ok := voiceModels[setting.Voice]
	if !ok {
		return Params{}, apperrors.NewVoiceNotFound(setting.Voice)
	}
	return Params{
		Voice:     setting.Voice,
		ModelPath: filepath.Join(sysVoiceDir, rel),
		Speed:     lerp(0.5, 2.0, Clamp(setting.Speed, 0, 100)/100.0),
		Tone:      lerp(-20.0, 20.0, Clamp(setting.Tone, 0, 100)/100.0),
		Intone:    lerp(0.0, 4.0, Clamp(setting.Intone, 0, 100)/100.0),
		Threshold: lerp(0.0, 1.0, Clamp(setting.Threshold, 0, 100)/100.0),
		Volume:    lerp(-20.0, 0.0, Clamp(setting.Volume, 0, 100)/100.0),
	}, nil
}

// Clamp bounds v to [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
