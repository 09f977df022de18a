package voice

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yomiage-bot/internal/store"
	apperrors "yomiage-bot/pkg/errors"
)

// Synthesizer adapts the open_jtalk command line engine. It owns the
// intermediate text file lifecycle; ownership of the output audio file
// transfers to the caller as an Asset.
type Synthesizer struct {
	bin         string
	dicDir      string
	sysVoiceDir string
	tempDir     string
	log         *zap.Logger
}

// NewSynthesizer creates an open_jtalk adapter.
func NewSynthesizer(bin, dicDir, sysVoiceDir, tempDir string, log *zap.Logger) *Synthesizer {
	return &Synthesizer{
		bin:         bin,
		dicDir:      dicDir,
		sysVoiceDir: sysVoiceDir,
		tempDir:     tempDir,
		log:         log,
	}
}

// Synthesize produces a wav asset for text with the user's interpolated
// voice parameters. It fails with a synthesis error if the engine exits
// non-zero or produces no output; it never retries.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, setting store.UserSetting) (*Asset, error) {
	params, err := Interpolate(setting, s.sysVoiceDir)
	if err != nil {
		return nil, err
	}

	stem := uniqueStem(s.tempDir)
	textPath := stem + ".txt"
	outPath := stem + ".wav"

	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		return nil, apperrors.NewSynthesisFailed(params.Voice, err)
	}
	// The text file lives only for the engine invocation.
	defer os.Remove(textPath)

	formatted := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	// The engine's gain flag is rejected on Linux, so Volume stays unused.
	cmd := exec.CommandContext(ctx, s.bin,
		"-x", s.dicDir,
		"-m", params.ModelPath,
		"-ow", outPath,
		"-r", formatted(params.Speed),
		"-fm", formatted(params.Tone),
		"-jf", formatted(params.Intone),
		"-u", formatted(params.Threshold),
		textPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		s.log.Warn("synthesis engine failed",
			zap.String("voice", params.Voice), zap.ByteString("output", out), zap.Error(err))
		return nil, apperrors.NewSynthesisFailed(params.Voice, err)
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outPath)
		return nil, apperrors.NewSynthesisFailed(params.Voice,
			fmt.Errorf("engine produced no output file"))
	}

	return NewAsset(outPath), nil
}

// uniqueStem builds a collision-free temp file stem from a monotonic
// timestamp plus a random suffix.
func uniqueStem(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("voice_%d_%s", time.Now().UnixNano(), uuid.NewString()[:8]))
}
