package voice

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"yomiage-bot/internal/phrase"
	"yomiage-bot/internal/store"
	apperrors "yomiage-bot/pkg/errors"
)

// Acquirer unifies "fetch a canned clip" and "synthesize speech" behind one
// text -> audio asset operation. Phrase hits win; everything else is
// synthesized with the user's voice settings.
type Acquirer struct {
	resolver *phrase.Resolver
	synth    *Synthesizer
	store    *store.Store
	client   *http.Client
	tempDir  string
	log      *zap.Logger
}

// NewAcquirer creates an acquirer.
func NewAcquirer(resolver *phrase.Resolver, synth *Synthesizer, s *store.Store, tempDir string, log *zap.Logger) *Acquirer {
	return &Acquirer{
		resolver: resolver,
		synth:    synth,
		store:    s,
		client:   &http.Client{Timeout: 30 * time.Second},
		tempDir:  tempDir,
		log:      log,
	}
}

// Acquire resolves text to a playable asset. A rejected clip fetch returns
// (nil, nil): a soft miss the caller logs and drops, not an error.
func (a *Acquirer) Acquire(ctx context.Context, text, userID string) (*Asset, error) {
	link, ok, err := a.resolver.Resolve(text, userID)
	if err != nil {
		// A broken phrase table should not silence the reader.
		a.log.Warn("phrase resolution failed, falling back to synthesis", zap.Error(err))
		ok = false
	}
	if ok {
		return a.FetchClip(ctx, link)
	}

	setting, err := a.store.UserSetting(userID)
	if err != nil {
		return nil, err
	}
	return a.synth.Synthesize(ctx, text, setting)
}

// FetchClip downloads a remote audio clip into a uniquely named temp file.
// A non-2xx response returns (nil, nil); transport failures are fetch
// errors.
func (a *Acquirer) FetchClip(ctx context.Context, clipURL string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clipURL, nil)
	if err != nil {
		return nil, apperrors.NewFetchFailed(clipURL, 0, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperrors.NewFetchFailed(clipURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.log.Warn("clip fetch rejected",
			zap.String("url", clipURL), zap.Int("status", resp.StatusCode))
		return nil, nil
	}

	outPath := uniqueStem(a.tempDir) + clipExt(clipURL)
	out, err := os.Create(outPath)
	if err != nil {
		return nil, apperrors.NewFetchFailed(clipURL, resp.StatusCode, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(outPath)
		return nil, apperrors.NewFetchFailed(clipURL, resp.StatusCode, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return nil, apperrors.NewFetchFailed(clipURL, resp.StatusCode, err)
	}

	return NewAsset(outPath), nil
}

func clipExt(clipURL string) string {
	u, err := url.Parse(clipURL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}
