package voice

import (
	"os"
	"sync"
)

// Asset is a transient audio file. It is owned by the acquiring call until
// handed to the playback driver, which releases it after playback completes,
// fails or is abandoned. Release is idempotent; the file is removed exactly
// once.
type Asset struct {
	Path string

	once sync.Once
	err  error
}

// NewAsset wraps a file path in an Asset.
func NewAsset(path string) *Asset {
	return &Asset{Path: path}
}

// Release deletes the underlying file. Safe to call multiple times.
func (a *Asset) Release() error {
	a.once.Do(func() {
		a.err = os.Remove(a.Path)
	})
	return a.err
}
