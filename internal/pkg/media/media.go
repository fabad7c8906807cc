package media

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var (
	// ErrFetch indicates the referenced media could not be retrieved.
	ErrFetch = errors.New("media fetch failed")
	// ErrDecode indicates an inline payload could not be decoded.
	ErrDecode = errors.New("media decode failed")
	// ErrExtract indicates a frame/audio extraction or probe failure.
	ErrExtract = errors.New("media extraction failed")
)

// Reference points at one image or video supplied by a caller: either a
// fetchable URL or an inline base64 payload, never both.
type Reference struct {
	URL    string
	Base64 string
	Mime   string // optional hint, e.g. "video/mp4"
}

// Validate checks that exactly one of URL and Base64 is set.
func (r Reference) Validate() error {
	if r.URL == "" && r.Base64 == "" {
		return fmt.Errorf("%w: no media data provided (neither url nor base64)", ErrFetch)
	}
	if r.URL != "" && r.Base64 != "" {
		return fmt.Errorf("%w: both url and base64 provided", ErrFetch)
	}
	return nil
}

// TempFile is an exclusively-owned scratch file. Close removes it from disk
// and is safe to call more than once, so callers can defer it on every path.
type TempFile struct {
	path string
	once sync.Once
	err  error
}

// NewTempFile wraps an existing on-disk path.
func NewTempFile(path string) *TempFile {
	return &TempFile{path: path}
}

// Path returns the on-disk location.
func (t *TempFile) Path() string { return t.path }

// Close deletes the underlying file.
func (t *TempFile) Close() error {
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
			t.err = err
		}
	})
	return t.err
}
