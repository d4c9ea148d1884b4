package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotFound reports that no object exists at the key.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidKey reports an empty, absolute or escaping key.
	ErrInvalidKey = errors.New("invalid blob key")
)

// Info describes a stored object.
type Info struct {
	Key    string
	Size   int64
	SHA256 string
}

// Store persists artifacts by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix and reports how many
	// were removed. An empty prefix empties the store.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// JobPrefix returns the prefix that holds every artifact of a job.
func JobPrefix(jobKey string) string {
	return "jobs/" + segment(jobKey) + "/"
}

// OutputKey returns the key for a named job output.
func OutputKey(jobKey, name string) string {
	return JobPrefix(jobKey) + segment(name)
}

// segment reduces value to one safe path element.
func segment(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}

type timeoutStore struct {
	inner   Store
	timeout time.Duration
}

// WithTimeout bounds each call on inner by timeout. Get bounds only opening
// the object; reading the returned body is up to the caller.
func WithTimeout(inner Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return inner
	}
	return &timeoutStore{inner: inner, timeout: timeout}
}

func (s *timeoutStore) Put(ctx context.Context, key string, r io.Reader) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Put(ctx, key, r)
}

func (s *timeoutStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Get(ctx, key)
}

func (s *timeoutStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Delete(ctx, key)
}

func (s *timeoutStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.DeletePrefix(ctx, prefix)
}
