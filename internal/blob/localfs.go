package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalFS stores objects as files under Root.
type LocalFS struct {
	Root string
}

// NewLocalFS returns a LocalFS rooted at root, creating the directory.
func NewLocalFS(root string) (LocalFS, error) {
	if strings.TrimSpace(root) == "" {
		return LocalFS{}, errors.New("blob root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return LocalFS{}, fmt.Errorf("create blob root: %w", err)
	}
	return LocalFS{Root: root}, nil
}

// resolve maps key to an absolute path inside Root.
func (l LocalFS) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(l.Root, clean), nil
}

// Put writes r to key through a temp file so readers never see a partial
// object.
func (l LocalFS) Put(ctx context.Context, key string, r io.Reader) (Info, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return Info{}, err
	}
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Info{}, fmt.Errorf("create blob directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".put-*")
	if err != nil {
		return Info{}, fmt.Errorf("create blob temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), contextReader{ctx: ctx, r: r})
	if err != nil {
		return Info{}, fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("close blob %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return Info{}, fmt.Errorf("commit blob %s: %w", key, err)
	}
	return Info{
		Key:    filepath.ToSlash(filepath.Clean(filepath.FromSlash(strings.TrimSpace(key)))),
		Size:   written,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Get opens the object at key.
func (l LocalFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether an object is stored at key.
func (l LocalFS) Exists(key string) bool {
	abs, err := l.resolve(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// Delete removes the object at key. Missing objects are not an error.
func (l LocalFS) Delete(ctx context.Context, key string) error {
	abs, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes the directory named by prefix. The empty prefix
// removes everything under Root but keeps Root itself.
func (l LocalFS) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(prefix) == "" {
		entries, err := os.ReadDir(l.Root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return 0, nil
			}
			return 0, fmt.Errorf("read blob root: %w", err)
		}
		total := 0
		for _, entry := range entries {
			n, err := l.removeTree(ctx, filepath.Join(l.Root, entry.Name()))
			total += n
			if err != nil {
				return total, err
			}
		}
		return total, nil
	}
	abs, err := l.resolve(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return 0, err
	}
	return l.removeTree(ctx, abs)
}

func (l LocalFS) removeTree(ctx context.Context, path string) (int, error) {
	count := 0
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan blob prefix: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return 0, fmt.Errorf("delete blob prefix: %w", err)
	}
	return count, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
