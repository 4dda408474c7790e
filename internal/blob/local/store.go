// Package localblob stores blobs as files under a root directory.
package localblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// Store implements domain.BlobStore on the local filesystem. Blob paths use
// forward slashes and are resolved relative to the root directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory is created lazily on the
// first write.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the directory blobs are stored under.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) resolve(p string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(p, "/"))
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("localblob: path %q escapes the storage root", p)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put writes data to path, creating parent directories as needed. The file
// is written to a temporary name first and renamed into place.
func (s *Store) Put(ctx context.Context, p string, data io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("localblob: mkdir for %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return fmt.Errorf("localblob: put %s: %w", p, err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("localblob: write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("localblob: close %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("localblob: rename %s: %w", p, err)
	}
	return nil
}

// Get opens the file at path; the caller closes it. A missing file yields
// domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("localblob: get %s: %w", p, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("localblob: get %s: %w", p, err)
	}
	return f, nil
}

// List returns every file whose blob path starts with prefix, sorted by path.
// A missing root yields an empty list.
func (s *Store) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo

	err := filepath.WalkDir(s.root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && full == s.root {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, full)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, domain.BlobInfo{
			Path:         key,
			Size:         fi.Size(),
			ContentType:  mime.TypeByExtension(path.Ext(key)),
			LastModified: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localblob: list prefix %s: %w", prefix, err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Exists reports whether a file is stored at path.
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	full, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("localblob: exists %s: %w", p, err)
}

var _ domain.BlobStore = (*Store)(nil)
