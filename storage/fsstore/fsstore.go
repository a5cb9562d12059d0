// Package fsstore keeps credential blobs as plain files under a root directory.
package fsstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/storage"
	"github.com/rs/zerolog/log"
)

const tempPrefix = ".tmp-blob-"

// IsTempFile reports whether name is an in-progress AtomicWriteFile temp file
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

var _ storage.Store = (*Store)(nil)

// Store maps key a/b/c to <root>/a/b/c. Writes go through a temp file and rename
// so a reader never sees a half written blob.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("[fsstore.New] root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("[fsstore.New] %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, storage.Unavailable(err, "mkdir", abs)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute directory backing the store
func (s *Store) Root() string {
	return s.root
}

func (s *Store) pathFor(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes the store root", key)
	}
	return p, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := AtomicWriteFile(p, data, 0o600); err != nil {
		return storage.Unavailable(err, "put", key)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Unavailable(err, "get", key)
	}
	return data, nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Walk from the deepest directory the prefix fully names
	walkRoot := s.root
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir, err := s.pathFor(prefix[:i])
		if err != nil {
			return nil, err
		}
		walkRoot = dir
	}

	keys := make([]string, 0)
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || IsTempFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, storage.Unavailable(err, "list", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.Unavailable(err, "delete", key)
	}
	s.pruneEmptyParents(filepath.Dir(p))
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, prefix string) error {
	keys, err := s.ListKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// pruneEmptyParents removes now-empty directories up to, but not including, the root
func (s *Store) pruneEmptyParents(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// AtomicWriteFile writes data to a temp file in the target directory and renames it into
// place, creating parent directories as needed.
func AtomicWriteFile(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	var success bool
	defer func() {
		if !success {
			if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warn().Err(err).Str("path", tmp.Name()).Msg("failed to remove temporary blob")
			}
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}
