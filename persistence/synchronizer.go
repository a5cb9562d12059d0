// Package persistence moves a tenant's credential material between the client's local
// working directory and the durable store.
package persistence

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jrsteele09/wa-session-gateway/storage"
	"github.com/jrsteele09/wa-session-gateway/storage/fsstore"
	"github.com/jrsteele09/wa-session-gateway/waclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSettle    = 2 * time.Second
	DefaultMaxSettle = 10 * time.Second
)

// Files the client keeps only while running. They are never uploaded.
var transientSuffixes = []string{"-shm", ".lock", ".tmp"}

type RestoreResult struct {
	Restored bool
	Files    int
}

type PersistResult struct {
	Uploaded int
	Pruned   int
}

type Synchronizer struct {
	store      storage.Store
	dataFolder string
	settle     time.Duration
	maxSettle  time.Duration
}

type Option func(*Synchronizer)

// WithSettle sets how long the credential dir must be quiet before upload, and the upper
// bound on waiting for that quiet.
func WithSettle(settle, maxSettle time.Duration) Option {
	return func(s *Synchronizer) {
		s.settle = settle
		s.maxSettle = maxSettle
	}
}

func New(store storage.Store, dataFolder string, options ...Option) *Synchronizer {
	s := &Synchronizer{
		store:      store,
		dataFolder: dataFolder,
		settle:     DefaultSettle,
		maxSettle:  DefaultMaxSettle,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// CredentialDir is where the tenant's client keeps its credential material
func (s *Synchronizer) CredentialDir(tenantID string) string {
	return filepath.Join(s.dataFolder, tenantID)
}

// Restore downloads the tenant's stored credential files into the credential dir. Nothing
// stored is not an error. Local files with no stored counterpart are removed so the client
// never mixes stale and restored material.
func (s *Synchronizer) Restore(ctx context.Context, tenantID string) (RestoreResult, error) {
	keys, err := s.store.ListKeys(ctx, storage.TenantPrefix(tenantID))
	if err != nil {
		return RestoreResult{}, errors.Wrap(err, "[Synchronizer Restore] list")
	}
	if len(keys) == 0 {
		return RestoreResult{}, nil
	}

	dir := s.CredentialDir(tenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return RestoreResult{}, errors.Wrap(err, "[Synchronizer Restore] mkdir")
	}

	res, err := s.restoreFiles(ctx, tenantID, dir, keys)
	if err != nil {
		// a half restored dir would mix material from two sessions
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("tenant", tenantID).Msg("failed to clear partially restored credentials")
		}
		return RestoreResult{}, err
	}

	res.Restored = res.Files > 0
	log.Info().Str("tenant", tenantID).Int("files", res.Files).Msg("restored credentials")
	return res, nil
}

func (s *Synchronizer) restoreFiles(ctx context.Context, tenantID, dir string, keys []string) (RestoreResult, error) {
	res := RestoreResult{}
	wanted := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		name, ok := storage.RelativeName(tenantID, key)
		if !ok {
			continue
		}
		target, err := s.localPath(tenantID, name)
		if err != nil {
			log.Warn().Err(err).Str("tenant", tenantID).Str("key", key).Msg("skipping stored blob")
			continue
		}
		wanted[target] = struct{}{}

		data, err := s.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return res, errors.Wrapf(err, "[Synchronizer Restore] get %s", key)
		}
		if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, data) {
			res.Files++
			continue
		}
		if err := fsstore.AtomicWriteFile(target, data, 0o600); err != nil {
			return res, errors.Wrapf(err, "[Synchronizer Restore] write %s", name)
		}
		res.Files++
	}

	files, err := localFiles(dir, true)
	if err != nil {
		return res, errors.Wrap(err, "[Synchronizer Restore] scan")
	}
	for _, f := range files {
		if _, ok := wanted[f]; !ok {
			if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warn().Err(err).Str("tenant", tenantID).Str("file", f).Msg("failed to remove stale credential file")
			}
		}
	}

	return res, nil
}

// Persist uploads the tenant's credential files. flusher, when not nil, is asked to write
// its pending state first; the upload then waits for the directory to settle. Stored keys
// with no local file are deleted.
func (s *Synchronizer) Persist(ctx context.Context, tenantID string, flusher waclient.Flusher) (PersistResult, error) {
	dir := s.CredentialDir(tenantID)
	if _, err := os.Stat(dir); err != nil {
		return PersistResult{}, errors.Wrap(err, "[Synchronizer Persist] credential dir")
	}

	if flusher != nil {
		if err := flusher.Flush(ctx); err != nil {
			log.Warn().Err(err).Str("tenant", tenantID).Msg("client flush failed, relying on settle interval")
		}
	}
	if err := waitForQuiet(ctx, dir, s.settle, s.maxSettle); err != nil {
		return PersistResult{}, errors.Wrap(err, "[Synchronizer Persist] settle")
	}

	files, err := localFiles(dir, false)
	if err != nil {
		return PersistResult{}, errors.Wrap(err, "[Synchronizer Persist] scan")
	}

	res := PersistResult{}
	uploaded := make(map[string]struct{}, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			return res, errors.Wrap(err, "[Synchronizer Persist] rel")
		}
		data, err := os.ReadFile(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return res, errors.Wrapf(err, "[Synchronizer Persist] read %s", rel)
		}
		key := storage.Key(tenantID, filepath.ToSlash(rel))
		if err := s.store.Put(ctx, key, data); err != nil {
			return res, errors.Wrapf(err, "[Synchronizer Persist] put %s", key)
		}
		uploaded[key] = struct{}{}
		res.Uploaded++
	}

	keys, err := s.store.ListKeys(ctx, storage.TenantPrefix(tenantID))
	if err != nil {
		return res, errors.Wrap(err, "[Synchronizer Persist] list")
	}
	for _, key := range keys {
		if _, ok := uploaded[key]; ok {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return res, errors.Wrapf(err, "[Synchronizer Persist] prune %s", key)
		}
		res.Pruned++
	}

	log.Info().Str("tenant", tenantID).Int("uploaded", res.Uploaded).Int("pruned", res.Pruned).Msg("persisted credentials")
	return res, nil
}

// Purge deletes every stored blob for the tenant and the local credential dir
func (s *Synchronizer) Purge(ctx context.Context, tenantID string) error {
	storeErr := s.store.DeleteAll(ctx, storage.TenantPrefix(tenantID))
	if err := os.RemoveAll(s.CredentialDir(tenantID)); err != nil {
		log.Warn().Err(err).Str("tenant", tenantID).Msg("failed to remove local credential dir")
	}
	if storeErr != nil {
		return errors.Wrap(storeErr, "[Synchronizer Purge]")
	}
	log.Info().Str("tenant", tenantID).Msg("purged credentials")
	return nil
}

func (s *Synchronizer) localPath(tenantID, name string) (string, error) {
	dir := s.CredentialDir(tenantID)
	p := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(p, dir+string(filepath.Separator)) {
		return "", errors.Errorf("blob name %q escapes the credential dir", name)
	}
	return p, nil
}

// localFiles lists regular files under dir, skipping transient ones unless asked for
func localFiles(dir string, withTransient bool) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() || (!withTransient && isTransient(d.Name())) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

func isTransient(name string) bool {
	if fsstore.IsTempFile(name) {
		return true
	}
	for _, suffix := range transientSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
