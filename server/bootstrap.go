package server

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/wa-session-gateway/dispatch"
	"github.com/jrsteele09/wa-session-gateway/internal/config"
	"github.com/jrsteele09/wa-session-gateway/persistence"
	"github.com/jrsteele09/wa-session-gateway/qrcache"
	"github.com/jrsteele09/wa-session-gateway/sessions"
	"github.com/jrsteele09/wa-session-gateway/storage"
	"github.com/jrsteele09/wa-session-gateway/storage/fsstore"
	"github.com/jrsteele09/wa-session-gateway/storage/gormstore"
	"github.com/jrsteele09/wa-session-gateway/storage/s3store"
	"github.com/jrsteele09/wa-session-gateway/waclient"
	"github.com/rs/zerolog/log"
)

// Gateway holds the wired components behind the HTTP server
type Gateway struct {
	Store      storage.Store
	Sync       *persistence.Synchronizer
	QR         *qrcache.Cache
	Sessions   *sessions.Manager
	Dispatcher *dispatch.Dispatcher

	closeStore func() error
}

// Bootstrap builds the credential store and the session components on top of it.
// factory constructs the messaging client for each tenant.
func Bootstrap(ctx context.Context, cfg config.Config, factory waclient.Factory) (*Gateway, error) {
	store, closeStore, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("[Bootstrap] credential store: %w", err)
	}

	sync := persistence.New(store, cfg.GetDataFolder(),
		persistence.WithSettle(cfg.GetPersistSettle(), cfg.GetPersistMaxSettle()))
	qr := qrcache.New(
		qrcache.WithTTL(cfg.GetQRTTL()),
		qrcache.WithTimeout(cfg.GetQRTimeout()))
	manager := sessions.NewManager(factory, sync, qr)
	dispatcher := dispatch.New(manager,
		dispatch.WithSendTimeout(cfg.GetSendTimeout()),
		dispatch.WithConcurrency(cfg.GetBulkConcurrency()))

	log.Info().
		Str("data_folder", cfg.GetDataFolder()).
		Dur("qr_ttl", cfg.GetQRTTL()).
		Dur("qr_timeout", cfg.GetQRTimeout()).
		Bool("auth", cfg.GetRequireAuth()).
		Msg("gateway initialised")

	return &Gateway{
		Store:      store,
		Sync:       sync,
		QR:         qr,
		Sessions:   manager,
		Dispatcher: dispatcher,
		closeStore: closeStore,
	}, nil
}

// Close shuts every session down without purging, then releases the store
func (g *Gateway) Close(ctx context.Context) error {
	err := g.Sessions.Close(ctx)
	if g.closeStore != nil {
		if cerr := g.closeStore(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// NewStore opens the configured durable backend, sealing it when an encryption key is set.
// The returned close func is never nil.
func NewStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	var (
		store     storage.Store
		closeFunc = noop
	)
	switch backend := cfg.GetStorageBackend(); backend {
	case config.BackendMemory, "":
		store = storage.NewInMemoryStore()
		log.Warn().Msg("using in-memory credential store, sessions will not survive a restart")
	case config.BackendFS:
		fs, err := fsstore.New(cfg.GetStoragePath())
		if err != nil {
			return nil, noop, err
		}
		store = fs
	case config.BackendSQL:
		db, err := gormstore.New(cfg.GetStorageSQLDriver(), cfg.GetStorageSQLDSN())
		if err != nil {
			return nil, noop, err
		}
		store, closeFunc = db, db.Close
	case config.BackendS3:
		s3, err := s3store.New(ctx, s3store.Options{
			Endpoint:  cfg.GetS3Endpoint(),
			Bucket:    cfg.GetS3Bucket(),
			Region:    cfg.GetS3Region(),
			AccessKey: cfg.GetS3AccessKey(),
			SecretKey: cfg.GetS3SecretKey(),
			UseSSL:    cfg.GetS3UseSSL(),
		})
		if err != nil {
			return nil, noop, err
		}
		store = s3
	default:
		return nil, noop, fmt.Errorf("[NewStore] unknown storage backend %q", backend)
	}

	sealed := false
	if encoded := cfg.GetStorageEncryptionKey(); encoded != "" {
		masterKey, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			_ = closeFunc()
			return nil, noop, fmt.Errorf("[NewStore] encryption key is not valid base64: %w", err)
		}
		sealedStore, err := storage.NewSealedStore(store, masterKey)
		if err != nil {
			_ = closeFunc()
			return nil, noop, err
		}
		store, sealed = sealedStore, true
	}

	log.Info().Str("backend", cfg.GetStorageBackend()).Bool("sealed", sealed).Msg("credential store ready")
	return store, closeFunc, nil
}
