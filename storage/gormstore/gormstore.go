// Package gormstore keeps credential blobs in a SQL table through gorm, on sqlite or postgres.
package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/jrsteele09/wa-session-gateway/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

type blobRow struct {
	Key       string    `gorm:"column:blob_key;primaryKey;size:512"`
	Data      []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (blobRow) TableName() string {
	return "credential_blobs"
}

// New opens the database and migrates the blob table
func New(driver, dsn string) (*Store, error) {
	db, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB uses an already opened handle
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&blobRow{}); err != nil {
		return nil, fmt.Errorf("migrate blob store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	now := time.Now().UTC()
	row := blobRow{Key: key, Data: data, CreatedAt: now, UpdatedAt: now}
	if row.Data == nil {
		row.Data = []byte{}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blob_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&row).Error
	return storage.Unavailable(err, "put", key)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var row blobRow
	err := s.db.WithContext(ctx).Where("blob_key = ?", key).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Unavailable(err, "get", key)
	}
	return row.Data, nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := s.db.WithContext(ctx).
		Model(&blobRow{}).
		Where(`blob_key LIKE ? ESCAPE '\'`, likePrefix(prefix)).
		Order("blob_key").
		Pluck("blob_key", &keys).Error
	if err != nil {
		return nil, storage.Unavailable(err, "list", prefix)
	}
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("blob_key = ?", key).Delete(&blobRow{}).Error
	return storage.Unavailable(err, "delete", key)
}

func (s *Store) DeleteAll(ctx context.Context, prefix string) error {
	err := s.db.WithContext(ctx).
		Where(`blob_key LIKE ? ESCAPE '\'`, likePrefix(prefix)).
		Delete(&blobRow{}).Error
	return storage.Unavailable(err, "deleteAll", prefix)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
