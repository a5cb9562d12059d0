package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Durable store backends
const (
	BackendMemory = "memory"
	BackendFS     = "fs"
	BackendSQL    = "sql"
	BackendS3     = "s3"
)

const (
	storageBackendVar       = "STORAGE_BACKEND"
	storagePathVar          = "STORAGE_PATH"
	storageSQLDriverVar     = "STORAGE_SQL_DRIVER"
	storageSQLDSNVar        = "STORAGE_SQL_DSN"
	s3EndpointVar           = "S3_ENDPOINT"
	s3BucketVar             = "S3_BUCKET"
	s3RegionVar             = "S3_REGION"
	s3AccessKeyVar          = "S3_ACCESS_KEY"
	s3SecretKeyVar          = "S3_SECRET_KEY"
	s3UseSSLVar             = "S3_USE_SSL"
	storageEncryptionKeyVar = "STORAGE_ENCRYPTION_KEY"
)

type StorageConfig interface {
	GetStorageBackend() string
	GetStoragePath() string
	GetStorageSQLDriver() string
	GetStorageSQLDSN() string
	GetS3Endpoint() string
	GetS3Bucket() string
	GetS3Region() string
	GetS3AccessKey() string
	GetS3SecretKey() string
	GetS3UseSSL() bool
	GetStorageEncryptionKey() string
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() string {
	return strings.ToLower(strings.TrimSpace(s.v.GetString(storageBackendVar)))
}

func (s Storage) GetStoragePath() string {
	return s.v.GetString(storagePathVar)
}

func (s Storage) GetStorageSQLDriver() string {
	return s.v.GetString(storageSQLDriverVar)
}

func (s Storage) GetStorageSQLDSN() string {
	return s.v.GetString(storageSQLDSNVar)
}

func (s Storage) GetS3Endpoint() string {
	return s.v.GetString(s3EndpointVar)
}

func (s Storage) GetS3Bucket() string {
	return s.v.GetString(s3BucketVar)
}

func (s Storage) GetS3Region() string {
	return s.v.GetString(s3RegionVar)
}

func (s Storage) GetS3AccessKey() string {
	return s.v.GetString(s3AccessKeyVar)
}

func (s Storage) GetS3SecretKey() string {
	return s.v.GetString(s3SecretKeyVar)
}

func (s Storage) GetS3UseSSL() bool {
	return s.v.GetBool(s3UseSSLVar)
}

// GetStorageEncryptionKey is a base64 master key. Empty disables at-rest sealing.
func (s Storage) GetStorageEncryptionKey() string {
	return s.v.GetString(storageEncryptionKeyVar)
}
