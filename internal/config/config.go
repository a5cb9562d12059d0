package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	StorageConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDataFolder() string
	GetClientDBName() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Sessions
	Storage
	Security
}

// New builds the gateway configuration on top of v. Defaults are registered and
// environment variables take precedence over any loaded config file.
// A nil v uses the process-wide viper instance.
func New(v *viper.Viper) Config {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return mainConfig{
		EnvVars:  EnvVars{v: v},
		Cors:     Cors{v: v},
		Sessions: Sessions{v: v},
		Storage:  Storage{v: v},
		Security: Security{v: v},
	}
}

// LoadFile reads an optional YAML/JSON/TOML config file into v.
// An empty path is a no-op.
func LoadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	return v.ReadInConfig()
}

// SetDefaults registers every known key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault(portEnvVar, "8080")
	v.SetDefault(appNameVar, "WA Session Gateway")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")
	v.SetDefault(folderEnvVar, "./data/sessions")
	v.SetDefault(clientDBNameVar, "device.db")

	v.SetDefault(allowedOriginsVar, "")

	v.SetDefault(qrTTLVar, "20s")
	v.SetDefault(qrTimeoutVar, "15s")
	v.SetDefault(persistSettleVar, "2s")
	v.SetDefault(persistMaxSettleVar, "10s")
	v.SetDefault(sendTimeoutVar, "30s")
	v.SetDefault(bulkConcurrencyVar, 4)

	v.SetDefault(storageBackendVar, BackendMemory)
	v.SetDefault(storagePathVar, "./data/blobs")
	v.SetDefault(storageSQLDriverVar, "sqlite")
	v.SetDefault(storageSQLDSNVar, "./data/blobs.db")
	v.SetDefault(s3EndpointVar, "")
	v.SetDefault(s3BucketVar, "wa-sessions")
	v.SetDefault(s3RegionVar, "")
	v.SetDefault(s3AccessKeyVar, "")
	v.SetDefault(s3SecretKeyVar, "")
	v.SetDefault(s3UseSSLVar, true)
	v.SetDefault(storageEncryptionKeyVar, "")

	v.SetDefault(jwtSecretVar, "")
}
