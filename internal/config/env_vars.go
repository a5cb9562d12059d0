package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	portEnvVar      = "PORT"
	appNameVar      = "APP_NAME"
	envVar          = "ENV"
	logLevelVar     = "LOG_LEVEL"
	folderEnvVar    = "DATA_FOLDER"
	clientDBNameVar = "CLIENT_DB_NAME"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.v.GetString(portEnvVar)
	if port != "" && port[0] != ':' {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameVar)
}

// GetEnv returns the deployment environment, upper-cased ("DEV", "PROD")
func (e EnvVars) GetEnv() string {
	env := strings.ToUpper(strings.TrimSpace(e.v.GetString(envVar)))
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(logLevelVar)
}

// GetDataFolder is the root of the per-tenant credential working directories.
// Its contents are a disposable cache of the durable store.
func (e EnvVars) GetDataFolder() string {
	return e.v.GetString(folderEnvVar)
}

// GetClientDBName is the file name of the messaging client's device database
// inside each tenant's credential directory.
func (e EnvVars) GetClientDBName() string {
	return e.v.GetString(clientDBNameVar)
}
