package config

import "github.com/spf13/viper"

const jwtSecretVar = "API_JWT_SECRET"

type SecurityConfig interface {
	GetJWTSecret() string
	GetRequireAuth() bool
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

// GetJWTSecret is the HMAC secret used to verify per-tenant bearer tokens
func (s Security) GetJWTSecret() string {
	return s.v.GetString(jwtSecretVar)
}

// GetRequireAuth is true once a secret has been configured
func (s Security) GetRequireAuth() bool {
	return s.GetJWTSecret() != ""
}
