package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	DatabaseConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIPrefix() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type DatabaseConfig interface {
	GetDatabaseURL() string
}

type mainConfig struct {
	EnvVars
	Cors
	Tokens
	Security
	Database
}

// New builds a Config backed by the process environment only.
func New() Config {
	cfg, _ := Load("")
	return cfg
}

// Load builds a Config from the environment, optionally layered over a config file.
// Environment variables always win over file values.
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("[config Load] failed to read %s: %w", configFile, err)
			}
		}
	}

	return mainConfig{
		EnvVars:  EnvVars{v: v},
		Cors:     Cors{v: v},
		Tokens:   Tokens{v: v},
		Security: Security{v: v},
		Database: Database{v: v},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(portEnvVar, "8080")
	v.SetDefault(appNameVar, "Prepa Auth")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")
	v.SetDefault(apiPrefixVar, "")

	v.SetDefault(tokenAccessTTLVar, "5m")
	v.SetDefault(tokenRefreshTTLVar, "24h")
	v.SetDefault(tokenRevokeOnPasswordVar, true)

	v.SetDefault(recaptchaVerifyURLVar, "https://www.google.com/recaptcha/api/siteverify")
	v.SetDefault(recaptchaTimeoutVar, "5s")
	v.SetDefault(recaptchaMinScoreVar, 0.0)
	v.SetDefault(passwordMinEntropyVar, 0.0)

	v.SetDefault(corsAllowedOriginsVar, "http://localhost:5173")
}
