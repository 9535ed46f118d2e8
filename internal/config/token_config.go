package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	tokenSecretVar           = "TOKEN_SECRET"
	tokenIssuerVar           = "TOKEN_ISSUER"
	tokenAccessTTLVar        = "TOKEN_ACCESS_TTL"
	tokenRefreshTTLVar       = "TOKEN_REFRESH_TTL"
	tokenRevokeOnPasswordVar = "TOKEN_REVOKE_ON_PASSWORD_CHANGE"
)

type TokenConfig interface {
	GetTokenSecret() string
	GetTokenIssuer() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRevokeOnPasswordChange() bool
}

type Tokens struct {
	v *viper.Viper
}

var _ TokenConfig = Tokens{}

// GetTokenSecret returns the HMAC secret used to sign both token types.
func (t Tokens) GetTokenSecret() string {
	return t.v.GetString(tokenSecretVar)
}

func (t Tokens) GetTokenIssuer() string {
	return t.v.GetString(tokenIssuerVar)
}

func (t Tokens) GetAccessTokenExpiry() time.Duration {
	return t.v.GetDuration(tokenAccessTTLVar)
}

func (t Tokens) GetRefreshTokenExpiry() time.Duration {
	return t.v.GetDuration(tokenRefreshTTLVar)
}

func (t Tokens) GetRevokeOnPasswordChange() bool {
	return t.v.GetBool(tokenRevokeOnPasswordVar)
}
