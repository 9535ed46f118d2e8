package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	recaptchaSecretVar    = "RECAPTCHA_SECRET"
	recaptchaVerifyURLVar = "RECAPTCHA_VERIFY_URL"
	recaptchaTimeoutVar   = "RECAPTCHA_TIMEOUT"
	recaptchaMinScoreVar  = "RECAPTCHA_MIN_SCORE"
	passwordMinEntropyVar = "PASSWORD_MIN_ENTROPY"
)

type SecurityConfig interface {
	GetReCaptchaSecret() string
	GetReCaptchaVerifyURL() string
	GetReCaptchaTimeout() time.Duration
	GetReCaptchaMinScore() float64
	GetPasswordMinEntropy() float64
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

func (s Security) GetReCaptchaSecret() string {
	return s.v.GetString(recaptchaSecretVar)
}

func (s Security) GetReCaptchaVerifyURL() string {
	return s.v.GetString(recaptchaVerifyURLVar)
}

func (s Security) GetReCaptchaTimeout() time.Duration {
	return s.v.GetDuration(recaptchaTimeoutVar)
}

// GetReCaptchaMinScore is the reCAPTCHA v3 score floor. Zero disables the check.
func (s Security) GetReCaptchaMinScore() float64 {
	return s.v.GetFloat64(recaptchaMinScoreVar)
}

// GetPasswordMinEntropy is the minimum password entropy in bits. Zero disables the check.
func (s Security) GetPasswordMinEntropy() float64 {
	return s.v.GetFloat64(passwordMinEntropyVar)
}
