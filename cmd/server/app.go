package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/prepa-auth/auth"
	"github.com/jrsteele09/prepa-auth/captcha"
	"github.com/jrsteele09/prepa-auth/internal/config"
	"github.com/jrsteele09/prepa-auth/token"
	"github.com/jrsteele09/prepa-auth/users"
	"github.com/jrsteele09/prepa-auth/users/memrepo"
	"github.com/jrsteele09/prepa-auth/users/pgrepo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type application struct {
	auth    *auth.AuthenticationService
	closers []func() error
}

func (a *application) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func buildApp(ctx context.Context, c config.Config) (*application, error) {
	app := &application{}

	userRepo, err := buildUserRepo(ctx, c, app)
	if err != nil {
		return nil, err
	}

	validator, err := buildCaptchaValidator(c)
	if err != nil {
		app.close()
		return nil, err
	}

	signer, err := buildSigner(c)
	if err != nil {
		app.close()
		return nil, err
	}

	tokenOptions := []token.ManagerOption{
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
	}
	if issuer := c.GetTokenIssuer(); issuer != "" {
		tokenOptions = append(tokenOptions, token.WithIssuer(issuer))
	}

	app.auth, err = auth.NewAuthenticationService(auth.Dependencies{
		Users:   userRepo,
		Captcha: validator,
		Tokens:  token.New(signer, tokenOptions...),
	},
		auth.WithPasswordMinEntropy(c.GetPasswordMinEntropy()),
		auth.WithRevokeOnPasswordChange(c.GetRevokeOnPasswordChange()),
	)
	if err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

// buildUserRepo selects Postgres when DATABASE_URL is set and the in-memory store otherwise.
func buildUserRepo(ctx context.Context, c config.Config, app *application) (users.UserRepo, error) {
	dsn := c.GetDatabaseURL()
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, principals are kept in memory")
		return memrepo.New(), nil
	}

	db, err := pgrepo.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db.Close)

	if err := pgrepo.RunMigrations(ctx, db); err != nil {
		app.close()
		return nil, err
	}
	return pgrepo.New(db), nil
}

func buildCaptchaValidator(c config.Config) (captcha.Validator, error) {
	secret := c.GetReCaptchaSecret()
	if secret == "" {
		if c.GetEnv() != "DEV" {
			return nil, errors.New("RECAPTCHA_SECRET is required outside DEV")
		}
		log.Warn().Msg("RECAPTCHA_SECRET not set, any non-empty captcha response is accepted")
		return captcha.StaticValidator{Valid: true}, nil
	}

	return captcha.NewReCaptchaVerifier(secret,
		captcha.WithVerifyURL(c.GetReCaptchaVerifyURL()),
		captcha.WithTimeout(c.GetReCaptchaTimeout()),
		captcha.WithMinScore(c.GetReCaptchaMinScore()),
	), nil
}

func buildSigner(c config.Config) (token.Signer, error) {
	secret := c.GetTokenSecret()
	if secret != "" {
		return token.NewHMACSigner(secret), nil
	}
	if c.GetEnv() != "DEV" {
		return nil, errors.New("TOKEN_SECRET is required outside DEV")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	log.Warn().Msg("TOKEN_SECRET not set, using an ephemeral signing secret")
	return token.NewHMACSigner(hex.EncodeToString(buf)), nil
}
