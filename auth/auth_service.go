package auth

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/prepa-auth/captcha"
	apperrors "github.com/jrsteele09/prepa-auth/internal/errors"
	"github.com/jrsteele09/prepa-auth/token"
	"github.com/jrsteele09/prepa-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Tokens *token.Pair
	User   users.ProfileView
}

// Registration carries the fields accepted when creating a principal.
type Registration struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Dependencies holds the collaborators of the AuthenticationService
type Dependencies struct {
	Users   users.UserRepo    // Principal store
	Captcha captcha.Validator // Login gate
	Tokens  *token.Manager    // Token issuing and verification
}

// AuthenticationService owns credential checks, token issuance and the principal
// operations that run on an already verified identity.
type AuthenticationService struct {
	deps                   Dependencies
	passwordMinEntropy     float64
	revokeOnPasswordChange bool
	nowTime                func() time.Time // injectable for testing
}

// AuthenticationServiceOption defines a function type to modify the AuthenticationService instance.
type AuthenticationServiceOption func(*AuthenticationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthenticationServiceOption {
	return func(as *AuthenticationService) {
		as.nowTime = nowFunc
	}
}

// WithPasswordMinEntropy enables the password strength check for new passwords.
func WithPasswordMinEntropy(bits float64) AuthenticationServiceOption {
	return func(as *AuthenticationService) {
		as.passwordMinEntropy = bits
	}
}

// WithRevokeOnPasswordChange controls whether a password change voids the principal's
// outstanding tokens.
func WithRevokeOnPasswordChange(revoke bool) AuthenticationServiceOption {
	return func(as *AuthenticationService) {
		as.revokeOnPasswordChange = revoke
	}
}

func NewAuthenticationService(deps Dependencies, options ...AuthenticationServiceOption) (*AuthenticationService, error) {
	if deps.Users == nil {
		return nil, errors.New("[NewAuthenticationService] Users repo is required")
	}
	if deps.Captcha == nil {
		return nil, errors.New("[NewAuthenticationService] Captcha validator is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("[NewAuthenticationService] Tokens manager is required")
	}

	as := &AuthenticationService{
		deps:                   deps,
		revokeOnPasswordChange: true,
		nowTime:                time.Now,
	}

	for _, opt := range options {
		opt(as)
	}

	return as, nil
}

// Login checks the captcha, then the credentials, and issues a token pair.
// Unknown usernames, wrong passwords and inactive accounts are indistinguishable.
func (as *AuthenticationService) Login(ctx context.Context, username, password, captchaResponse string) (*LoginResult, error) {
	username = strings.TrimSpace(username)

	valid, err := as.deps.Captcha.Validate(ctx, captchaResponse)
	if err != nil {
		log.Error().Err(err).Msg("captcha verification failed")
		return nil, apperrors.ErrCaptchaInvalid
	}
	if !valid {
		log.Debug().Str("username", username).Msg("captcha rejected")
		return nil, apperrors.ErrCaptchaInvalid
	}

	user, err := as.deps.Users.FindByUsername(ctx, username)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[AuthenticationService.Login] FindByUsername")
	}

	// user is nil for unknown usernames; the comparison still runs.
	if !user.CheckPasswordHash(password) || !user.Active {
		log.Debug().Str("username", username).Msg("login rejected")
		return nil, apperrors.ErrNoActiveAccount
	}

	pair, err := as.deps.Tokens.IssuePair(user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthenticationService.Login] IssuePair")
	}

	now := as.nowTime().UTC()
	if err := as.deps.Users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}

	return &LoginResult{Tokens: pair, User: user.Profile()}, nil
}

// Register creates an active principal. No tokens are issued.
func (as *AuthenticationService) Register(ctx context.Context, reg Registration) (*users.ProfileView, error) {
	fields := users.ProfileUpdate{
		Username:  reg.Username,
		Email:     reg.Email,
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
	}.Normalise()
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	if err := users.ValidatePasswordStrength(reg.Password, as.passwordMinEntropy); err != nil {
		return nil, err
	}

	hash, err := users.HashPassword(reg.Password)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthenticationService.Register] HashPassword")
	}

	user := &users.User{
		Username:     fields.Username,
		Email:        fields.Email,
		PasswordHash: hash,
		FirstName:    fields.FirstName,
		LastName:     fields.LastName,
		DateJoined:   as.nowTime().UTC(),
		Active:       true,
	}
	if err := as.deps.Users.Insert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[AuthenticationService.Register] Insert")
	}

	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("principal registered")
	profile := user.Profile()
	return &profile, nil
}

// Refresh exchanges a refresh token for a new access token.
func (as *AuthenticationService) Refresh(_ context.Context, refreshToken string) (string, error) {
	access, err := as.deps.Tokens.Refresh(refreshToken)
	if err != nil {
		log.Debug().Err(err).Msg("refresh rejected")
		return "", err
	}
	return access, nil
}

// Authenticate returns the principal id bound to a valid access token.
func (as *AuthenticationService) Authenticate(rawAccessToken string) (string, error) {
	claims, err := as.deps.Tokens.VerifyAccess(rawAccessToken)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (as *AuthenticationService) GetProfile(ctx context.Context, userID string) (*users.ProfileView, error) {
	user, err := as.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthenticationService.GetProfile] FindByID")
	}
	profile := user.Profile()
	return &profile, nil
}

// UpdateProfile replaces the identity fields of the principal. Uniqueness is decided by the
// store in the same step as the write.
func (as *AuthenticationService) UpdateProfile(ctx context.Context, userID string, update users.ProfileUpdate) (*users.ProfileView, error) {
	update = update.Normalise()
	if err := update.Validate(); err != nil {
		return nil, err
	}

	user, err := as.deps.Users.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthenticationService.UpdateProfile] UpdateProfile")
	}
	profile := user.Profile()
	return &profile, nil
}

func (as *AuthenticationService) ChangePassword(ctx context.Context, userID, newPassword string) (*users.ProfileView, error) {
	if err := users.ValidatePasswordStrength(newPassword, as.passwordMinEntropy); err != nil {
		return nil, err
	}

	hash, err := users.HashPassword(newPassword)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthenticationService.ChangePassword] HashPassword")
	}

	user, err := as.deps.Users.UpdatePasswordHash(ctx, userID, hash)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthenticationService.ChangePassword] UpdatePasswordHash")
	}

	if as.revokeOnPasswordChange {
		as.deps.Tokens.RevokeSubject(userID)
	}
	log.Info().Str("user_id", userID).Msg("password changed")

	profile := user.Profile()
	return &profile, nil
}

// DeletePrincipal removes the principal and voids its outstanding tokens.
func (as *AuthenticationService) DeletePrincipal(ctx context.Context, userID string) error {
	if err := as.deps.Users.Delete(ctx, userID); err != nil {
		return errors.Wrap(err, "[AuthenticationService.DeletePrincipal] Delete")
	}
	as.deps.Tokens.RevokeSubject(userID)
	log.Info().Str("user_id", userID).Msg("principal deleted")
	return nil
}

// CleanupRevokedTokens drops revocation cutoffs that can no longer match a live token.
func (as *AuthenticationService) CleanupRevokedTokens() {
	as.deps.Tokens.CleanupRevocations()
}
