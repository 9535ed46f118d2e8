// Package captcha checks the captcha response submitted with a login attempt against
// the reCAPTCHA verification service.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/prepa-auth/internal/errors"
)

const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// maxResponseBytes bounds how much of the verifier's reply is read.
const maxResponseBytes = 64 << 10

// Validator reports whether a captcha response proves a human submitter.
// A false result with a nil error is a rejected challenge; a non-nil error means the
// verdict could not be obtained and the caller must deny.
type Validator interface {
	Validate(ctx context.Context, response string) (bool, error)
}

type siteVerifyResponse struct {
	Success    *bool    `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

type ReCaptchaVerifier struct {
	client    *http.Client
	verifyURL string
	secret    string
	timeout   time.Duration
	minScore  float64
}

type VerifierOption func(*ReCaptchaVerifier)

func WithHTTPClient(client *http.Client) VerifierOption {
	return func(v *ReCaptchaVerifier) {
		v.client = client
	}
}

func WithVerifyURL(verifyURL string) VerifierOption {
	return func(v *ReCaptchaVerifier) {
		v.verifyURL = verifyURL
	}
}

func WithTimeout(timeout time.Duration) VerifierOption {
	return func(v *ReCaptchaVerifier) {
		v.timeout = timeout
	}
}

// WithMinScore rejects v3 responses scoring below minScore. Zero disables the check.
func WithMinScore(minScore float64) VerifierOption {
	return func(v *ReCaptchaVerifier) {
		v.minScore = minScore
	}
}

func NewReCaptchaVerifier(secret string, options ...VerifierOption) *ReCaptchaVerifier {
	v := &ReCaptchaVerifier{
		secret: secret,
	}
	for _, opt := range options {
		opt(v)
	}
	if v.client == nil {
		v.client = &http.Client{}
	}
	if v.verifyURL == "" {
		v.verifyURL = DefaultVerifyURL
	}
	if v.timeout <= 0 {
		v.timeout = 5 * time.Second
	}
	return v
}

// Validate makes a single verification call bounded by the configured timeout.
func (v *ReCaptchaVerifier) Validate(ctx context.Context, response string) (bool, error) {
	if strings.TrimSpace(response) == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", response)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, unavailable("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, unavailable("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, unavailable("unexpected status %s", resp.Status)
	}

	var body siteVerifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return false, unavailable("decode: %v", err)
	}
	if body.Success == nil {
		return false, unavailable("response has no success field")
	}
	if !*body.Success {
		return false, nil
	}
	if v.minScore > 0 && (body.Score == nil || *body.Score < v.minScore) {
		return false, nil
	}
	return true, nil
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrVerificationUnavailable, fmt.Sprintf(format, args...))
}

// StaticValidator returns a fixed verdict. Used when no verification secret is configured
// in development and in tests.
type StaticValidator struct {
	Valid bool
	Err   error
}

func (s StaticValidator) Validate(_ context.Context, response string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	if strings.TrimSpace(response) == "" {
		return false, nil
	}
	return s.Valid, nil
}
