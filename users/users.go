package users

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/prepa-auth/internal/errors"
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLength = 150
	maxNameLength     = 150
	maxEmailLength    = 254
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}@.+\-_]+$`)

// User is the authenticated principal. Username and Email are each unique across all users.
type User struct {
	ID           string     `json:"id,omitempty"`          // Unique identifier for the user
	Username     string     `json:"username,omitempty"`    // Unique username
	Email        string     `json:"email,omitempty"`       // Unique email address
	PasswordHash string     `json:"-"`                     // Hashed version of the user's password - never serialize
	FirstName    string     `json:"first_name,omitempty"`  // First name of the user
	LastName     string     `json:"last_name,omitempty"`   // Last name of the user
	DateJoined   time.Time  `json:"date_joined,omitempty"` // Date and time when the user registered
	LastLogin    *time.Time `json:"last_login,omitempty"`  // Last time the user logged in, nil until the first login
	Active       bool       `json:"active"`                // Inactive users cannot log in
}

// ProfileView is the public projection of a User returned to clients.
type ProfileView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ProfileUpdate carries the mutable profile fields.
type ProfileUpdate struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

func (u *User) Profile() ProfileView {
	return ProfileView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// Clone returns a deep copy so stores never hand out their internal records.
func (u *User) Clone() *User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// Normalise trims the identity fields and lowercases the email domain.
func (p ProfileUpdate) Normalise() ProfileUpdate {
	p.Username = strings.TrimSpace(p.Username)
	p.Email = NormaliseEmail(p.Email)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	return p
}

// Validate checks the identity fields of an update or registration.
func (p ProfileUpdate) Validate() error {
	if err := ValidateUsername(p.Username); err != nil {
		return err
	}
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	if err := validateName("first_name", p.FirstName); err != nil {
		return err
	}
	return validateName("last_name", p.LastName)
}

func validateName(field, value string) error {
	if len([]rune(value)) > maxNameLength {
		return fmt.Errorf("%w: %s must be at most %d characters", apperrors.ErrInvalidRequest, field, maxNameLength)
	}
	return nil
}

func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", apperrors.ErrInvalidRequest)
	}
	if len([]rune(username)) > maxUsernameLength {
		return fmt.Errorf("%w: username must be at most %d characters", apperrors.ErrInvalidRequest, maxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: username may only contain letters, digits and @/./+/-/_", apperrors.ErrInvalidRequest)
	}
	return nil
}

func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", apperrors.ErrInvalidRequest)
	}
	if len([]rune(email)) > maxEmailLength {
		return fmt.Errorf("%w: email must be at most %d characters", apperrors.ErrInvalidRequest, maxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is not a valid address", apperrors.ErrInvalidRequest)
	}
	return nil
}

// NormaliseEmail lowercases the domain part, leaving the local part untouched.
func NormaliseEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// ValidatePasswordStrength rejects empty passwords and, when minEntropyBits is positive,
// passwords whose estimated entropy is below it.
func ValidatePasswordStrength(password string, minEntropyBits float64) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", apperrors.ErrInvalidRequest)
	}
	if minEntropyBits <= 0 {
		return nil
	}
	if err := passwordvalidator.Validate(password, minEntropyBits); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrWeakPassword, err.Error())
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var dummyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("prepa-auth-timing-equaliser")
	if err != nil {
		panic("users: failed to build dummy password hash: " + err.Error())
	}
	return hash
})

// CheckPasswordHash checks a password against the user's hash. A nil user still pays for a
// full bcrypt comparison so unknown usernames and wrong passwords take the same time.
func (u *User) CheckPasswordHash(password string) bool {
	if u == nil {
		_ = CheckPasswordHash(password, dummyHash())
		return false
	}
	return CheckPasswordHash(password, u.PasswordHash)
}
