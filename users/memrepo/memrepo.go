package memrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/prepa-auth/internal/errors"
	"github.com/jrsteele09/prepa-auth/internal/utils"
	"github.com/jrsteele09/prepa-auth/users"
)

var _ users.UserRepo = (*UserRepo)(nil)

// UserRepo is an in-memory principal store. Every uniqueness check and the write that
// depends on it happen inside one critical section.
type UserRepo struct {
	users       map[string]*users.User
	usernameIds map[string]string // username to user id
	emailIds    map[string]string // email to user id
	lock        sync.RWMutex
}

func New() *UserRepo {
	return &UserRepo{
		users:       make(map[string]*users.User),
		usernameIds: make(map[string]string),
		emailIds:    make(map[string]string),
	}
}

func (ur *UserRepo) Insert(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if err := ur.checkUnique("", user.Username, user.Email); err != nil {
		return err
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if _, exists := ur.users[user.ID]; exists {
		return apperrors.Wrapf(apperrors.ErrInternal, "user id %s already exists", user.ID)
	}

	stored := user.Clone()
	ur.users[stored.ID] = stored
	ur.usernameIds[stored.Username] = stored.ID
	ur.emailIds[stored.Email] = stored.ID
	return nil
}

func (ur *UserRepo) FindByUsername(_ context.Context, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.usernameIds[username]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}

func (ur *UserRepo) FindByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return user.Clone(), nil
}

func (ur *UserRepo) UpdateProfile(_ context.Context, id string, update users.ProfileUpdate) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if err := ur.checkUnique(id, update.Username, update.Email); err != nil {
		return nil, err
	}

	delete(ur.usernameIds, user.Username)
	delete(ur.emailIds, user.Email)
	user.Username = update.Username
	user.Email = update.Email
	user.FirstName = update.FirstName
	user.LastName = update.LastName
	ur.usernameIds[user.Username] = id
	ur.emailIds[user.Email] = id
	return user.Clone(), nil
}

func (ur *UserRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	user.PasswordHash = passwordHash
	return user.Clone(), nil
}

func (ur *UserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	user.LastLogin = utils.Ptr(at)
	return nil
}

func (ur *UserRepo) Delete(_ context.Context, id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(ur.usernameIds, user.Username)
	delete(ur.emailIds, user.Email)
	delete(ur.users, id)
	return nil
}

// checkUnique must be called with the write lock held. selfID is excluded from the check.
func (ur *UserRepo) checkUnique(selfID, username, email string) error {
	if owner, ok := ur.usernameIds[username]; ok && owner != selfID {
		return apperrors.ErrUsernameTaken
	}
	if owner, ok := ur.emailIds[email]; ok && owner != selfID {
		return apperrors.ErrEmailTaken
	}
	return nil
}
