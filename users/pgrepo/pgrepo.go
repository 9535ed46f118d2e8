// Package pgrepo is the PostgreSQL principal store. Uniqueness of username and email is
// enforced by table constraints; constraint violations are the only source of
// ErrUsernameTaken / ErrEmailTaken.
package pgrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	apperrors "github.com/jrsteele09/prepa-auth/internal/errors"
	"github.com/jrsteele09/prepa-auth/users"
	"github.com/jrsteele09/prepa-auth/users/pgrepo/migrations"
	"github.com/pressly/goose/v3"
)

const (
	uniqueViolation    = "23505"
	valueTooLong       = "22001"
	usernameConstraint = "principals_username_key"
	emailConstraint    = "principals_email_key"

	principalColumns = `id, username, email, password_hash, first_name, last_name, date_joined, last_login, active`
)

// DBTX is the subset of *sql.DB and *sql.Tx used by the repository.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ users.UserRepo = (*UserRepo)(nil)

type UserRepo struct {
	db DBTX
}

func New(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

// Open connects to Postgres through the pgx stdlib driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (r *UserRepo) Insert(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}

	query :=
		`INSERT INTO principals (id, username, email, password_hash, first_name, last_name, date_joined, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.DateJoined, user.Active)
	if err != nil {
		return mapWriteError(fmt.Errorf("db error: %w", err))
	}
	return nil
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*users.User, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*users.User, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// UpdateProfile is a single UPDATE; a username or email owned by another row fails the
// unique constraint rather than a prior read.
func (r *UserRepo) UpdateProfile(ctx context.Context, id string, update users.ProfileUpdate) (*users.User, error) {
	query :=
		`UPDATE principals SET username = $2, email = $3, first_name = $4, last_name = $5
		 WHERE id = $1
		 RETURNING ` + principalColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id, update.Username, update.Email, update.FirstName, update.LastName))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return user, nil
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) (*users.User, error) {
	query :=
		`UPDATE principals SET password_hash = $2
		 WHERE id = $1
		 RETURNING ` + principalColumns

	return scanUser(r.db.QueryRowContext(ctx, query, id, passwordHash))
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE principals SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func scanUser(row *sql.Row) (*users.User, error) {
	var (
		user      users.User
		lastLogin sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.DateJoined, &lastLogin, &user.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return &user, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// mapWriteError turns unique constraint violations and over-length values into the
// domain errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		switch pgErr.ConstraintName {
		case usernameConstraint:
			return apperrors.ErrUsernameTaken
		case emailConstraint:
			return apperrors.ErrEmailTaken
		}
	case valueTooLong:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRequest, pgErr.Message)
	}
	return err
}
