// Package users manages the operator accounts referenced by documents and
// audit entries.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/warelog/warelog/internal/platform/db"
	"github.com/warelog/warelog/internal/shared"
)

// Role enumerates account roles.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleOperator = "operator"
)

// User is one operator account. PasswordHash never leaves the package.
type User struct {
	ID           int64
	Username     string
	FullName     string
	Role         string
	passwordHash string
	Active       bool
	CreatedAt    time.Time
}

// Repository persists users.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates the users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const userColumns = `id, username, full_name, role, password_hash, is_active, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.passwordHash, &u.Active, &u.CreatedAt)
	return u, err
}

// Get loads one user.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

// GetByUsername loads one user by name.
func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

// List returns all users ordered by name.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Create inserts the user with its hash.
func (r *Repository) Create(ctx context.Context, u User, hash string) (User, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO users (username, full_name, role, password_hash, is_active, created_at)
VALUES ($1,$2,$3,$4,TRUE,NOW()) RETURNING id, created_at`, u.Username, u.FullName, u.Role, hash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "users_username_key") {
			return User{}, shared.Invalidf("username %q already taken", u.Username)
		}
		return User{}, err
	}
	u.Active = true
	u.passwordHash = hash
	return u, nil
}

// SetActive toggles the account.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Service wraps the repository with password handling.
type Service struct {
	repo *Repository
}

// NewService creates the users service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput describes a new account.
type CreateInput struct {
	Username string
	FullName string
	Role     string
	Password string
}

// Create validates the input, hashes the password and stores the account.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	if strings.TrimSpace(in.Username) == "" {
		return User{}, shared.Invalidf("username is required")
	}
	if len(in.Password) < 8 {
		return User{}, shared.Invalidf("password must be at least 8 characters")
	}
	switch in.Role {
	case RoleAdmin, RoleManager, RoleOperator:
	default:
		return User{}, shared.Invalidf("unknown role %q", in.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.Create(ctx, User{Username: in.Username, FullName: in.FullName, Role: in.Role}, string(hash))
}

// Verify checks credentials and returns the account when they match.
func (s *Service) Verify(ctx context.Context, username, password string) (User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if !u.Active {
		return User{}, shared.Invalidf("account is disabled")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) != nil {
		return User{}, shared.Invalidf("invalid credentials")
	}
	return u, nil
}

// Get loads one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, shared.Invalidf("invalid user id")
	}
	return s.repo.Get(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Deactivate disables the account.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalidf("invalid user id")
	}
	return s.repo.SetActive(ctx, id, false)
}
