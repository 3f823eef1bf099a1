package auth

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt
	Role         string
}

type UserStore interface {
	FindUser(ctx context.Context, username string) (User, error)
}

// UserAdmin is the write side used by seeding and the /users endpoints.
type UserAdmin interface {
	UserStore
	UpsertUser(ctx context.Context, u User) error
	ListUsers(ctx context.Context, role string) ([]User, error)
	SetPassword(ctx context.Context, username, hash string) error
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// SQLUsers reads and writes the users table.
type SQLUsers struct{ db *sql.DB }

func NewSQLUsers(db *sql.DB) *SQLUsers { return &SQLUsers{db: db} }

func (s *SQLUsers) FindUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id,username,password_hash,role FROM users WHERE username=$1 OR id=$1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// UpsertUser inserts or updates by username. PasswordHash must already be hashed.
func (s *SQLUsers) UpsertUser(ctx context.Context, u User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id,username,password_hash,role,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (username) DO UPDATE SET password_hash=EXCLUDED.password_hash, role=EXCLUDED.role`,
		u.ID, u.Username, u.PasswordHash, u.Role, time.Now().Unix())
	return err
}

func (s *SQLUsers) ListUsers(ctx context.Context, role string) ([]User, error) {
	q := `SELECT id,username,role FROM users`
	var args []any
	if role != "" {
		q += ` WHERE role=$1`
		args = append(args, role)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY username`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLUsers) SetPassword(ctx context.Context, username, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE username=$2`, hash, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// StaticUsers is an in-memory UserStore, used for the env-configured admin
// and for the memory store mode.
type StaticUsers map[string]User

func (s StaticUsers) FindUser(_ context.Context, username string) (User, error) {
	if u, ok := s[username]; ok {
		return u, nil
	}
	return User{}, ErrUserNotFound
}

func (s StaticUsers) UpsertUser(_ context.Context, u User) error {
	if u.ID == "" {
		u.ID = u.Username
	}
	s[u.Username] = u
	return nil
}

func (s StaticUsers) ListUsers(_ context.Context, role string) ([]User, error) {
	out := []User{}
	for _, u := range s {
		if role == "" || u.Role == role {
			u.PasswordHash = ""
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s StaticUsers) SetPassword(_ context.Context, username, hash string) error {
	u, ok := s[username]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	s[username] = u
	return nil
}

// Chain tries each store in order and returns the first hit.
type Chain []UserStore

func (c Chain) FindUser(ctx context.Context, username string) (User, error) {
	for _, s := range c {
		u, err := s.FindUser(ctx, username)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
	}
	return User{}, ErrUserNotFound
}
