package actor

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// User is a directory entry used to mint actor tokens at login.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	HomeOrg      string
	Elevated     bool
}

// Actor returns the actor context this user operates as.
func (u User) Actor() Context {
	return Context{ActorID: u.ID, Role: u.Role, HomeOrg: u.HomeOrg, Elevated: u.Elevated}
}

var (
	// ErrUnknownUser covers both missing users and bad passwords so that the
	// login surface does not reveal which one failed.
	ErrUnknownUser = errors.New("unknown user or bad credentials")
)

// Directory authenticates users by email and password.
type Directory interface {
	Authenticate(ctx context.Context, email, password string) (User, error)
}

// MemoryDirectory is an in-process directory used in tests and single-node
// deployments; the persistent variant lives in the pg store.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User // keyed by lower-cased email
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]User)}
}

// Add registers a user, hashing the supplied plaintext password.
func (d *MemoryDirectory) Add(u User, password string) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" || u.ID == "" || u.HomeOrg == "" {
		return errors.New("user id, email and home org are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Email = email
	u.PasswordHash = hash
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[email] = u
	return nil
}

// Authenticate verifies credentials and returns the matching user.
func (d *MemoryDirectory) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	d.mu.RLock()
	u, ok := d.users[email]
	d.mu.RUnlock()
	if !ok {
		return User{}, ErrUnknownUser
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, ErrUnknownUser
	}
	return u, nil
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
