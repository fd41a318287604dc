// Package auth resolves bearer credentials to principals and guards the
// authenticated routes.
package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ashureev/lead-agent/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInactiveUser is returned when a disabled account tries to authenticate.
	ErrInactiveUser = errors.New("user account is inactive")
	// ErrUserExists is returned when registering a taken username or email.
	ErrUserExists = errors.New("username or email already registered")
	// ErrUserNotFound is returned for lookups of unknown users.
	ErrUserNotFound = errors.New("user not found")
)

// Directory is an in-memory user table.
type Directory struct {
	mu    sync.RWMutex
	users map[string]*domain.User // keyed by username
	cost  int
}

// NewDirectory creates an empty directory hashing passwords with the given
// bcrypt cost. A zero cost uses bcrypt.DefaultCost.
func NewDirectory(cost int) *Directory {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Directory{users: make(map[string]*domain.User), cost: cost}
}

// NewSeededDirectory creates a directory with the built-in admin and user accounts.
func NewSeededDirectory(cost int, adminPassword, userPassword string) (*Directory, error) {
	d := NewDirectory(cost)
	seed := []struct {
		username, email, fullName, password, role string
	}{
		{"admin", "admin@dragify.com", "Admin User", adminPassword, domain.RoleAdmin},
		{"user", "user@dragify.com", "Regular User", userPassword, domain.RoleUser},
	}
	for _, s := range seed {
		if _, err := d.create(s.username, s.email, s.fullName, s.password, s.role); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", s.username, err)
		}
	}
	return d, nil
}

// Register adds a user with the regular role.
func (d *Directory) Register(username, email, fullName, password string) (domain.User, error) {
	return d.create(username, email, fullName, password, domain.RoleUser)
}

func (d *Directory) create(username, email, fullName, password, role string) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[username]; ok {
		return domain.User{}, ErrUserExists
	}
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return domain.User{}, ErrUserExists
		}
	}

	u := &domain.User{
		Username:       username,
		Email:          email,
		FullName:       fullName,
		Role:           role,
		IsActive:       true,
		HashedPassword: string(hash),
	}
	d.users[username] = u
	return *u, nil
}

// Verify checks an email and password pair.
func (d *Directory) Verify(email, password string) (domain.User, error) {
	d.mu.RLock()
	var found *domain.User
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			found = &c
			break
		}
	}
	d.mu.RUnlock()

	if found == nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(found.HashedPassword), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if !found.IsActive {
		return domain.User{}, ErrInactiveUser
	}
	return *found, nil
}

// User returns the user with the given username.
func (d *Directory) User(username string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[username]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return *u, nil
}

// List returns all users sorted by username.
func (d *Directory) List() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// SetActive enables or disables an account.
func (d *Directory) SetActive(username string, active bool) (domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[username]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	u.IsActive = active
	return *u, nil
}
