package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-social-auth/pkg/domain"
)

// MemoryUsersRepository keeps users in process memory. It enforces the
// same uniqueness and revision rules as the Postgres repository and is
// used for development and tests.
type MemoryUsersRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

// NewMemoryUsersRepository creates an empty in-memory repository.
func NewMemoryUsersRepository() *MemoryUsersRepository {
	return &MemoryUsersRepository{users: make(map[uuid.UUID]*domain.User)}
}

// Create inserts a new user.
func (r *MemoryUsersRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, ok := r.users[user.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", domain.ErrPersistenceConflict, user.ID)
	}
	if err := r.checkUnique(user); err != nil {
		return err
	}

	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	user.Revision = 1
	r.users[user.ID] = cloneUser(user)
	return nil
}

// Save writes the user back if nobody saved it since it was read.
func (r *MemoryUsersRepository) Save(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if stored.Revision != user.Revision {
		return domain.ErrStaleRevision
	}
	if err := r.checkUnique(user); err != nil {
		return err
	}

	user.Revision++
	user.UpdatedAt = time.Now()
	r.users[user.ID] = cloneUser(user)
	return nil
}

// GetByID retrieves a user by ID.
func (r *MemoryUsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

// GetByUsername retrieves a user by username, ignoring case.
func (r *MemoryUsersRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool {
		return strings.EqualFold(u.Username, username)
	})
}

// GetByProviderSubject retrieves the user whose provider profile carries subject.
func (r *MemoryUsersRepository) GetByProviderSubject(ctx context.Context, provider domain.Provider, subject string) (*domain.User, error) {
	return r.findOne(func(u *domain.User) bool {
		id, ok := u.ProfileData(provider).SubjectID(provider.SubjectField())
		return ok && id == subject
	})
}

// GetByConfirmationToken retrieves the user holding an email confirmation token.
func (r *MemoryUsersRepository) GetByConfirmationToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(func(u *domain.User) bool {
		return u.ConfirmationToken == token
	})
}

// ListByEmail returns active users whose email matches, ignoring case.
func (r *MemoryUsersRepository) ListByEmail(ctx context.Context, email string) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []*domain.User
	for _, u := range r.users {
		if u.IsActive && u.Email != "" && strings.EqualFold(u.Email, email) {
			users = append(users, cloneUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// Len returns the number of stored users.
func (r *MemoryUsersRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *MemoryUsersRepository) findOne(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// checkUnique must be called with the write lock held.
func (r *MemoryUsersRepository) checkUnique(user *domain.User) error {
	for id, other := range r.users {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(other.Username, user.Username) {
			return fmt.Errorf("%w (%s)", domain.ErrUsernameAlreadyExists, user.Username)
		}
		for _, p := range domain.Providers {
			mine, ok := user.ProfileData(p).SubjectID(p.SubjectField())
			if !ok {
				continue
			}
			if theirs, ok := other.ProfileData(p).SubjectID(p.SubjectField()); ok && theirs == mine {
				return fmt.Errorf("%w (%s)", domain.ErrIdentityAlreadyLinked, p)
			}
		}
	}
	return nil
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.Links != nil {
		c.Links = make(map[domain.Provider]domain.ProviderLink, len(u.Links))
		for p, link := range u.Links {
			if link.ProfileData != nil {
				data := make(domain.Profile, len(link.ProfileData))
				for k, v := range link.ProfileData {
					data[k] = v
				}
				link.ProfileData = data
			}
			c.Links[p] = link
		}
	}
	return &c
}
