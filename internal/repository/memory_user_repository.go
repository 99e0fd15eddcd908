package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/bearer-auth/internal/domain"
)

// memoryUserRepository keeps accounts in process memory. Used when no
// Postgres DSN is configured and by tests.
type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewMemoryUserRepository returns an empty in-memory store.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: make(map[string]domain.User)}
}

func (r *memoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflictLocked("", user.Username, user.Email) {
		return ErrDuplicate
	}

	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return nil
}

func (r *memoryUserRepository) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return ErrNotFound
	}
	if r.conflictLocked(user.ID, user.Username, user.Email) {
		return ErrDuplicate
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = *user
	return nil
}

func (r *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *memoryUserRepository) GetByAccount(_ context.Context, account string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byEmail := domain.IsEmailAccount(account)
	for _, user := range r.users {
		if (byEmail && strings.EqualFold(user.Email, account)) || (!byEmail && user.Username == account) {
			u := user
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepository) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conflictLocked("", username, email), nil
}

func (r *memoryUserRepository) List(_ context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*domain.User, 0, len(r.users))
	for _, user := range r.users {
		u := user
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// conflictLocked matches each candidate against both the username and the
// email of every other account, so no login identifier can resolve to two rows.
func (r *memoryUserRepository) conflictLocked(skipID, username, email string) bool {
	for id, existing := range r.users {
		if id == skipID {
			continue
		}
		for _, candidate := range []string{username, email} {
			if candidate == "" {
				continue
			}
			if existing.Username == candidate || strings.EqualFold(existing.Email, candidate) {
				return true
			}
		}
	}
	return false
}
