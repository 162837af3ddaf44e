package memory

import (
	"context"
	"strings"
	"sync"

	"venuehub/internal/app/profiles"
)

// UserRepository stores user profiles in memory. Not suitable for production.
type UserRepository struct {
	mu   sync.RWMutex
	byID map[string]profiles.Profile
}

func NewUserRepository() *UserRepository {
	return &UserRepository{byID: make(map[string]profiles.Profile)}
}

func (r *UserRepository) Profile(ctx context.Context, userID string) (profiles.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byID[strings.TrimSpace(userID)]; ok {
		return p, nil
	}
	return profiles.Profile{}, profiles.ErrNotFound
}

func (r *UserRepository) Save(ctx context.Context, p profiles.Profile) error {
	id := strings.TrimSpace(p.UserID)
	if id == "" {
		return profiles.ErrNotFound
	}
	p.UserID = id
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = p
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, strings.TrimSpace(userID))
	return nil
}

var _ profiles.Source = (*UserRepository)(nil)
