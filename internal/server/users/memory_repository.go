package users

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/usersvc/internal/common"
	"github.com/google/uuid"
)

// InMemoryRepository keeps users in process memory. It backs local runs and
// tests; contents are lost on restart.
type InMemoryRepository struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
	order   []string
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:   make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (r *InMemoryRepository) ListAll(ctx context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*User, 0, len(r.order))
	for _, id := range r.order {
		u := r.users[id]
		result = append(result, &u)
	}
	return result, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := r.users[id]
	return &u, nil
}

func (r *InMemoryRepository) GetSummariesByIDs(ctx context.Context, ids []string) ([]UserSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			result = append(result, UserSummary{ID: u.ID, DisplayName: u.DisplayName})
		}
	}
	return result, nil
}

func (r *InMemoryRepository) Create(ctx context.Context, user *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return nil, common.ErrorAlreadyExists
	}

	u := *user
	u.ID = uuid.NewString()
	r.users[u.ID] = u
	r.byEmail[u.Email] = u.ID
	r.order = append(r.order, u.ID)

	*user = u
	return user, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, id string, upd Update) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}

	oldEmail := u.Email
	upd.Apply(&u)

	if u.Email != oldEmail {
		if _, taken := r.byEmail[u.Email]; taken {
			return nil, common.ErrorAlreadyExists
		}
		delete(r.byEmail, oldEmail)
		r.byEmail[u.Email] = id
	}

	r.users[id] = u
	return &u, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}

	delete(r.users, id)
	delete(r.byEmail, u.Email)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return &u, nil
}
