package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nsxzhou1114/shop-api/internal/model"
)

// MemoryUserRepository 内存存储，用于本地开发与测试
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]*model.User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryUserRepository 创建内存用户存储
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]*model.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = model.NewID()
	}
	now := r.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	stored := *user
	r.users[user.ID] = &stored
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *r.users[id]
	return &c, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, id string, updates model.Updates) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	if email, ok := updates[model.FieldEmail].(string); ok && email != u.Email {
		if _, taken := r.byEmail[email]; taken {
			return nil, ErrDuplicateEmail
		}
		delete(r.byEmail, u.Email)
		r.byEmail[email] = id
	}

	updates.Apply(u)
	u.UpdatedAt = r.now()
	c := *u
	return &c, nil
}

func (r *MemoryUserRepository) List(_ context.Context, limit int) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
