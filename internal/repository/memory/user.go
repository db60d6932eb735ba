package memory

import (
	"cmp"
	"context"
	"crypto/subtle"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
)

type userRepo struct {
	db *DB
}

func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, u model.User, password string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.emails[email]; ok {
		return model.User{}, repository.ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, ok := r.db.users[u.ID]; ok {
		return model.User{}, repository.ErrAlreadyExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.db.now()
	}
	u.Email = email
	r.db.users[u.ID] = u
	r.db.passwords[u.ID] = password
	r.db.emails[email] = u.ID
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r *userRepo) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	id, ok := r.db.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, repository.ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(r.db.passwords[id]), []byte(password)) != 1 {
		return model.User{}, repository.ErrInvalidCredentials
	}
	u := r.db.users[id]
	if !u.Active {
		return model.User{}, repository.ErrInvalidCredentials
	}
	return u, nil
}

func (r *userRepo) Search(ctx context.Context, f repository.UserFilter, p repository.Page) (repository.PageResult[model.User], error) {
	if err := ctx.Err(); err != nil {
		return repository.PageResult[model.User]{}, err
	}
	r.db.mu.RLock()
	match := make([]model.User, 0, len(r.db.users))
	for _, u := range r.db.users {
		if f.OfficeID != "" && u.OfficeID != f.OfficeID {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Active != nil && u.Active != *f.Active {
			continue
		}
		match = append(match, u)
	}
	r.db.mu.RUnlock()

	slices.SortFunc(match, func(a, b model.User) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return repository.PageResult[model.User]{Items: repository.Window(match, p), Total: len(match)}, nil
}

func (r *userRepo) Deactivate(ctx context.Context, id string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	if !u.Active {
		return model.User{}, repository.ErrConflict
	}
	u.Active = false
	r.db.users[id] = u
	// Signed-in sessions of the account end with it.
	for tok, e := range r.db.tokens {
		if e.userID == id {
			delete(r.db.tokens, tok)
		}
	}
	return u, nil
}
