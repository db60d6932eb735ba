package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gvafram3/parcel-console/internal/repository"
)

type tokenRepo struct {
	db *DB
}

func NewTokenRepository(db *DB) repository.TokenRepository {
	return &tokenRepo{db: db}
}

func (r *tokenRepo) Issue(ctx context.Context, userID string, ttl time.Duration) (string, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return "", time.Time{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[userID]; !ok {
		return "", time.Time{}, repository.ErrNotFound
	}
	token := uuid.NewString()
	exp := r.db.now().Add(ttl)
	r.db.tokens[token] = tokenEntry{userID: userID, expiresAt: exp}
	return token, exp, nil
}

func (r *tokenRepo) Resolve(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	e, ok := r.db.tokens[token]
	if !ok || !r.db.now().Before(e.expiresAt) {
		return "", repository.ErrNotFound
	}
	return e.userID, nil
}

func (r *tokenRepo) Revoke(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tokens[token]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.tokens, token)
	return nil
}
