package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gvafram3/parcel-console/internal/repository"
)

type tokenRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewTokenRepository stores bearer tokens in Postgres. now may be nil to use
// time.Now; expiry is judged against it, not the database clock.
func NewTokenRepository(pool *pgxpool.Pool, now func() time.Time) repository.TokenRepository {
	if now == nil {
		now = time.Now
	}
	return &tokenRepository{pool: pool, now: now}
}

func (r *tokenRepository) Issue(ctx context.Context, userID string, ttl time.Duration) (string, time.Time, error) {
	token := uuid.NewString()
	exp := r.now().Add(ttl)
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO tokens (token, user_id, expires_at)
		 SELECT $1, id, $3 FROM users WHERE id = $2`,
		token, userID, exp,
	)
	if err != nil {
		return "", time.Time{}, repository.MapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return "", time.Time{}, repository.ErrNotFound
	}
	return token, exp, nil
}

func (r *tokenRepository) Resolve(ctx context.Context, token string) (string, error) {
	var userID string
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT user_id FROM tokens WHERE token = $1 AND expires_at > $2`, token, r.now(),
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", repository.MapPgError(err)
	}
	return userID, nil
}

func (r *tokenRepository) Revoke(ctx context.Context, token string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM tokens WHERE token = $1`, token)
	if err != nil {
		return repository.MapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.TokenRepository = (*tokenRepository)(nil)
