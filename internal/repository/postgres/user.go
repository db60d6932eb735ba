package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
)

const userColumns = `id, name, email, phone, role, office_id, active, created_at`

type userRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
	cost int
}

// NewUserRepository stores accounts in Postgres with bcrypt password hashes.
// now may be nil to use time.Now.
func NewUserRepository(pool *pgxpool.Pool, now func() time.Time) repository.UserRepository {
	if now == nil {
		now = time.Now
	}
	return &userRepository{pool: pool, now: now, cost: bcrypt.DefaultCost}
}

func scanUser(row pgx.Row, extra ...any) (model.User, error) {
	var (
		u    model.User
		role string
	)
	dest := append([]any{&u.ID, &u.Name, &u.Email, &u.Phone, &role, &u.OfficeID, &u.Active, &u.CreatedAt}, extra...)
	err := row.Scan(dest...)
	u.Role = model.Role(role)
	return u, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *userRepository) Create(ctx context.Context, u model.User, password string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return model.User{}, err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	u.Email = normalizeEmail(u.Email)
	_, err = conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO users (`+userColumns+`, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Name, u.Email, u.Phone, string(u.Role), u.OfficeID, u.Active, u.CreatedAt, string(hash),
	)
	if err != nil {
		return model.User{}, repository.MapPgError(err)
	}
	return u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, repository.ErrNotFound
	}
	if err != nil {
		return model.User{}, repository.MapPgError(err)
	}
	return u, nil
}

func (r *userRepository) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	var hash string
	u, err := scanUser(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE lower(email) = $1`, normalizeEmail(email)), &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, repository.ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, repository.MapPgError(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil || !u.Active {
		return model.User{}, repository.ErrInvalidCredentials
	}
	return u, nil
}

func (r *userRepository) Search(ctx context.Context, f repository.UserFilter, p repository.Page) (repository.PageResult[model.User], error) {
	q := conn(ctx, r.pool)
	w := &where{}
	if f.OfficeID != "" {
		w.add("office_id = $%d", f.OfficeID)
	}
	if f.Role != "" {
		w.add("role = $%d", string(f.Role))
	}
	if f.Active != nil {
		w.add("active = $%d", *f.Active)
	}

	var res repository.PageResult[model.User]
	if err := q.QueryRow(ctx, `SELECT count(*) FROM users`+w.String(), w.args...).Scan(&res.Total); err != nil {
		return repository.PageResult[model.User]{}, repository.MapPgError(err)
	}
	res.Items = []model.User{}
	if p.Limit <= 0 || p.Offset >= res.Total {
		return res, nil
	}

	limit, args := w.page(p)
	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users`+w.String()+` ORDER BY name, id`+limit, args...)
	if err != nil {
		return repository.PageResult[model.User]{}, repository.MapPgError(err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return repository.PageResult[model.User]{}, repository.MapPgError(err)
		}
		res.Items = append(res.Items, u)
	}
	if err := rows.Err(); err != nil {
		return repository.PageResult[model.User]{}, repository.MapPgError(err)
	}
	return res, nil
}

// Deactivate flips the account and drops its tokens in one transaction.
func (r *userRepository) Deactivate(ctx context.Context, id string) (model.User, error) {
	var out model.User
	err := inTx(ctx, r.pool, func(ctx context.Context) error {
		q := conn(ctx, r.pool)
		u, err := scanUser(q.QueryRow(ctx,
			`UPDATE users SET active = FALSE WHERE id = $1 AND active RETURNING `+userColumns, id))
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return repository.ErrNotFound
			}
			return repository.ErrConflict
		}
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1`, id); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	return out, nil
}

var _ repository.UserRepository = (*userRepository)(nil)
