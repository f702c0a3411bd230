package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/skyshop/internal/domain/apperr"
	"github.com/xenking/skyshop/internal/domain/auth"
)

const upsertUserSQL = `INSERT INTO users (name, email, role)
	VALUES ($1, $2, $3)
	ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
	RETURNING id`

// UserRepository provisions users. Accounts and credentials are owned by the
// external identity provider; SkyShop only keeps the fields it displays.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert creates or updates the user identified by email and returns its id.
func (r *UserRepository) Upsert(ctx context.Context, name, email string, role auth.Role) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, upsertUserSQL, name, email, string(role)).Scan(&id); err != nil {
		return 0, apperr.Persistence("upsert user", err)
	}
	return id, nil
}
