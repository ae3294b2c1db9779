package postgres

import (
	"context"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/repo"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AdminRepoImpl struct{ pool *pgxpool.Pool }

func NewAdminRepo(pool *pgxpool.Pool) *AdminRepoImpl { return &AdminRepoImpl{pool: pool} }

const adminCols = `id, name, email, username, password_hash, tier, created_at`

func scanAdmin(row scanner) (*domain.Admin, error) {
	var (
		a    domain.Admin
		tier string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Username, &a.PasswordHash, &tier, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Tier = domain.AdminTier(tier)
	return &a, nil
}

func (r *AdminRepoImpl) Create(ctx context.Context, a *domain.Admin) (*domain.Admin, error) {
	const q = `INSERT INTO admins (id, name, email, username, password_hash, tier)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING ` + adminCols
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Tier == "" {
		a.Tier = domain.TierAdmin
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out, err := scanAdmin(r.pool.QueryRow(ctx, q, a.ID, a.Name, a.Email, a.Username, a.PasswordHash, string(a.Tier)))
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *AdminRepoImpl) GetByID(ctx context.Context, id string) (*domain.Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	a, err := scanAdmin(r.pool.QueryRow(ctx, `SELECT `+adminCols+` FROM admins WHERE id=$1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *AdminRepoImpl) GetByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	a, err := scanAdmin(r.pool.QueryRow(ctx, `SELECT `+adminCols+` FROM admins WHERE username=$1`, username))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *AdminRepoImpl) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM admins`).Scan(&n)
	return n, err
}

var _ repo.AdminRepo = (*AdminRepoImpl)(nil)
