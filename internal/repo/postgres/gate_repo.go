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

type GateRepoImpl struct{ pool *pgxpool.Pool }

func NewGateRepo(pool *pgxpool.Pool) *GateRepoImpl { return &GateRepoImpl{pool: pool} }

const gateCols = `id, name, login_id, password_hash, created_at`

func scanGate(row scanner) (*domain.Gate, error) {
	var g domain.Gate
	if err := row.Scan(&g.ID, &g.Name, &g.LoginID, &g.PasswordHash, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GateRepoImpl) Create(ctx context.Context, g *domain.Gate) (*domain.Gate, error) {
	const q = `INSERT INTO gates (id, name, login_id, password_hash) VALUES ($1,$2,$3,$4) RETURNING ` + gateCols
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out, err := scanGate(r.pool.QueryRow(ctx, q, g.ID, g.Name, g.LoginID, g.PasswordHash))
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *GateRepoImpl) GetByID(ctx context.Context, id string) (*domain.Gate, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	g, err := scanGate(r.pool.QueryRow(ctx, `SELECT `+gateCols+` FROM gates WHERE id=$1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func (r *GateRepoImpl) GetByLoginID(ctx context.Context, loginID string) (*domain.Gate, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	g, err := scanGate(r.pool.QueryRow(ctx, `SELECT `+gateCols+` FROM gates WHERE login_id=$1`, loginID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func (r *GateRepoImpl) List(ctx context.Context) ([]domain.Gate, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, `SELECT `+gateCols+` FROM gates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gs := make([]domain.Gate, 0)
	for rows.Next() {
		g, err := scanGate(rows)
		if err != nil {
			return nil, err
		}
		gs = append(gs, *g)
	}
	return gs, rows.Err()
}

func (r *GateRepoImpl) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, `DELETE FROM gates WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

var _ repo.GateRepo = (*GateRepoImpl)(nil)
