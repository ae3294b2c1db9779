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

type HostRepoImpl struct{ pool *pgxpool.Pool }

func NewHostRepo(pool *pgxpool.Pool) *HostRepoImpl { return &HostRepoImpl{pool: pool} }

const hostCols = `id, name, username, password_hash, department, employee_id, contact,
pre_approval_limit, visit_request_queue, pre_approved, created_at`

func scanHost(row scanner) (*domain.Host, error) {
	var h domain.Host
	if err := row.Scan(
		&h.ID, &h.Name, &h.Username, &h.PasswordHash, &h.Department, &h.EmployeeID, &h.Contact,
		&h.PreApprovalLimit, &h.VisitRequestQueue, &h.PreApproved, &h.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HostRepoImpl) Create(ctx context.Context, h *domain.Host) (*domain.Host, error) {
	const q = `INSERT INTO hosts (id, name, username, password_hash, department, employee_id, contact, pre_approval_limit)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING ` + hostCols
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.PreApprovalLimit <= 0 {
		h.PreApprovalLimit = domain.DefaultPreApprovalLimit
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out, err := scanHost(r.pool.QueryRow(ctx, q,
		h.ID, h.Name, h.Username, h.PasswordHash, h.Department, h.EmployeeID, h.Contact, h.PreApprovalLimit,
	))
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *HostRepoImpl) getBy(ctx context.Context, col, val string) (*domain.Host, error) {
	q := `SELECT ` + hostCols + ` FROM hosts WHERE ` + col + `=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	h, err := scanHost(r.pool.QueryRow(ctx, q, val))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return h, err
}

func (r *HostRepoImpl) GetByID(ctx context.Context, id string) (*domain.Host, error) {
	return r.getBy(ctx, "id", id)
}

func (r *HostRepoImpl) GetByUsername(ctx context.Context, username string) (*domain.Host, error) {
	return r.getBy(ctx, "username", username)
}

func (r *HostRepoImpl) List(ctx context.Context) ([]domain.Host, error) {
	const q = `SELECT ` + hostCols + ` FROM hosts ORDER BY name`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hs := make([]domain.Host, 0)
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		hs = append(hs, *h)
	}
	return hs, rows.Err()
}

func (r *HostRepoImpl) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, `DELETE FROM hosts WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *HostRepoImpl) SetLimit(ctx context.Context, id string, limit int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, `UPDATE hosts SET pre_approval_limit=$2 WHERE id=$1`, id, limit)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *HostRepoImpl) SetLimitAll(ctx context.Context, limit int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, `UPDATE hosts SET pre_approval_limit=$1 WHERE pre_approval_limit <> $1`, limit)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *HostRepoImpl) EnqueueRequest(ctx context.Context, hostID, visitorID string) error {
	const q = `UPDATE hosts SET visit_request_queue = array_append(visit_request_queue, $2::text)
WHERE id=$1 AND NOT ($2::text = ANY(visit_request_queue))`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, hostID, visitorID)
	return err
}

func (r *HostRepoImpl) DequeueRequest(ctx context.Context, hostID, visitorID string) error {
	const q = `UPDATE hosts SET visit_request_queue = array_remove(visit_request_queue, $2::text) WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, hostID, visitorID)
	return err
}

var _ repo.HostRepo = (*HostRepoImpl)(nil)
