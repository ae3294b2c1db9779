package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/repo"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VisitorRepoImpl struct{ pool *pgxpool.Pool }

func NewVisitorRepo(pool *pgxpool.Pool) *VisitorRepoImpl { return &VisitorRepoImpl{pool: pool} }

const visitorCols = `id, fullname, email, contact, purpose, organisation, employee_id, photo,
host_id, gate_id, status, check_in, check_out,
pre_approved, expected_check_in_from, expected_check_in_to,
badge_qr, badge_issued_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanVisitor(row scanner) (*domain.Visitor, error) {
	var (
		v        domain.Visitor
		status   string
		badgeQR  *string
		issuedAt *time.Time
	)
	if err := row.Scan(
		&v.ID, &v.FullName, &v.Email, &v.Contact, &v.Purpose, &v.Organisation, &v.EmployeeID, &v.Photo,
		&v.HostID, &v.GateID, &status, &v.CheckIn, &v.CheckOut,
		&v.PreApproved, &v.ExpectedCheckInFrom, &v.ExpectedCheckInTo,
		&badgeQR, &issuedAt, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	v.Status = domain.VisitorStatus(status)
	if badgeQR != nil && issuedAt != nil {
		v.Badge = &domain.Badge{QRCode: *badgeQR, IssuedAt: *issuedAt}
	}
	return &v, nil
}

func insertVisitor(ctx context.Context, q querier, v *domain.Visitor) (*domain.Visitor, error) {
	const stmt = `INSERT INTO visitors (
    id, fullname, email, contact, purpose, organisation, employee_id, photo,
    host_id, gate_id, status, pre_approved, expected_check_in_from, expected_check_in_to,
    created_at, updated_at
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
  RETURNING ` + visitorCols

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Status == "" {
		v.Status = domain.StatusWaiting
	}
	now := v.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	out, err := scanVisitor(q.QueryRow(ctx, stmt,
		v.ID, v.FullName, v.Email, v.Contact, v.Purpose, v.Organisation, v.EmployeeID, v.Photo,
		v.HostID, v.GateID, string(v.Status), v.PreApproved, v.ExpectedCheckInFrom, v.ExpectedCheckInTo,
		now,
	))
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *VisitorRepoImpl) Create(ctx context.Context, v *domain.Visitor) (*domain.Visitor, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return insertVisitor(ctx, r.pool, v)
}

func (r *VisitorRepoImpl) CreatePreApproved(ctx context.Context, v *domain.Visitor, dayStart, dayEnd time.Time) (*domain.Visitor, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var limit int
	err = tx.QueryRow(ctx, `SELECT pre_approval_limit FROM hosts WHERE id=$1 FOR UPDATE`, v.HostID).Scan(&limit)
	if err == pgx.ErrNoRows {
		return nil, domain.NotFound("host")
	}
	if err != nil {
		return nil, err
	}

	const countQ = `SELECT count(*) FROM visitors
WHERE host_id=$1 AND pre_approved
  AND expected_check_in_from < $3 AND expected_check_in_to > $2`
	var used int
	if err := tx.QueryRow(ctx, countQ, v.HostID, dayStart, dayEnd).Scan(&used); err != nil {
		return nil, err
	}
	if used >= limit {
		return nil, &domain.QuotaExceededError{Limit: limit, Day: dayStart}
	}

	out, err := insertVisitor(ctx, tx, v)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE hosts SET pre_approved = array_append(pre_approved, $2) WHERE id=$1`, v.HostID, out.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *VisitorRepoImpl) GetByID(ctx context.Context, id string) (*domain.Visitor, error) {
	const q = `SELECT ` + visitorCols + ` FROM visitors WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisitor(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// buildVisitorQuery renders f into a SELECT with positional arguments.
func buildVisitorQuery(f repo.VisitorFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.HostID != "" {
		add("host_id=$%d", f.HostID)
	}
	if f.GateID != "" {
		add("gate_id=$%d", f.GateID)
	}
	if len(f.IDs) > 0 {
		add("id = ANY($%d)", f.IDs)
	}
	if f.PreApproved != nil {
		add("pre_approved=$%d", *f.PreApproved)
	}
	if f.CreatedAfter != nil {
		add("created_at >= $%d", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		add("created_at <= $%d", *f.CreatedBefore)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + visitorCols + ` FROM visitors`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if f.SortByWindow {
		sb.WriteString(" ORDER BY expected_check_in_from ASC NULLS LAST, created_at DESC")
	} else {
		sb.WriteString(" ORDER BY created_at DESC")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	return sb.String(), args
}

func (r *VisitorRepoImpl) List(ctx context.Context, f repo.VisitorFilter) ([]domain.Visitor, error) {
	q, args := buildVisitorQuery(f)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vs := make([]domain.Visitor, 0)
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, err
		}
		vs = append(vs, *v)
	}
	return vs, rows.Err()
}

func statusStrings(ss []domain.VisitorStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func (r *VisitorRepoImpl) UpdateStatus(ctx context.Context, id string, from []domain.VisitorStatus, to domain.VisitorStatus, at time.Time) (*domain.Visitor, error) {
	const q = `UPDATE visitors SET
    status = $2,
    check_in = CASE WHEN $2 = 'Checked-in' THEN $4 ELSE check_in END,
    check_out = CASE WHEN $2 = 'Checked-out' THEN $4 ELSE check_out END,
    updated_at = $4
  WHERE id=$1 AND status = ANY($3)
  RETURNING ` + visitorCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisitor(r.pool.QueryRow(ctx, q, id, string(to), statusStrings(from), at))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *VisitorRepoImpl) SetBadge(ctx context.Context, id string, badge domain.Badge) (*domain.Visitor, error) {
	const q = `UPDATE visitors SET badge_qr=$2, badge_issued_at=$3, updated_at=$3
  WHERE id=$1 AND badge_qr IS NULL AND status='Approved'
  RETURNING ` + visitorCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVisitor(r.pool.QueryRow(ctx, q, id, badge.QRCode, badge.IssuedAt))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

var _ repo.VisitorRepo = (*VisitorRepoImpl)(nil)
