// Package repo declares the entity store contracts shared by the postgres and
// in-memory implementations. Lookups return nil, nil when nothing matches.
package repo

import (
	"context"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
)

// VisitorFilter narrows List. Zero values match everything.
type VisitorFilter struct {
	HostID        string
	GateID        string
	IDs           []string
	PreApproved   *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	// SortByWindow orders by expected check-in instead of newest first.
	SortByWindow bool
	Limit        int
}

type VisitorRepo interface {
	Create(ctx context.Context, v *domain.Visitor) (*domain.Visitor, error)
	// CreatePreApproved stores v after checking the host's quota for the day
	// [dayStart, dayEnd] while holding the host row. It returns
	// QuotaExceededError when the host has no pre-approvals left that day.
	CreatePreApproved(ctx context.Context, v *domain.Visitor, dayStart, dayEnd time.Time) (*domain.Visitor, error)
	GetByID(ctx context.Context, id string) (*domain.Visitor, error)
	List(ctx context.Context, f VisitorFilter) ([]domain.Visitor, error)
	// UpdateStatus moves the visitor to `to` only when its current status is in
	// from. It stamps check-in/out times as needed and returns nil, nil when
	// the visitor is missing or the status already moved.
	UpdateStatus(ctx context.Context, id string, from []domain.VisitorStatus, to domain.VisitorStatus, at time.Time) (*domain.Visitor, error)
	// SetBadge stores the badge only while none exists and the visitor is
	// Approved. It returns nil, nil when the write did not apply.
	SetBadge(ctx context.Context, id string, badge domain.Badge) (*domain.Visitor, error)
}

type HostRepo interface {
	Create(ctx context.Context, h *domain.Host) (*domain.Host, error)
	GetByID(ctx context.Context, id string) (*domain.Host, error)
	GetByUsername(ctx context.Context, username string) (*domain.Host, error)
	List(ctx context.Context) ([]domain.Host, error)
	Delete(ctx context.Context, id string) (bool, error)
	SetLimit(ctx context.Context, id string, limit int) (bool, error)
	SetLimitAll(ctx context.Context, limit int) (int64, error)
	// EnqueueRequest appends visitorID to the host's queue unless present.
	EnqueueRequest(ctx context.Context, hostID, visitorID string) error
	// DequeueRequest removes visitorID from the queue; absence is not an error.
	DequeueRequest(ctx context.Context, hostID, visitorID string) error
}

type GateRepo interface {
	Create(ctx context.Context, g *domain.Gate) (*domain.Gate, error)
	GetByID(ctx context.Context, id string) (*domain.Gate, error)
	GetByLoginID(ctx context.Context, loginID string) (*domain.Gate, error)
	List(ctx context.Context) ([]domain.Gate, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type AdminRepo interface {
	Create(ctx context.Context, a *domain.Admin) (*domain.Admin, error)
	GetByID(ctx context.Context, id string) (*domain.Admin, error)
	GetByUsername(ctx context.Context, username string) (*domain.Admin, error)
	Count(ctx context.Context) (int, error)
}

// Store bundles the repositories a server needs.
type Store struct {
	Visitors VisitorRepo
	Hosts    HostRepo
	Gates    GateRepo
	Admins   AdminRepo
	Close    func()
}
