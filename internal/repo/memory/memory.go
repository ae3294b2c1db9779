// Package memory is an in-process entity store used for development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/repo"
	"github.com/diagnosis/visitorgate/internal/utils"
	"github.com/google/uuid"
)

// DB holds all records behind a single lock so multi-record operations are atomic.
type DB struct {
	mu       sync.Mutex
	visitors map[string]*domain.Visitor
	hosts    map[string]*domain.Host
	gates    map[string]*domain.Gate
	admins   map[string]*domain.Admin
	now      func() time.Time
}

func New() *DB {
	return &DB{
		visitors: map[string]*domain.Visitor{},
		hosts:    map[string]*domain.Host{},
		gates:    map[string]*domain.Gate{},
		admins:   map[string]*domain.Admin{},
		now:      time.Now,
	}
}

func NewStore() *repo.Store {
	db := New()
	return db.Store()
}

func (db *DB) Store() *repo.Store {
	return &repo.Store{
		Visitors: (*visitorRepo)(db),
		Hosts:    (*hostRepo)(db),
		Gates:    (*gateRepo)(db),
		Admins:   (*adminRepo)(db),
		Close:    func() {},
	}
}

func copyVisitor(v *domain.Visitor) *domain.Visitor {
	c := *v
	if v.Badge != nil {
		b := *v.Badge
		c.Badge = &b
	}
	return &c
}

func copyHost(h *domain.Host) *domain.Host {
	c := *h
	c.VisitRequestQueue = slices.Clone(h.VisitRequestQueue)
	c.PreApproved = slices.Clone(h.PreApproved)
	if c.VisitRequestQueue == nil {
		c.VisitRequestQueue = []string{}
	}
	if c.PreApproved == nil {
		c.PreApproved = []string{}
	}
	return &c
}

type visitorRepo DB

func (r *visitorRepo) insertLocked(v *domain.Visitor) *domain.Visitor {
	db := (*DB)(r)
	c := copyVisitor(v)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = domain.StatusWaiting
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = db.now()
	}
	c.UpdatedAt = c.CreatedAt
	db.visitors[c.ID] = c
	return copyVisitor(c)
}

func (r *visitorRepo) Create(_ context.Context, v *domain.Visitor) (*domain.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.ID != "" {
		if _, ok := r.visitors[v.ID]; ok {
			return nil, &domain.ConflictError{Field: "id"}
		}
	}
	return r.insertLocked(v), nil
}

func (r *visitorRepo) CreatePreApproved(_ context.Context, v *domain.Visitor, dayStart, dayEnd time.Time) (*domain.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hosts[v.HostID]
	if !ok {
		return nil, domain.NotFound("host")
	}
	used := 0
	for _, s := range r.visitors {
		if s.HostID != v.HostID || !s.PreApproved || s.ExpectedCheckInFrom == nil || s.ExpectedCheckInTo == nil {
			continue
		}
		if s.ExpectedCheckInFrom.Before(dayEnd) && s.ExpectedCheckInTo.After(dayStart) {
			used++
		}
	}
	if used >= h.PreApprovalLimit {
		return nil, &domain.QuotaExceededError{Limit: h.PreApprovalLimit, Day: dayStart}
	}
	out := r.insertLocked(v)
	h.PreApproved = append(h.PreApproved, out.ID)
	return out, nil
}

func (r *visitorRepo) GetByID(_ context.Context, id string) (*domain.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visitors[id]
	if !ok {
		return nil, nil
	}
	return copyVisitor(v), nil
}

func matches(v *domain.Visitor, f repo.VisitorFilter) bool {
	if f.HostID != "" && v.HostID != f.HostID {
		return false
	}
	if f.GateID != "" && (v.GateID == nil || *v.GateID != f.GateID) {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, v.ID) {
		return false
	}
	if f.PreApproved != nil && v.PreApproved != *f.PreApproved {
		return false
	}
	if f.CreatedAfter != nil && v.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && v.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	return true
}

func (r *visitorRepo) List(_ context.Context, f repo.VisitorFilter) ([]domain.Visitor, error) {
	r.mu.Lock()
	out := make([]domain.Visitor, 0)
	for _, v := range r.visitors {
		if matches(v, f) {
			out = append(out, *copyVisitor(v))
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if f.SortByWindow {
			a, b := out[i].ExpectedCheckInFrom, out[j].ExpectedCheckInFrom
			switch {
			case a != nil && b != nil && !a.Equal(*b):
				return a.Before(*b)
			case a != nil && b == nil:
				return true
			case a == nil && b != nil:
				return false
			}
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *visitorRepo) UpdateStatus(_ context.Context, id string, from []domain.VisitorStatus, to domain.VisitorStatus, at time.Time) (*domain.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visitors[id]
	if !ok || !slices.Contains(from, v.Status) {
		return nil, nil
	}
	v.Status = to
	switch to {
	case domain.StatusCheckedIn:
		v.CheckIn = &at
	case domain.StatusCheckedOut:
		v.CheckOut = &at
	}
	v.UpdatedAt = at
	return copyVisitor(v), nil
}

func (r *visitorRepo) SetBadge(_ context.Context, id string, badge domain.Badge) (*domain.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visitors[id]
	if !ok || v.Badge != nil || v.Status != domain.StatusApproved {
		return nil, nil
	}
	v.Badge = &badge
	v.UpdatedAt = badge.IssuedAt
	return copyVisitor(v), nil
}

type hostRepo DB

func (r *hostRepo) Create(_ context.Context, h *domain.Host) (*domain.Host, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.hosts {
		if cur.Username == h.Username {
			return nil, &domain.ConflictError{Field: "username"}
		}
		if cur.Name == h.Name {
			return nil, &domain.ConflictError{Field: "name"}
		}
	}
	c := copyHost(h)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.PreApprovalLimit <= 0 {
		c.PreApprovalLimit = domain.DefaultPreApprovalLimit
	}
	c.CreatedAt = r.now()
	r.hosts[c.ID] = c
	return copyHost(c), nil
}

func (r *hostRepo) GetByID(_ context.Context, id string) (*domain.Host, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hosts[id]
	if !ok {
		return nil, nil
	}
	return copyHost(h), nil
}

func (r *hostRepo) GetByUsername(_ context.Context, username string) (*domain.Host, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.hosts {
		if h.Username == username {
			return copyHost(h), nil
		}
	}
	return nil, nil
}

func (r *hostRepo) List(_ context.Context) ([]domain.Host, error) {
	r.mu.Lock()
	out := make([]domain.Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, *copyHost(h))
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *hostRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hosts[id]; !ok {
		return false, nil
	}
	delete(r.hosts, id)
	return true, nil
}

func (r *hostRepo) SetLimit(_ context.Context, id string, limit int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hosts[id]
	if !ok {
		return false, nil
	}
	h.PreApprovalLimit = limit
	return true, nil
}

func (r *hostRepo) SetLimitAll(_ context.Context, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, h := range r.hosts {
		if h.PreApprovalLimit != limit {
			h.PreApprovalLimit = limit
			n++
		}
	}
	return n, nil
}

func (r *hostRepo) EnqueueRequest(_ context.Context, hostID, visitorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hosts[hostID]; ok && !h.HasQueued(visitorID) {
		h.VisitRequestQueue = append(h.VisitRequestQueue, visitorID)
	}
	return nil
}

func (r *hostRepo) DequeueRequest(_ context.Context, hostID, visitorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hosts[hostID]; ok {
		h.VisitRequestQueue = utils.RemoveString(h.VisitRequestQueue, visitorID)
	}
	return nil
}

type gateRepo DB

func (r *gateRepo) Create(_ context.Context, g *domain.Gate) (*domain.Gate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.gates {
		if cur.LoginID == g.LoginID {
			return nil, &domain.ConflictError{Field: "login_id"}
		}
		if cur.Name == g.Name {
			return nil, &domain.ConflictError{Field: "name"}
		}
	}
	c := *g
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = r.now()
	r.gates[c.ID] = &c
	out := c
	return &out, nil
}

func (r *gateRepo) GetByID(_ context.Context, id string) (*domain.Gate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[id]
	if !ok {
		return nil, nil
	}
	out := *g
	return &out, nil
}

func (r *gateRepo) GetByLoginID(_ context.Context, loginID string) (*domain.Gate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.gates {
		if g.LoginID == loginID {
			out := *g
			return &out, nil
		}
	}
	return nil, nil
}

func (r *gateRepo) List(_ context.Context) ([]domain.Gate, error) {
	r.mu.Lock()
	out := make([]domain.Gate, 0, len(r.gates))
	for _, g := range r.gates {
		out = append(out, *g)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *gateRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gates[id]; !ok {
		return false, nil
	}
	delete(r.gates, id)
	return true, nil
}

type adminRepo DB

func (r *adminRepo) Create(_ context.Context, a *domain.Admin) (*domain.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.admins {
		if cur.Username == a.Username {
			return nil, &domain.ConflictError{Field: "username"}
		}
	}
	c := *a
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Tier == "" {
		c.Tier = domain.TierAdmin
	}
	c.CreatedAt = r.now()
	r.admins[c.ID] = &c
	out := c
	return &out, nil
}

func (r *adminRepo) GetByID(_ context.Context, id string) (*domain.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.admins[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (r *adminRepo) GetByUsername(_ context.Context, username string) (*domain.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.admins {
		if a.Username == username {
			out := *a
			return &out, nil
		}
	}
	return nil, nil
}

func (r *adminRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.admins), nil
}

var (
	_ repo.VisitorRepo = (*visitorRepo)(nil)
	_ repo.HostRepo    = (*hostRepo)(nil)
	_ repo.GateRepo    = (*gateRepo)(nil)
	_ repo.AdminRepo   = (*adminRepo)(nil)
)
