package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/notify"
	"github.com/diagnosis/visitorgate/internal/platform/qr"
	"github.com/diagnosis/visitorgate/internal/repo"
	"github.com/diagnosis/visitorgate/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Invalidator drops cached copies of a visitor after it changes.
type Invalidator interface {
	Invalidate(ctx context.Context, visitorID string)
}

type VisitorService interface {
	Create(ctx context.Context, profile domain.VisitorProfile, hostID string, gateID *string) (*domain.Visitor, error)
	PreApprove(ctx context.Context, hostID string, profile domain.VisitorProfile, window domain.CheckInWindow) (*domain.Visitor, error)
	RequestApproval(ctx context.Context, visitorID string) (*domain.Visitor, error)
	Approve(ctx context.Context, hostID, visitorID string) (*domain.Visitor, error)
	Decline(ctx context.Context, hostID, visitorID string) (*domain.Visitor, error)
	IssueBadge(ctx context.Context, visitorID string, requester domain.Identity) (*domain.BadgeData, error)
	CheckIn(ctx context.Context, visitorID string) (*domain.Visitor, error)
	CheckOut(ctx context.Context, visitorID string) (*domain.Visitor, error)

	Get(ctx context.Context, visitorID string, requester domain.Identity) (*domain.Visitor, error)
	ListForHost(ctx context.Context, hostID string) ([]domain.Visitor, error)
	ListPreApproved(ctx context.Context, hostID string) ([]domain.Visitor, error)
	PendingRequests(ctx context.Context, hostID string) ([]domain.Visitor, error)
	ListToday(ctx context.Context) ([]domain.Visitor, error)
	ListAll(ctx context.Context) ([]domain.VisitorWithHost, error)
}

type Option func(*visitorService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *visitorService) { s.now = now }
}

type visitorService struct {
	visitors repo.VisitorRepo
	hosts    repo.HostRepo
	gates    repo.GateRepo
	encoder  qr.Encoder
	notifier notify.Notifier
	cache    Invalidator
	loc      *time.Location
	now      func() time.Time
}

func NewVisitorService(
	store *repo.Store,
	encoder qr.Encoder,
	notifier notify.Notifier,
	cache Invalidator,
	loc *time.Location,
	opts ...Option,
) VisitorService {
	if loc == nil {
		loc = time.Local
	}
	s := &visitorService{
		visitors: store.Visitors,
		hosts:    store.Hosts,
		gates:    store.Gates,
		encoder:  encoder,
		notifier: notifier,
		cache:    cache,
		loc:      loc,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanView reports whether requester may read v. Hosts see only their own visitors.
func CanView(requester domain.Identity, v *domain.Visitor) error {
	if requester.IsHost() && !v.BelongsTo(requester.ID) {
		return &domain.ForbiddenError{Reason: "visitor belongs to another host"}
	}
	return nil
}

func (s *visitorService) Create(ctx context.Context, profile domain.VisitorProfile, hostID string, gateID *string) (*domain.Visitor, error) {
	profile.Normalize()
	if hostID == "" {
		return nil, domain.Invalid("hostEmployee", "is required")
	}
	if gateID != nil && *gateID == "" {
		gateID = nil
	}
	if err := profile.Validate(gateID != nil); err != nil {
		return nil, err
	}

	var (
		host *domain.Host
		gate *domain.Gate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		host, err = s.hosts.GetByID(gctx, hostID)
		return err
	})
	if gateID != nil {
		g.Go(func() error {
			var err error
			gate, err = s.gates.GetByID(gctx, *gateID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load visitor references: %w", err)
	}
	if host == nil {
		return nil, domain.NotFound("host")
	}
	if gateID != nil && gate == nil {
		return nil, domain.NotFound("gate")
	}

	v, err := s.visitors.Create(ctx, &domain.Visitor{
		FullName:     profile.FullName,
		Email:        profile.Email,
		Contact:      profile.Contact,
		Purpose:      profile.Purpose,
		Organisation: profile.Organisation,
		EmployeeID:   profile.EmployeeID,
		Photo:        profile.Photo,
		HostID:       host.ID,
		GateID:       gateID,
		Status:       domain.StatusWaiting,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create visitor: %w", err)
	}

	logger.InfoContext(ctx, "Visitor created", "visitor_id", v.ID, "host_id", v.HostID)
	s.emit(ctx, notify.Notification{Kind: notify.KindCreated, Visitor: v})
	return v, nil
}

func (s *visitorService) PreApprove(ctx context.Context, hostID string, profile domain.VisitorProfile, window domain.CheckInWindow) (*domain.Visitor, error) {
	profile.Normalize()
	if err := profile.ValidatePreApproval(); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	dayStart, dayEnd := domain.DayBounds(window.From, s.loc)
	from, to := window.From, window.To
	v, err := s.visitors.CreatePreApproved(ctx, &domain.Visitor{
		FullName:            profile.FullName,
		Email:               profile.Email,
		Contact:             profile.Contact,
		Purpose:             profile.Purpose,
		Organisation:        profile.Organisation,
		EmployeeID:          profile.EmployeeID,
		Photo:               profile.Photo,
		HostID:              hostID,
		Status:              domain.StatusApproved,
		PreApproved:         true,
		ExpectedCheckInFrom: &from,
		ExpectedCheckInTo:   &to,
		CreatedAt:           s.now(),
	}, dayStart, dayEnd)
	if err != nil {
		var qe *domain.QuotaExceededError
		var nf *domain.NotFoundError
		if errors.As(err, &qe) || errors.As(err, &nf) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to pre-approve visitor: %w", err)
	}

	logger.InfoContext(ctx, "Visitor pre-approved", "visitor_id", v.ID, "host_id", hostID, "day", dayStart.Format("2006-01-02"))
	s.emit(ctx, notify.Notification{Kind: notify.KindPreApproved, Visitor: v})
	return v, nil
}

func (s *visitorService) RequestApproval(ctx context.Context, visitorID string) (*domain.Visitor, error) {
	v, err := s.loadVisitor(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	host, err := s.hosts.GetByID(ctx, v.HostID)
	if err != nil {
		return nil, fmt.Errorf("failed to load host: %w", err)
	}
	if host == nil {
		return nil, domain.NotFound("host")
	}
	if _, err := domain.Transition(v.Status, domain.StatusWaiting); err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, v.ID, domain.StatusWaiting)
	if err != nil {
		return nil, err
	}
	if err := s.hosts.EnqueueRequest(ctx, host.ID, v.ID); err != nil {
		return nil, fmt.Errorf("failed to queue visit request: %w", err)
	}

	logger.InfoContext(ctx, "Approval requested", "visitor_id", v.ID, "host_id", host.ID)
	s.invalidate(ctx, v.ID)
	s.emit(ctx, notify.Notification{Kind: notify.KindNewVisitRequest, Visitor: updated, HostName: host.Name})
	return updated, nil
}

func (s *visitorService) Approve(ctx context.Context, hostID, visitorID string) (*domain.Visitor, error) {
	return s.decide(ctx, hostID, visitorID, domain.StatusApproved)
}

func (s *visitorService) Decline(ctx context.Context, hostID, visitorID string) (*domain.Visitor, error) {
	return s.decide(ctx, hostID, visitorID, domain.StatusDeclined)
}

func (s *visitorService) decide(ctx context.Context, hostID, visitorID string, to domain.VisitorStatus) (*domain.Visitor, error) {
	var (
		host *domain.Host
		v    *domain.Visitor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		host, err = s.hosts.GetByID(gctx, hostID)
		return err
	})
	g.Go(func() error {
		var err error
		v, err = s.visitors.GetByID(gctx, visitorID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load host and visitor: %w", err)
	}
	if host == nil {
		return nil, domain.NotFound("host")
	}
	if v == nil {
		return nil, domain.NotFound("visitor")
	}
	if !v.BelongsTo(host.ID) {
		return nil, &domain.ForbiddenError{Reason: "visitor belongs to another host"}
	}
	if v.Status != domain.StatusWaiting {
		return nil, &domain.InvalidStateError{Status: v.Status, Message: "visitor request already decided"}
	}

	updated, err := s.casStatus(ctx, v.ID, []domain.VisitorStatus{domain.StatusWaiting}, to)
	if err != nil {
		return nil, err
	}
	if err := s.hosts.DequeueRequest(ctx, host.ID, v.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to remove visit request from queue", "error", err, "visitor_id", v.ID, "host_id", host.ID)
	}

	logger.InfoContext(ctx, "Visit request decided", "visitor_id", v.ID, "host_id", host.ID, "status", string(to))
	s.invalidate(ctx, v.ID)
	s.emit(ctx, notify.Notification{Kind: notify.KindVisitorStatus, Visitor: updated, HostName: host.Name})
	return updated, nil
}

func (s *visitorService) IssueBadge(ctx context.Context, visitorID string, requester domain.Identity) (*domain.BadgeData, error) {
	v, err := s.loadVisitor(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if requester.IsHost() {
		if !v.BelongsTo(requester.ID) {
			return nil, &domain.ForbiddenError{Reason: "you are not authorized to generate a badge for this visitor"}
		}
		if !v.PreApproved {
			return nil, &domain.InvalidStateError{Status: v.Status, Message: "badges can only be generated for pre-approved visitors"}
		}
	}
	if v.Status != domain.StatusApproved {
		return nil, &domain.InvalidStateError{Status: v.Status, Message: "visitor is not approved yet"}
	}

	hostName := ""
	if host, err := s.hosts.GetByID(ctx, v.HostID); err != nil {
		logger.WarnContext(ctx, "Failed to load host for badge", "error", err, "host_id", v.HostID)
	} else if host != nil {
		hostName = host.Name
	}

	if v.HasBadge() {
		bd := domain.NewBadgeData(v, hostName, s.loc)
		return &bd, nil
	}

	code, err := s.encoder.Encode(v.ID)
	if err != nil {
		var bge *domain.BadgeGenerationError
		if !errors.As(err, &bge) {
			err = &domain.BadgeGenerationError{Err: err}
		}
		return nil, err
	}

	updated, err := s.visitors.SetBadge(ctx, v.ID, domain.Badge{QRCode: code, IssuedAt: s.now()})
	if err != nil {
		return nil, fmt.Errorf("failed to store badge: %w", err)
	}
	if updated == nil {
		// Lost a race: another request issued the badge or moved the status.
		current, err := s.loadVisitor(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		if !current.HasBadge() {
			return nil, &domain.InvalidStateError{Status: current.Status, Message: "visitor is not approved yet"}
		}
		bd := domain.NewBadgeData(current, hostName, s.loc)
		return &bd, nil
	}

	bd := domain.NewBadgeData(updated, hostName, s.loc)
	logger.InfoContext(ctx, "Badge issued", "visitor_id", v.ID)
	s.invalidate(ctx, v.ID)
	s.emit(ctx, notify.Notification{Kind: notify.KindBadgeIssued, Visitor: updated, HostName: hostName, Badge: &bd})
	return &bd, nil
}

func (s *visitorService) CheckIn(ctx context.Context, visitorID string) (*domain.Visitor, error) {
	v, err := s.loadVisitor(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	switch {
	case v.Status == domain.StatusCheckedIn:
		return nil, &domain.InvalidStateError{Status: v.Status, Message: "visitor already checked in"}
	case v.Status != domain.StatusApproved:
		return nil, &domain.InvalidStateError{Status: v.Status, Message: "visitor is not approved for entry"}
	case !v.HasBadge():
		return nil, &domain.BadgeMissingError{VisitorID: v.ID}
	}
	now := s.now()
	if !v.WithinWindow(now) {
		e := &domain.OutOfWindowError{}
		if v.ExpectedCheckInFrom != nil && v.ExpectedCheckInTo != nil {
			e.From, e.To = v.ExpectedCheckInFrom.In(s.loc), v.ExpectedCheckInTo.In(s.loc)
		}
		return nil, e
	}

	updated, err := s.casStatusAt(ctx, v.ID, []domain.VisitorStatus{domain.StatusApproved}, domain.StatusCheckedIn, now)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Visitor checked in", "visitor_id", v.ID)
	s.invalidate(ctx, v.ID)
	s.emit(ctx, notify.Notification{Kind: notify.KindCheckedIn, Visitor: updated})
	return updated, nil
}

func (s *visitorService) CheckOut(ctx context.Context, visitorID string) (*domain.Visitor, error) {
	v, err := s.loadVisitor(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	switch v.Status {
	case domain.StatusCheckedIn:
	case domain.StatusCheckedOut:
		return nil, &domain.InvalidStateError{Status: v.Status, Message: "visitor already checked out"}
	default:
		return nil, &domain.InvalidStateError{Status: v.Status, Message: "visitor is not checked in yet"}
	}

	updated, err := s.transition(ctx, v.ID, domain.StatusCheckedOut)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Visitor checked out", "visitor_id", v.ID)
	s.invalidate(ctx, v.ID)
	s.emit(ctx, notify.Notification{Kind: notify.KindCheckedOut, Visitor: updated})
	return updated, nil
}

func (s *visitorService) Get(ctx context.Context, visitorID string, requester domain.Identity) (*domain.Visitor, error) {
	v, err := s.loadVisitor(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if err := CanView(requester, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *visitorService) ListForHost(ctx context.Context, hostID string) ([]domain.Visitor, error) {
	return s.list(ctx, repo.VisitorFilter{HostID: hostID})
}

func (s *visitorService) ListPreApproved(ctx context.Context, hostID string) ([]domain.Visitor, error) {
	pre := true
	return s.list(ctx, repo.VisitorFilter{HostID: hostID, PreApproved: &pre, SortByWindow: true})
}

// PendingRequests returns the host's queue in request order, skipping entries
// that are no longer waiting.
func (s *visitorService) PendingRequests(ctx context.Context, hostID string) ([]domain.Visitor, error) {
	host, err := s.hosts.GetByID(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to load host: %w", err)
	}
	if host == nil {
		return nil, domain.NotFound("host")
	}
	if len(host.VisitRequestQueue) == 0 {
		return []domain.Visitor{}, nil
	}
	vs, err := s.list(ctx, repo.VisitorFilter{HostID: hostID, IDs: host.VisitRequestQueue})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Visitor, len(vs))
	for _, v := range vs {
		byID[v.ID] = v
	}
	out := make([]domain.Visitor, 0, len(vs))
	for _, id := range host.VisitRequestQueue {
		if v, ok := byID[id]; ok && v.Status == domain.StatusWaiting {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *visitorService) ListToday(ctx context.Context) ([]domain.Visitor, error) {
	start, end := domain.DayBounds(s.now(), s.loc)
	return s.list(ctx, repo.VisitorFilter{CreatedAfter: &start, CreatedBefore: &end})
}

func (s *visitorService) ListAll(ctx context.Context) ([]domain.VisitorWithHost, error) {
	var (
		vs    []domain.Visitor
		hosts []domain.Host
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		vs, err = s.list(gctx, repo.VisitorFilter{})
		return err
	})
	g.Go(func() (err error) {
		if hosts, err = s.hosts.List(gctx); err != nil {
			return fmt.Errorf("failed to list hosts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	refs := make(map[string]*domain.HostRef, len(hosts))
	for _, h := range hosts {
		refs[h.ID] = &domain.HostRef{ID: h.ID, Name: h.Name, Department: h.Department}
	}
	out := make([]domain.VisitorWithHost, len(vs))
	for i, v := range vs {
		out[i] = domain.VisitorWithHost{Visitor: v, Host: refs[v.HostID]}
	}
	return out, nil
}

func (s *visitorService) list(ctx context.Context, f repo.VisitorFilter) ([]domain.Visitor, error) {
	vs, err := s.visitors.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list visitors: %w", err)
	}
	return vs, nil
}

func (s *visitorService) loadVisitor(ctx context.Context, id string) (*domain.Visitor, error) {
	if id == "" {
		return nil, domain.Invalid("visitorId", "is required")
	}
	v, err := s.visitors.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load visitor: %w", err)
	}
	if v == nil {
		return nil, domain.NotFound("visitor")
	}
	return v, nil
}

// transition moves the visitor to `to` from any status allowed to reach it.
func (s *visitorService) transition(ctx context.Context, id string, to domain.VisitorStatus) (*domain.Visitor, error) {
	return s.casStatus(ctx, id, domain.PriorStatuses(to), to)
}

func (s *visitorService) casStatus(ctx context.Context, id string, from []domain.VisitorStatus, to domain.VisitorStatus) (*domain.Visitor, error) {
	return s.casStatusAt(ctx, id, from, to, s.now())
}

func (s *visitorService) casStatusAt(ctx context.Context, id string, from []domain.VisitorStatus, to domain.VisitorStatus, at time.Time) (*domain.Visitor, error) {
	updated, err := s.visitors.UpdateStatus(ctx, id, from, to, at)
	if err != nil {
		return nil, fmt.Errorf("failed to update visitor status: %w", err)
	}
	if updated != nil {
		return updated, nil
	}
	current, err := s.loadVisitor(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &domain.InvalidStateError{Status: current.Status}
}

func (s *visitorService) invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}

func (s *visitorService) emit(ctx context.Context, n notify.Notification) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}
