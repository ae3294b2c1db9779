package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/notify"
	"github.com/diagnosis/visitorgate/internal/repo"
	"github.com/diagnosis/visitorgate/internal/repo/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEncoder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingEncoder) Encode(payload string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	return fmt.Sprintf("data:image/png;base64,%s-%d", payload, e.calls), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.Kind
	}
	return out
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

type fixture struct {
	store    *repo.Store
	svc      VisitorService
	encoder  *countingEncoder
	notifier *recordingNotifier
	cache    *recordingInvalidator
	now      time.Time
	host     *domain.Host
	gate     *domain.Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		encoder:  &countingEncoder{},
		notifier: &recordingNotifier{},
		cache:    &recordingInvalidator{},
		now:      time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewVisitorService(f.store, f.encoder, f.notifier, f.cache, time.UTC,
		WithClock(func() time.Time { return f.now }))

	ctx := context.Background()
	var err error
	f.host, err = f.store.Hosts.Create(ctx, &domain.Host{Name: "Grace Hopper", Username: "grace", PreApprovalLimit: 2})
	require.NoError(t, err)
	f.gate, err = f.store.Gates.Create(ctx, &domain.Gate{Name: "North", LoginID: "north"})
	require.NoError(t, err)
	return f
}

func (f *fixture) walkIn(t *testing.T) *domain.Visitor {
	t.Helper()
	gateID := f.gate.ID
	v, err := f.svc.Create(context.Background(), domain.VisitorProfile{
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
		Purpose:  "Interview",
		Photo:    "https://img.example.com/ada.png",
	}, f.host.ID, &gateID)
	require.NoError(t, err)
	return v
}

func (f *fixture) preApprove(t *testing.T, from, to time.Time) (*domain.Visitor, error) {
	t.Helper()
	return f.svc.PreApprove(context.Background(), f.host.ID,
		domain.VisitorProfile{FullName: "Alan Turing", Purpose: "Audit"},
		domain.CheckInWindow{From: from, To: to})
}

func day(d, h int) time.Time {
	return time.Date(2024, 1, d, h, 0, 0, 0, time.UTC)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gateID := f.gate.ID

	tests := []struct {
		name    string
		profile domain.VisitorProfile
		hostID  string
		gateID  *string
		field   string
	}{
		{"missing fullname", domain.VisitorProfile{Purpose: "x", Email: "a@b.co"}, f.host.ID, nil, "fullname"},
		{"missing purpose", domain.VisitorProfile{FullName: "A", Email: "a@b.co"}, f.host.ID, nil, "purpose"},
		{"missing host", domain.VisitorProfile{FullName: "A", Purpose: "x", Email: "a@b.co"}, "", nil, "hostEmployee"},
		{"no contact details", domain.VisitorProfile{FullName: "A", Purpose: "x"}, f.host.ID, nil, ""},
		{"gate without photo", domain.VisitorProfile{FullName: "A", Purpose: "x", Email: "a@b.co"}, f.host.ID, &gateID, "photo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.profile, tt.hostID, tt.gateID)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreateChecksReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	profile := domain.VisitorProfile{FullName: "A", Purpose: "x", Email: "a@b.co", Photo: "p"}

	_, err := f.svc.Create(ctx, profile, "nobody", nil)
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "host", nf.Resource)

	missing := "no-gate"
	_, err = f.svc.Create(ctx, profile, f.host.ID, &missing)
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "gate", nf.Resource)

	v := f.walkIn(t)
	assert.Equal(t, domain.StatusWaiting, v.Status)
	assert.Equal(t, f.host.ID, v.HostID)
	require.NotNil(t, v.GateID)
	assert.Equal(t, f.gate.ID, *v.GateID)
	assert.False(t, v.PreApproved)
	assert.Contains(t, f.notifier.kinds(), notify.KindCreated)
}

func TestPreApproveQuotaLimitTwo(t *testing.T) {
	f := newFixture(t)

	_, err := f.preApprove(t, day(10, 9), day(10, 10))
	require.NoError(t, err)
	_, err = f.preApprove(t, day(10, 11), day(10, 12))
	require.NoError(t, err)

	_, err = f.preApprove(t, day(10, 14), day(10, 15))
	var qe *domain.QuotaExceededError
	require.True(t, errors.As(err, &qe), "got %v", err)
	assert.Equal(t, 2, qe.Limit)

	v, err := f.preApprove(t, day(11, 9), day(11, 10))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, v.Status)
	assert.True(t, v.PreApproved)

	host, err := f.store.Hosts.GetByID(context.Background(), f.host.ID)
	require.NoError(t, err)
	assert.Len(t, host.PreApproved, 3)
}

func TestPreApproveQuotaLimitOneAcrossDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok, err := f.store.Hosts.SetLimit(ctx, f.host.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.preApprove(t, day(10, 9), day(10, 17))
	require.NoError(t, err)

	_, err = f.preApprove(t, day(10, 18), day(10, 19))
	var qe *domain.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "2024-01-10", qe.Day.Format("2006-01-02"))

	_, err = f.preApprove(t, day(11, 9), day(11, 17))
	assert.NoError(t, err)
}

func TestPreApproveValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.preApprove(t, time.Time{}, day(10, 10))
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "expectedCheckInFrom", ve.Field)

	_, err = f.preApprove(t, day(10, 12), day(10, 10))
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "expectedCheckInTo", ve.Field)

	_, err = f.svc.PreApprove(context.Background(), f.host.ID,
		domain.VisitorProfile{Purpose: "Audit"},
		domain.CheckInWindow{From: day(10, 9), To: day(10, 10)})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "fullname", ve.Field)
}

func TestRequestApprovalQueuesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.walkIn(t)

	for i := 0; i < 3; i++ {
		got, err := f.svc.RequestApproval(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusWaiting, got.Status)
	}

	host, err := f.store.Hosts.GetByID(ctx, f.host.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{v.ID}, host.VisitRequestQueue)

	pending, err := f.svc.PendingRequests(ctx, f.host.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, v.ID, pending[0].ID)

	_, err = f.svc.RequestApproval(ctx, "missing")
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestRequestApprovalOnlyFromWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.walkIn(t)
	_, err := f.svc.Approve(ctx, f.host.ID, v.ID)
	require.NoError(t, err)

	_, err = f.svc.RequestApproval(ctx, v.ID)
	var ise *domain.InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, domain.StatusApproved, ise.Status)
}

func TestApproveDequeuesAndNotifiesGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.walkIn(t)
	_, err := f.svc.RequestApproval(ctx, v.ID)
	require.NoError(t, err)

	got, err := f.svc.Approve(ctx, f.host.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, got.Status)

	host, _ := f.store.Hosts.GetByID(ctx, f.host.ID)
	assert.Empty(t, host.VisitRequestQueue)

	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, notify.KindVisitorStatus, last.Kind)
	assert.Equal(t, "Grace Hopper", last.HostName)
	assert.Equal(t, domain.StatusApproved, last.Visitor.Status)
	assert.Contains(t, f.cache.ids, v.ID)

	_, err = f.svc.Decline(ctx, f.host.ID, v.ID)
	var ise *domain.InvalidStateError
	assert.True(t, errors.As(err, &ise))
}

func TestApproveRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.store.Hosts.Create(ctx, &domain.Host{Name: "Other", Username: "other"})
	require.NoError(t, err)
	v := f.walkIn(t)

	_, err = f.svc.Approve(ctx, other.ID, v.ID)
	var fe *domain.ForbiddenError
	assert.True(t, errors.As(err, &fe))

	_, err = f.svc.Decline(ctx, "ghost", v.ID)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestConcurrentApproveDeclineHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.walkIn(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, decide := range []func(context.Context, string, string) (*domain.Visitor, error){f.svc.Approve, f.svc.Decline} {
		wg.Add(1)
		go func(decide func(context.Context, string, string) (*domain.Visitor, error)) {
			defer wg.Done()
			_, err := decide(ctx, f.host.ID, v.ID)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(decide)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		var ise *domain.InvalidStateError
		switch {
		case err == nil:
			wins++
		case errors.As(err, &ise):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
}

func TestIssueBadgeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.walkIn(t)
	gate := domain.Identity{Role: domain.RoleGate, ID: f.gate.ID}

	_, err := f.svc.IssueBadge(ctx, v.ID, gate)
	var ise *domain.InvalidStateError
	require.True(t, errors.As(err, &ise), "badge before approval")

	_, err = f.svc.Approve(ctx, f.host.ID, v.ID)
	require.NoError(t, err)

	first, err := f.svc.IssueBadge(ctx, v.ID, gate)
	require.NoError(t, err)
	second, err := f.svc.IssueBadge(ctx, v.ID, gate)
	require.NoError(t, err)

	assert.Equal(t, first.QRCode, second.QRCode)
	assert.Equal(t, first.Time, second.Time)
	assert.Equal(t, 1, f.encoder.calls)
	assert.Equal(t, "Grace Hopper", first.Host)
	assert.Equal(t, "2024-01-10 08:00", first.Time)
	assert.Equal(t, "Ada Lovelace", first.FullName)
}

func TestIssueBadgeForHost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := domain.Identity{Role: domain.RoleHost, ID: f.host.ID}

	walkIn := f.walkIn(t)
	_, err := f.svc.Approve(ctx, f.host.ID, walkIn.ID)
	require.NoError(t, err)
	_, err = f.svc.IssueBadge(ctx, walkIn.ID, host)
	var ise *domain.InvalidStateError
	assert.True(t, errors.As(err, &ise), "walk-ins are badged at the gate")

	pre, err := f.preApprove(t, day(10, 9), day(10, 17))
	require.NoError(t, err)
	_, err = f.svc.IssueBadge(ctx, pre.ID, domain.Identity{Role: domain.RoleHost, ID: "someone-else"})
	var fe *domain.ForbiddenError
	assert.True(t, errors.As(err, &fe))

	bd, err := f.svc.IssueBadge(ctx, pre.ID, host)
	require.NoError(t, err)
	assert.NotEmpty(t, bd.QRCode)
	assert.Contains(t, f.notifier.kinds(), notify.KindBadgeIssued)

	_, err = f.svc.IssueBadge(ctx, "missing", host)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestIssueBadgeWrapsEncoderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.encoder.err = errors.New("boom")
	v := f.walkIn(t)
	_, err := f.svc.Approve(ctx, f.host.ID, v.ID)
	require.NoError(t, err)

	_, err = f.svc.IssueBadge(ctx, v.ID, domain.Identity{Role: domain.RoleGate, ID: f.gate.ID})
	var bge *domain.BadgeGenerationError
	require.True(t, errors.As(err, &bge))

	stored, _ := f.store.Visitors.GetByID(ctx, v.ID)
	assert.Nil(t, stored.Badge)
}

func TestCheckInErrorLadder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := domain.Identity{Role: domain.RoleGate, ID: f.gate.ID}
	v := f.walkIn(t)

	_, err := f.svc.CheckIn(ctx, v.ID)
	var ise *domain.InvalidStateError
	require.True(t, errors.As(err, &ise), "waiting visitor")

	_, err = f.svc.Approve(ctx, f.host.ID, v.ID)
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, v.ID)
	var bme *domain.BadgeMissingError
	require.True(t, errors.As(err, &bme), "approved without badge")

	_, err = f.svc.IssueBadge(ctx, v.ID, gate)
	require.NoError(t, err)
	got, err := f.svc.CheckIn(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCheckedIn, got.Status)
	require.NotNil(t, got.CheckIn)
	assert.True(t, got.CheckIn.Equal(f.now))

	_, err = f.svc.CheckIn(ctx, v.ID)
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, domain.StatusCheckedIn, ise.Status)

	_, err = f.svc.CheckIn(ctx, "missing")
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestCheckInWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := domain.Identity{Role: domain.RoleHost, ID: f.host.ID}

	v, err := f.preApprove(t, day(10, 9), day(10, 17))
	require.NoError(t, err)
	_, err = f.svc.IssueBadge(ctx, v.ID, host)
	require.NoError(t, err)

	f.now = day(10, 8)
	_, err = f.svc.CheckIn(ctx, v.ID)
	var owe *domain.OutOfWindowError
	require.True(t, errors.As(err, &owe), "too early")
	assert.True(t, owe.From.Equal(day(10, 9)))

	f.now = day(10, 18)
	_, err = f.svc.CheckIn(ctx, v.ID)
	require.True(t, errors.As(err, &owe), "too late")

	f.now = day(10, 17)
	got, err := f.svc.CheckIn(ctx, v.ID)
	require.NoError(t, err, "window end is inclusive")
	assert.Equal(t, domain.StatusCheckedIn, got.Status)
}

func TestCheckOutOnlyFromCheckedIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.walkIn(t)

	_, err := f.svc.CheckOut(ctx, v.ID)
	var ise *domain.InvalidStateError
	require.True(t, errors.As(err, &ise))

	_, err = f.svc.Decline(ctx, f.host.ID, v.ID)
	require.NoError(t, err)
	_, err = f.svc.CheckOut(ctx, v.ID)
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, domain.StatusDeclined, ise.Status)
}

func TestFullRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := domain.Identity{Role: domain.RoleGate, ID: f.gate.ID}

	v := f.walkIn(t)
	_, err := f.svc.RequestApproval(ctx, v.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.host.ID, v.ID)
	require.NoError(t, err)
	_, err = f.svc.IssueBadge(ctx, v.ID, gate)
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	in, err := f.svc.CheckIn(ctx, v.ID)
	require.NoError(t, err)
	f.now = f.now.Add(2 * time.Hour)
	out, err := f.svc.CheckOut(ctx, v.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCheckedOut, out.Status)
	assert.True(t, out.CheckIn.Equal(*in.CheckIn))
	assert.True(t, out.CheckOut.After(*out.CheckIn))

	_, err = f.svc.CheckOut(ctx, v.ID)
	var ise *domain.InvalidStateError
	assert.True(t, errors.As(err, &ise))

	assert.Equal(t, []notify.Kind{
		notify.KindCreated,
		notify.KindNewVisitRequest,
		notify.KindVisitorStatus,
		notify.KindBadgeIssued,
		notify.KindCheckedIn,
		notify.KindCheckedOut,
	}, f.notifier.kinds())
}

func TestReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	walkIn := f.walkIn(t)
	late, err := f.preApprove(t, day(12, 14), day(12, 15))
	require.NoError(t, err)
	early, err := f.preApprove(t, day(11, 9), day(11, 10))
	require.NoError(t, err)

	pre, err := f.svc.ListPreApproved(ctx, f.host.ID)
	require.NoError(t, err)
	require.Len(t, pre, 2)
	assert.Equal(t, early.ID, pre[0].ID)
	assert.Equal(t, late.ID, pre[1].ID)

	all, err := f.svc.ListForHost(ctx, f.host.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	today, err := f.svc.ListToday(ctx)
	require.NoError(t, err)
	assert.Len(t, today, 3)
	f.now = day(11, 8)
	today, err = f.svc.ListToday(ctx)
	require.NoError(t, err)
	assert.Empty(t, today)

	_, err = f.svc.Get(ctx, walkIn.ID, domain.Identity{Role: domain.RoleHost, ID: "intruder"})
	var fe *domain.ForbiddenError
	assert.True(t, errors.As(err, &fe))
	got, err := f.svc.Get(ctx, walkIn.ID, domain.Identity{Role: domain.RoleGate, ID: "any-gate"})
	require.NoError(t, err)
	assert.Equal(t, walkIn.ID, got.ID)
}

func TestListAllResolvesHosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	walkIn := f.walkIn(t)

	other, err := f.store.Hosts.Create(ctx, &domain.Host{Name: "Alan Turing", Username: "alan", Department: "Research"})
	require.NoError(t, err)
	orphan, err := f.svc.Create(ctx, domain.VisitorProfile{FullName: "Joan Clarke", Purpose: "Review"}, other.ID, nil)
	require.NoError(t, err)
	deleted, err := f.store.Hosts.Delete(ctx, other.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byID := map[string]domain.VisitorWithHost{}
	for _, v := range all {
		byID[v.ID] = v
	}
	require.NotNil(t, byID[walkIn.ID].Host)
	assert.Equal(t, domain.HostRef{ID: f.host.ID, Name: "Grace Hopper"}, *byID[walkIn.ID].Host)
	assert.Equal(t, f.host.ID, byID[walkIn.ID].HostID)
	assert.Nil(t, byID[orphan.ID].Host)
}
