package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestPreApprovedQuotaPerDay(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	h, err := s.Hosts.Create(ctx, &domain.Host{Name: "Grace", Username: "grace", PreApprovalLimit: 1})
	require.NoError(t, err)

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	end := day.Add(24*time.Hour - time.Millisecond)
	a := &domain.Visitor{FullName: "A", HostID: h.ID, PreApproved: true, Status: domain.StatusApproved,
		ExpectedCheckInFrom: ptr(day.Add(9 * time.Hour)), ExpectedCheckInTo: ptr(day.Add(17 * time.Hour))}
	got, err := s.Visitors.CreatePreApproved(ctx, a, day, end)
	require.NoError(t, err)

	b := &domain.Visitor{FullName: "B", HostID: h.ID, PreApproved: true, Status: domain.StatusApproved,
		ExpectedCheckInFrom: ptr(day.Add(10 * time.Hour)), ExpectedCheckInTo: ptr(day.Add(11 * time.Hour))}
	_, err = s.Visitors.CreatePreApproved(ctx, b, day, end)
	var qe *domain.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 1, qe.Limit)

	host, err := s.Hosts.GetByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{got.ID}, host.PreApproved)

	_, err = s.Visitors.CreatePreApproved(ctx, &domain.Visitor{HostID: "missing"}, day, end)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestUpdateStatusCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	v, err := s.Visitors.Create(ctx, &domain.Visitor{FullName: "V", HostID: "h"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, v.Status)

	var wg sync.WaitGroup
	results := make(chan *domain.Visitor, 2)
	for _, to := range []domain.VisitorStatus{domain.StatusApproved, domain.StatusDeclined} {
		wg.Add(1)
		go func(to domain.VisitorStatus) {
			defer wg.Done()
			out, err := s.Visitors.UpdateStatus(ctx, v.ID, []domain.VisitorStatus{domain.StatusWaiting}, to, time.Now())
			assert.NoError(t, err)
			results <- out
		}(to)
	}
	wg.Wait()
	close(results)

	winners := 0
	for r := range results {
		if r != nil {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	at := time.Now()
	out, err := s.Visitors.UpdateStatus(ctx, "nope", []domain.VisitorStatus{domain.StatusApproved}, domain.StatusCheckedIn, at)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestUpdateStatusStampsCheckInAndOut(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	v, _ := s.Visitors.Create(ctx, &domain.Visitor{FullName: "V", HostID: "h", Status: domain.StatusApproved})

	in := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	out, err := s.Visitors.UpdateStatus(ctx, v.ID, []domain.VisitorStatus{domain.StatusApproved}, domain.StatusCheckedIn, in)
	require.NoError(t, err)
	require.NotNil(t, out.CheckIn)
	assert.True(t, out.CheckIn.Equal(in))
	assert.Nil(t, out.CheckOut)

	leave := in.Add(2 * time.Hour)
	out, err = s.Visitors.UpdateStatus(ctx, v.ID, []domain.VisitorStatus{domain.StatusCheckedIn}, domain.StatusCheckedOut, leave)
	require.NoError(t, err)
	assert.True(t, out.CheckOut.Equal(leave))
}

func TestSetBadgeOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	waiting, _ := s.Visitors.Create(ctx, &domain.Visitor{FullName: "W", HostID: "h"})
	approved, _ := s.Visitors.Create(ctx, &domain.Visitor{FullName: "A", HostID: "h", Status: domain.StatusApproved})

	out, err := s.Visitors.SetBadge(ctx, waiting.ID, domain.Badge{QRCode: "qr", IssuedAt: time.Now()})
	require.NoError(t, err)
	assert.Nil(t, out)

	first, err := s.Visitors.SetBadge(ctx, approved.ID, domain.Badge{QRCode: "qr-1", IssuedAt: time.Now()})
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := s.Visitors.SetBadge(ctx, approved.ID, domain.Badge{QRCode: "qr-2", IssuedAt: time.Now()})
	require.NoError(t, err)
	assert.Nil(t, second)

	stored, _ := s.Visitors.GetByID(ctx, approved.ID)
	assert.Equal(t, "qr-1", stored.Badge.QRCode)
}

func TestHostQueueIsASet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	h, _ := s.Hosts.Create(ctx, &domain.Host{Name: "Grace", Username: "grace"})
	assert.Equal(t, domain.DefaultPreApprovalLimit, h.PreApprovalLimit)

	require.NoError(t, s.Hosts.EnqueueRequest(ctx, h.ID, "v-1"))
	require.NoError(t, s.Hosts.EnqueueRequest(ctx, h.ID, "v-1"))
	require.NoError(t, s.Hosts.EnqueueRequest(ctx, h.ID, "v-2"))
	got, _ := s.Hosts.GetByID(ctx, h.ID)
	assert.Equal(t, []string{"v-1", "v-2"}, got.VisitRequestQueue)

	require.NoError(t, s.Hosts.DequeueRequest(ctx, h.ID, "v-1"))
	require.NoError(t, s.Hosts.DequeueRequest(ctx, h.ID, "v-1"))
	got, _ = s.Hosts.GetByID(ctx, h.ID)
	assert.Equal(t, []string{"v-2"}, got.VisitRequestQueue)
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.Hosts.Create(ctx, &domain.Host{Name: "Grace", Username: "grace"})
	require.NoError(t, err)
	_, err = s.Hosts.Create(ctx, &domain.Host{Name: "Other", Username: "grace"})
	var ce *domain.ConflictError
	assert.True(t, errors.As(err, &ce))

	_, err = s.Gates.Create(ctx, &domain.Gate{Name: "North", LoginID: "north"})
	require.NoError(t, err)
	_, err = s.Gates.Create(ctx, &domain.Gate{Name: "South", LoginID: "north"})
	assert.True(t, errors.As(err, &ce))

	_, err = s.Admins.Create(ctx, &domain.Admin{Name: "Root", Username: "root"})
	require.NoError(t, err)
	_, err = s.Admins.Create(ctx, &domain.Admin{Name: "Root 2", Username: "root"})
	assert.True(t, errors.As(err, &ce))
	n, _ := s.Admins.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	db := New()
	clock := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { clock = clock.Add(time.Minute); return clock }
	s := db.Store()

	gate := "g-1"
	first, _ := s.Visitors.Create(ctx, &domain.Visitor{FullName: "1", HostID: "h-1", GateID: &gate})
	second, _ := s.Visitors.Create(ctx, &domain.Visitor{FullName: "2", HostID: "h-1"})
	_, _ = s.Visitors.Create(ctx, &domain.Visitor{FullName: "3", HostID: "h-2"})

	got, err := s.Visitors.List(ctx, repo.VisitorFilter{HostID: "h-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID, "newest first")

	got, _ = s.Visitors.List(ctx, repo.VisitorFilter{GateID: gate})
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	got, _ = s.Visitors.List(ctx, repo.VisitorFilter{IDs: []string{first.ID}, Limit: 5})
	assert.Len(t, got, 1)
}
