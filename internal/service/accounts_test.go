package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/repo/memory"
	"github.com/diagnosis/visitorgate/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccounts(t *testing.T) (AccountService, *auth.Issuer) {
	t.Helper()
	hasher := auth.NewArgon2Hasher(&argon2id.Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	issuer := auth.NewIssuer("test-secret", time.Hour)
	return NewAccountService(memory.NewStore(), hasher, issuer, 5), issuer
}

func TestHostLogin(t *testing.T) {
	svc, issuer := newAccounts(t)
	ctx := context.Background()

	h, err := svc.CreateHost(ctx, domain.CreateHostRequest{
		Name: "Grace Hopper", Username: "  grace ", Password: "secret123", Department: "R&D",
	})
	require.NoError(t, err)
	assert.Equal(t, "grace", h.Username)
	assert.Equal(t, 5, h.PreApprovalLimit)
	assert.NotEqual(t, "secret123", h.PasswordHash)

	resp, err := svc.Login(ctx, domain.RoleHost, domain.LoginRequest{Username: "grace", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, h.ID, resp.Account.ID)

	claims, err := issuer.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, h.ID, claims.Sub)
	assert.Equal(t, "host", claims.Role)

	_, err = svc.Login(ctx, domain.RoleHost, domain.LoginRequest{Username: "grace", Password: "wrong-pass"})
	var ae *domain.AuthError
	assert.True(t, errors.As(err, &ae))

	_, err = svc.Login(ctx, domain.RoleGate, domain.LoginRequest{LoginID: "grace", Password: "secret123"})
	assert.True(t, errors.As(err, &ae), "host credentials do not open the gate login")
}

func TestGateLifecycle(t *testing.T) {
	svc, _ := newAccounts(t)
	ctx := context.Background()

	_, err := svc.CreateGate(ctx, domain.CreateGateRequest{Name: "North", LoginID: "north", Password: "123"})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "password", ve.Field)

	g, err := svc.CreateGate(ctx, domain.CreateGateRequest{Name: "North", LoginID: "north", Password: "gatepass"})
	require.NoError(t, err)

	_, err = svc.CreateGate(ctx, domain.CreateGateRequest{Name: "North 2", LoginID: "north", Password: "gatepass"})
	var ce *domain.ConflictError
	require.True(t, errors.As(err, &ce))

	resp, err := svc.Login(ctx, domain.RoleGate, domain.LoginRequest{LoginID: "north", Password: "gatepass"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGate, resp.Account.Role)

	require.NoError(t, svc.DeleteGate(ctx, g.ID))
	var nf *domain.NotFoundError
	assert.True(t, errors.As(svc.DeleteGate(ctx, g.ID), &nf))

	gates, err := svc.ListGates(ctx)
	require.NoError(t, err)
	assert.Empty(t, gates)
}

func TestSetLimits(t *testing.T) {
	svc, _ := newAccounts(t)
	ctx := context.Background()
	a, err := svc.CreateHost(ctx, domain.CreateHostRequest{Name: "A", Username: "a", Password: "password"})
	require.NoError(t, err)
	_, err = svc.CreateHost(ctx, domain.CreateHostRequest{Name: "B", Username: "b", Password: "password"})
	require.NoError(t, err)

	var ve *domain.ValidationError
	assert.True(t, errors.As(svc.SetLimit(ctx, a.ID, 0), &ve))
	var nf *domain.NotFoundError
	assert.True(t, errors.As(svc.SetLimit(ctx, "missing", 3), &nf))

	require.NoError(t, svc.SetLimit(ctx, a.ID, 3))
	n, err := svc.SetLimitAll(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "host A already had the limit")

	hosts, err := svc.ListHosts(ctx)
	require.NoError(t, err)
	for _, h := range hosts {
		assert.Equal(t, 3, h.PreApprovalLimit)
	}

	_, err = svc.SetLimitAll(ctx, -1)
	assert.True(t, errors.As(err, &ve))
}

func TestEnsureAdmin(t *testing.T) {
	svc, _ := newAccounts(t)
	ctx := context.Background()
	req := domain.CreateAdminRequest{Name: "Root", Username: "root", Password: "rootpass"}

	created, err := svc.EnsureAdmin(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, domain.CreateAdminRequest{Name: "Other", Username: "other", Password: "otherpass"})
	require.NoError(t, err)
	assert.False(t, created)

	resp, err := svc.Login(ctx, domain.RoleAdmin, domain.LoginRequest{Username: "root", Password: "rootpass"})
	require.NoError(t, err)
	assert.Equal(t, "Root", resp.Account.Name)

	_, err = svc.CreateAdmin(ctx, domain.CreateAdminRequest{Name: "Bad", Username: "bad", Password: "badpass", Tier: "Owner"})
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}
