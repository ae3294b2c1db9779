package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/repo"
	"github.com/diagnosis/visitorgate/pkg/auth"
	"github.com/diagnosis/visitorgate/pkg/logger"
)

// TokenIssuer mints session tokens for a verified account.
type TokenIssuer interface {
	Issue(sub, role string) (string, error)
	TTL() time.Duration
}

type AccountService interface {
	Login(ctx context.Context, role domain.Role, req domain.LoginRequest) (*domain.LoginResponse, error)

	CreateAdmin(ctx context.Context, req domain.CreateAdminRequest) (*domain.Admin, error)
	// EnsureAdmin creates the first admin when none exists. It is a no-op otherwise.
	EnsureAdmin(ctx context.Context, req domain.CreateAdminRequest) (bool, error)

	CreateHost(ctx context.Context, req domain.CreateHostRequest) (*domain.Host, error)
	DeleteHost(ctx context.Context, id string) error
	ListHosts(ctx context.Context) ([]domain.Host, error)
	SetLimit(ctx context.Context, hostID string, limit int) error
	SetLimitAll(ctx context.Context, limit int) (int64, error)

	CreateGate(ctx context.Context, req domain.CreateGateRequest) (*domain.Gate, error)
	DeleteGate(ctx context.Context, id string) error
	ListGates(ctx context.Context) ([]domain.Gate, error)
}

type accountService struct {
	admins       repo.AdminRepo
	hosts        repo.HostRepo
	gates        repo.GateRepo
	hasher       auth.PasswordHasher
	tokens       TokenIssuer
	defaultLimit int
}

func NewAccountService(store *repo.Store, hasher auth.PasswordHasher, tokens TokenIssuer, defaultLimit int) AccountService {
	if defaultLimit <= 0 {
		defaultLimit = domain.DefaultPreApprovalLimit
	}
	return &accountService{
		admins:       store.Admins,
		hosts:        store.Hosts,
		gates:        store.Gates,
		hasher:       hasher,
		tokens:       tokens,
		defaultLimit: defaultLimit,
	}
}

var errBadCredentials = &domain.AuthError{Reason: "invalid credentials"}

func (s *accountService) Login(ctx context.Context, role domain.Role, req domain.LoginRequest) (*domain.LoginResponse, error) {
	handle := req.Handle()
	if handle == "" || req.Password == "" {
		return nil, domain.Invalid("", "login and password are required")
	}

	var (
		info *domain.AccountInfo
		hash string
	)
	switch role {
	case domain.RoleAdmin:
		a, err := s.admins.GetByUsername(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("failed to load admin: %w", err)
		}
		if a != nil {
			info, hash = &domain.AccountInfo{ID: a.ID, Role: role, Name: a.Name, Login: a.Username}, a.PasswordHash
		}
	case domain.RoleHost:
		h, err := s.hosts.GetByUsername(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("failed to load host: %w", err)
		}
		if h != nil {
			info, hash = &domain.AccountInfo{ID: h.ID, Role: role, Name: h.Name, Login: h.Username}, h.PasswordHash
		}
	case domain.RoleGate:
		g, err := s.gates.GetByLoginID(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("failed to load gate: %w", err)
		}
		if g != nil {
			info, hash = &domain.AccountInfo{ID: g.ID, Role: role, Name: g.Name, Login: g.LoginID}, g.PasswordHash
		}
	default:
		return nil, domain.Invalid("role", "unknown role")
	}
	if info == nil {
		logger.WarnContext(ctx, "Login for unknown account", "role", string(role), "login", handle)
		return nil, errBadCredentials
	}

	ok, err := s.hasher.Verify(req.Password, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		logger.WarnContext(ctx, "Login with wrong password", "role", string(role), "account_id", info.ID)
		return nil, errBadCredentials
	}

	token, err := s.tokens.Issue(info.ID, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	logger.InfoContext(ctx, "Login succeeded", "role", string(role), "account_id", info.ID)
	return &domain.LoginResponse{
		Token:     token,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
		Account:   info,
	}, nil
}

func (s *accountService) CreateAdmin(ctx context.Context, req domain.CreateAdminRequest) (*domain.Admin, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	a, err := s.admins.Create(ctx, &domain.Admin{
		Name:         req.Name,
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Tier:         req.Tier,
	})
	if err != nil {
		return nil, wrapStoreErr("failed to create admin", err)
	}
	logger.InfoContext(ctx, "Admin created", "admin_id", a.ID)
	return a, nil
}

func (s *accountService) EnsureAdmin(ctx context.Context, req domain.CreateAdminRequest) (bool, error) {
	n, err := s.admins.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if req.Tier == "" {
		req.Tier = domain.TierSuperAdmin
	}
	if _, err := s.CreateAdmin(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

func (s *accountService) CreateHost(ctx context.Context, req domain.CreateHostRequest) (*domain.Host, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	h, err := s.hosts.Create(ctx, &domain.Host{
		Name:             req.Name,
		Username:         req.Username,
		PasswordHash:     hash,
		Department:       req.Department,
		EmployeeID:       req.EmployeeID,
		Contact:          req.Contact,
		PreApprovalLimit: s.defaultLimit,
	})
	if err != nil {
		return nil, wrapStoreErr("failed to create host", err)
	}
	logger.InfoContext(ctx, "Host created", "host_id", h.ID)
	return h, nil
}

func (s *accountService) DeleteHost(ctx context.Context, id string) error {
	if id == "" {
		return domain.Invalid("id", "is required")
	}
	ok, err := s.hosts.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete host: %w", err)
	}
	if !ok {
		return domain.NotFound("host")
	}
	logger.InfoContext(ctx, "Host deleted", "host_id", id)
	return nil
}

func (s *accountService) ListHosts(ctx context.Context) ([]domain.Host, error) {
	hs, err := s.hosts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	return hs, nil
}

func (s *accountService) SetLimit(ctx context.Context, hostID string, limit int) error {
	if hostID == "" {
		return domain.Invalid("hostId", "is required")
	}
	if limit <= 0 {
		return domain.Invalid("limit", "must be a positive number")
	}
	ok, err := s.hosts.SetLimit(ctx, hostID, limit)
	if err != nil {
		return fmt.Errorf("failed to set pre-approval limit: %w", err)
	}
	if !ok {
		return domain.NotFound("host")
	}
	logger.InfoContext(ctx, "Pre-approval limit updated", "host_id", hostID, "limit", limit)
	return nil
}

func (s *accountService) SetLimitAll(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		return 0, domain.Invalid("limit", "must be a positive number")
	}
	n, err := s.hosts.SetLimitAll(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to set pre-approval limits: %w", err)
	}
	logger.InfoContext(ctx, "Pre-approval limit updated for all hosts", "limit", limit, "modified", n)
	return n, nil
}

func (s *accountService) CreateGate(ctx context.Context, req domain.CreateGateRequest) (*domain.Gate, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	g, err := s.gates.Create(ctx, &domain.Gate{
		Name:         req.Name,
		LoginID:      req.LoginID,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, wrapStoreErr("failed to create gate", err)
	}
	logger.InfoContext(ctx, "Gate created", "gate_id", g.ID)
	return g, nil
}

func (s *accountService) DeleteGate(ctx context.Context, id string) error {
	if id == "" {
		return domain.Invalid("id", "is required")
	}
	ok, err := s.gates.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete gate: %w", err)
	}
	if !ok {
		return domain.NotFound("gate")
	}
	logger.InfoContext(ctx, "Gate deleted", "gate_id", id)
	return nil
}

func (s *accountService) ListGates(ctx context.Context) ([]domain.Gate, error) {
	gs, err := s.gates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list gates: %w", err)
	}
	return gs, nil
}

// wrapStoreErr keeps conflicts unwrapped so their message reaches the client.
func wrapStoreErr(msg string, err error) error {
	var ce *domain.ConflictError
	if errors.As(err, &ce) {
		return ce
	}
	return fmt.Errorf("%s: %w", msg, err)
}
