package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/diagnosis/visitorgate/internal/utils"
)

const (
	DefaultPreApprovalLimit = 10
	MinPasswordLength       = 6
)

// Role identifies which kind of account a session belongs to.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleHost  Role = "host"
	RoleGate  Role = "gate"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleHost, RoleGate:
		return Role(s), true
	default:
		return "", false
	}
}

// Identity is the verified caller of a request.
type Identity struct {
	Role Role
	ID   string
}

func (i Identity) IsHost() bool  { return i.Role == RoleHost }
func (i Identity) IsGate() bool  { return i.Role == RoleGate }
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

type Host struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Username          string    `json:"username"`
	PasswordHash      string    `json:"-"`
	Department        string    `json:"department,omitempty"`
	EmployeeID        string    `json:"employeeId,omitempty"`
	Contact           string    `json:"contact,omitempty"`
	PreApprovalLimit  int       `json:"preApprovalLimit"`
	VisitRequestQueue []string  `json:"visitRequestQueue"`
	PreApproved       []string  `json:"preApproved"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (h *Host) HasQueued(visitorID string) bool {
	return slices.Contains(h.VisitRequestQueue, visitorID)
}

type Gate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LoginID      string    `json:"loginId"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type AdminTier string

const (
	TierAdmin      AdminTier = "Admin"
	TierSuperAdmin AdminTier = "SuperAdmin"
)

type Admin struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Tier         AdminTier `json:"status,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type CreateHostRequest struct {
	Name       string `json:"name"`
	Department string `json:"department"`
	EmployeeID string `json:"employeeId"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Contact    string `json:"contact"`
}

func (r *CreateHostRequest) Normalize() {
	r.Name = utils.NormalizeString(r.Name)
	r.Department = utils.NormalizeString(r.Department)
	r.EmployeeID = utils.NormalizeString(r.EmployeeID)
	r.Username = utils.NormalizeString(r.Username)
	r.Contact = utils.NormalizePhone(r.Contact)
}

func (r *CreateHostRequest) Validate() error {
	if r.Name == "" || r.Username == "" || r.Password == "" {
		return Invalid("", "name, username, and password are required")
	}
	return validatePassword(r.Password)
}

type CreateGateRequest struct {
	Name     string `json:"name"`
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

func (r *CreateGateRequest) Normalize() {
	r.Name = utils.NormalizeString(r.Name)
	r.LoginID = utils.NormalizeString(r.LoginID)
}

func (r *CreateGateRequest) Validate() error {
	if r.Name == "" || r.LoginID == "" || r.Password == "" {
		return Invalid("", "name, login ID, and password are required")
	}
	return validatePassword(r.Password)
}

type CreateAdminRequest struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	Password string    `json:"password"`
	Tier     AdminTier `json:"status"`
}

func (r *CreateAdminRequest) Normalize() {
	r.Name = utils.NormalizeString(r.Name)
	r.Email = utils.NormalizeEmail(r.Email)
	r.Username = utils.NormalizeString(r.Username)
	if r.Tier == "" {
		r.Tier = TierAdmin
	}
}

func (r *CreateAdminRequest) Validate() error {
	if r.Name == "" || r.Username == "" || r.Password == "" {
		return Invalid("", "all fields are required")
	}
	if r.Tier != TierAdmin && r.Tier != TierSuperAdmin {
		return Invalid("status", fmt.Sprintf("must be %s or %s", TierAdmin, TierSuperAdmin))
	}
	if r.Email != "" && !utils.IsValidEmail(r.Email) {
		return Invalid("email", "invalid email format")
	}
	return validatePassword(r.Password)
}

// LoginRequest carries whichever login handle the role uses (username or loginId).
type LoginRequest struct {
	Username string `json:"username"`
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

func (r *LoginRequest) Handle() string {
	if r.Username != "" {
		return utils.NormalizeString(r.Username)
	}
	return utils.NormalizeString(r.LoginID)
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	Account   *AccountInfo `json:"account"`
}

type AccountInfo struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name"`
	// Login is the username for admins and hosts and the loginId for gates.
	Login string `json:"login"`
}

func validatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return Invalid("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	return nil
}
