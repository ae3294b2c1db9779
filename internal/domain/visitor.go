package domain

import (
	"strings"
	"time"

	"github.com/diagnosis/visitorgate/internal/utils"
)

// BadgeTimeLayout is how badge issue times are rendered on the printed badge.
const BadgeTimeLayout = "2006-01-02 15:04"

type Badge struct {
	QRCode   string    `json:"qrCode"`
	IssuedAt time.Time `json:"issuedAt"`
}

type Visitor struct {
	ID                  string        `json:"id"`
	FullName            string        `json:"fullname"`
	Email               string        `json:"email,omitempty"`
	Contact             string        `json:"contact,omitempty"`
	Purpose             string        `json:"purpose"`
	Organisation        string        `json:"organisation,omitempty"`
	EmployeeID          string        `json:"employeeId,omitempty"`
	Photo               string        `json:"photo,omitempty"`
	HostID              string        `json:"hostEmployee"`
	GateID              *string       `json:"gateId,omitempty"`
	Status              VisitorStatus `json:"status"`
	CheckIn             *time.Time    `json:"checkIn,omitempty"`
	CheckOut            *time.Time    `json:"checkOut,omitempty"`
	PreApproved         bool          `json:"preApproved"`
	ExpectedCheckInFrom *time.Time    `json:"expectedCheckInFrom,omitempty"`
	ExpectedCheckInTo   *time.Time    `json:"expectedCheckInTo,omitempty"`
	Badge               *Badge        `json:"badge,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// HostRef is the part of a host shown next to a visitor in listings.
type HostRef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
}

// VisitorWithHost carries a visitor with its host resolved. Host is nil
// when the host record no longer exists.
type VisitorWithHost struct {
	Visitor
	Host *HostRef `json:"host"`
}

func (v *Visitor) HasBadge() bool {
	return v.Badge != nil && v.Badge.QRCode != ""
}

func (v *Visitor) BelongsTo(hostID string) bool {
	return v.HostID != "" && v.HostID == hostID
}

// WithinWindow reports whether now falls inside [from, to]. Visitors that were
// not pre-approved have no window and always pass.
func (v *Visitor) WithinWindow(now time.Time) bool {
	if !v.PreApproved {
		return true
	}
	if v.ExpectedCheckInFrom == nil || v.ExpectedCheckInTo == nil {
		return false
	}
	return !now.Before(*v.ExpectedCheckInFrom) && !now.After(*v.ExpectedCheckInTo)
}

// VisitorProfile is the personal data supplied when a visitor is registered.
type VisitorProfile struct {
	FullName     string `json:"fullname"`
	Email        string `json:"email"`
	Contact      string `json:"contact"`
	Purpose      string `json:"purpose"`
	Organisation string `json:"organisation"`
	EmployeeID   string `json:"employeeId"`
	Photo        string `json:"photo"`
}

func (p *VisitorProfile) Normalize() {
	p.FullName = utils.NormalizeString(p.FullName)
	p.Email = utils.NormalizeEmail(p.Email)
	p.Contact = utils.NormalizePhone(p.Contact)
	p.Purpose = utils.NormalizeString(p.Purpose)
	p.Organisation = utils.NormalizeString(p.Organisation)
	p.EmployeeID = utils.NormalizeString(p.EmployeeID)
	p.Photo = strings.TrimSpace(p.Photo)
}

// Validate checks the fields every visitor needs. Gate-originated visitors must
// also carry a photo.
func (p *VisitorProfile) Validate(requirePhoto bool) error {
	if p.FullName == "" {
		return Invalid("fullname", "is required")
	}
	if p.Purpose == "" {
		return Invalid("purpose", "is required")
	}
	if requirePhoto && p.Photo == "" {
		return Invalid("photo", "is required")
	}
	if p.Email == "" && p.Contact == "" {
		return Invalid("", "either email or contact is required")
	}
	return p.validateFormats()
}

// ValidatePreApproval checks a host-entered visitor. Contact details are
// optional there but must be well formed when given.
func (p *VisitorProfile) ValidatePreApproval() error {
	if p.FullName == "" {
		return Invalid("fullname", "is required")
	}
	if p.Purpose == "" {
		return Invalid("purpose", "is required")
	}
	return p.validateFormats()
}

func (p *VisitorProfile) validateFormats() error {
	if p.Email != "" && !utils.IsValidEmail(p.Email) {
		return Invalid("email", "invalid email format")
	}
	if p.Contact != "" && !utils.IsValidPhone(p.Contact) {
		return Invalid("contact", "invalid contact number")
	}
	return nil
}

// CheckInWindow is the time range a pre-approved visitor is expected to arrive in.
type CheckInWindow struct {
	From time.Time `json:"expectedCheckInFrom"`
	To   time.Time `json:"expectedCheckInTo"`
}

func (w CheckInWindow) Validate() error {
	if w.From.IsZero() {
		return Invalid("expectedCheckInFrom", "is required")
	}
	if w.To.IsZero() {
		return Invalid("expectedCheckInTo", "is required")
	}
	if w.To.Before(w.From) {
		return Invalid("expectedCheckInTo", "must not be before expectedCheckInFrom")
	}
	return nil
}

// DayBounds returns the first and last millisecond of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}

// BadgeData is what the front desk prints on a visitor badge.
type BadgeData struct {
	FullName string `json:"fullname"`
	Host     string `json:"host"`
	Purpose  string `json:"purpose"`
	Time     string `json:"time"`
	Photo    string `json:"photo,omitempty"`
	QRCode   string `json:"qrCode"`
}

func NewBadgeData(v *Visitor, hostName string, loc *time.Location) BadgeData {
	if hostName == "" {
		hostName = "N/A"
	}
	if loc == nil {
		loc = time.Local
	}
	bd := BadgeData{
		FullName: v.FullName,
		Host:     hostName,
		Purpose:  v.Purpose,
		Photo:    v.Photo,
	}
	if v.Badge != nil {
		bd.QRCode = v.Badge.QRCode
		bd.Time = v.Badge.IssuedAt.In(loc).Format(BadgeTimeLayout)
	}
	return bd
}
