package domain

type VisitorStatus string

const (
	StatusWaiting    VisitorStatus = "Waiting"
	StatusApproved   VisitorStatus = "Approved"
	StatusDeclined   VisitorStatus = "Declined"
	StatusCheckedIn  VisitorStatus = "Checked-in"
	StatusCheckedOut VisitorStatus = "Checked-out"
)

func ParseVisitorStatus(s string) (VisitorStatus, bool) {
	switch VisitorStatus(s) {
	case StatusWaiting, StatusApproved, StatusDeclined, StatusCheckedIn, StatusCheckedOut:
		return VisitorStatus(s), true
	default:
		return "", false
	}
}

// CanTransition reports whether a visitor may move from one status to another.
// Waiting -> Waiting is allowed so that approval requests can be re-sent.
func CanTransition(from, to VisitorStatus) bool {
	switch from {
	case StatusWaiting:
		return to == StatusWaiting || to == StatusApproved || to == StatusDeclined
	case StatusApproved:
		return to == StatusCheckedIn
	case StatusCheckedIn:
		return to == StatusCheckedOut
	default:
		return false
	}
}

// Transition returns to when the move is legal, or an InvalidStateError.
func Transition(from, to VisitorStatus) (VisitorStatus, error) {
	if !CanTransition(from, to) {
		return from, &InvalidStateError{Status: from}
	}
	return to, nil
}

// PriorStatuses lists every status from which to can be reached.
func PriorStatuses(to VisitorStatus) []VisitorStatus {
	var out []VisitorStatus
	for _, s := range []VisitorStatus{StatusWaiting, StatusApproved, StatusDeclined, StatusCheckedIn, StatusCheckedOut} {
		if CanTransition(s, to) {
			out = append(out, s)
		}
	}
	return out
}

func IsTerminal(s VisitorStatus) bool {
	return s == StatusDeclined || s == StatusCheckedOut
}
