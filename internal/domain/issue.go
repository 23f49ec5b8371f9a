package domain

import "time"

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "pending"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
)

// Issue is the subset of a support ticket the chat subsystem reads.
type Issue struct {
	ID           int64
	OwnerID      int64
	TechnicianID *int64
	Title        string
	Status       IssueStatus
	CreatedAt    time.Time
}

// AssignedTo reports whether the issue is assigned to the given technician.
func (i *Issue) AssignedTo(technicianID int64) bool {
	return i.TechnicianID != nil && *i.TechnicianID == technicianID
}
