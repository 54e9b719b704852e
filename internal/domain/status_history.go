package domain

import "time"

// StatusHistory is an immutable audit entry for one committed transition.
type StatusHistory struct {
	ID          string
	CandidateID string
	OldStatus   CandidateStatus
	NewStatus   CandidateStatus
	Note        string
	ChangedByID string
	CreatedAt   time.Time
}
