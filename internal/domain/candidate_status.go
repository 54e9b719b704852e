package domain

import "strings"

// CandidateStatus enumerates lifecycle states for candidates.
type CandidateStatus string

const (
	CandidateStatusSubmitted   CandidateStatus = "submitted"
	CandidateStatusUnderReview CandidateStatus = "underReview"
	CandidateStatusApproved    CandidateStatus = "approved"
	CandidateStatusRejected    CandidateStatus = "rejected"
)

// CandidateStatuses lists every status in nominal forward order.
var CandidateStatuses = []CandidateStatus{
	CandidateStatusSubmitted,
	CandidateStatusUnderReview,
	CandidateStatusApproved,
	CandidateStatusRejected,
}

// legacy values written by the first version of the registration form
var legacyStatuses = map[string]CandidateStatus{
	"terkirim":  CandidateStatusSubmitted,
	"diterima":  CandidateStatusUnderReview,
	"disetujui": CandidateStatusApproved,
	"ditolak":   CandidateStatusRejected,
}

var allowedTransitions = map[CandidateStatus][]CandidateStatus{
	CandidateStatusSubmitted:   {CandidateStatusUnderReview},
	CandidateStatusUnderReview: {CandidateStatusApproved, CandidateStatusRejected},
	CandidateStatusApproved:    {CandidateStatusUnderReview},
	CandidateStatusRejected:    {CandidateStatusUnderReview},
}

// ParseCandidateStatus normalizes a wire value, accepting legacy names.
func ParseCandidateStatus(raw string) (CandidateStatus, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range CandidateStatuses {
		if string(s) == raw {
			return s, true
		}
	}
	if s, ok := legacyStatuses[strings.ToLower(raw)]; ok {
		return s, true
	}
	return "", false
}

// Valid reports whether s belongs to the enumeration.
func (s CandidateStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to CandidateStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s CandidateStatus) []CandidateStatus {
	return append([]CandidateStatus(nil), allowedTransitions[s]...)
}

// Progress maps a status to its display percentage. Both terminal states
// report 100: the process is finished, whatever the outcome.
func Progress(s CandidateStatus) int {
	switch s {
	case CandidateStatusSubmitted:
		return 25
	case CandidateStatusUnderReview:
		return 50
	case CandidateStatusApproved, CandidateStatusRejected:
		return 100
	default:
		return 0
	}
}

// IsTerminal reports whether the review has reached a decision.
func IsTerminal(s CandidateStatus) bool {
	return s == CandidateStatusApproved || s == CandidateStatusRejected
}

// IsSuccessful reports whether the decision was favourable.
func IsSuccessful(s CandidateStatus) bool {
	return s == CandidateStatusApproved
}
