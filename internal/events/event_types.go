package events

import (
	"time"

	"github.com/spec-kit/candidate-registry/internal/domain"
)

// ChangeKind enumerates row-level change types on the candidates table.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change is one committed write observed on the candidates table.
type Change struct {
	ID          string            `json:"id"`
	Kind        ChangeKind        `json:"kind"`
	CandidateID string            `json:"candidate_id"`
	Candidate   *domain.Candidate `json:"candidate,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Handler receives changes. It runs on the subscription's own goroutine and
// must not block indefinitely.
type Handler func(Change)

// ChangeFeed fans committed changes out to per-candidate and table-wide subscribers.
type ChangeFeed interface {
	Publish(change Change)
	Subscribe(candidateID string, handler Handler) *Subscription
	SubscribeAll(handler Handler) *Subscription
	Close()
}
