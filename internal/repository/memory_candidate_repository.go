package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/events"
)

// MemoryCandidateRepository keeps candidates in process and publishes every
// committed write to the change feed. Used when no Postgres DSN is configured.
type MemoryCandidateRepository struct {
	mu         sync.RWMutex
	candidates map[string]domain.Candidate
	feed       events.ChangeFeed

	// FailWrites makes every mutating call return the error; tests use it to
	// exercise store rejections.
	FailWrites error
}

// NewMemoryCandidateRepository builds an empty repository. feed may be nil.
func NewMemoryCandidateRepository(feed events.ChangeFeed) *MemoryCandidateRepository {
	return &MemoryCandidateRepository{
		candidates: make(map[string]domain.Candidate),
		feed:       feed,
	}
}

var _ CandidateRepository = (*MemoryCandidateRepository)(nil)

func (r *MemoryCandidateRepository) Create(_ context.Context, candidate *domain.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return r.FailWrites
	}
	for _, existing := range r.candidates {
		if existing.StudentID == candidate.StudentID {
			return ErrDuplicate
		}
	}
	now := time.Now()
	candidate.ID = uuid.NewString()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now
	r.candidates[candidate.ID] = candidate.Clone()
	r.publish(events.ChangeCreated, candidate.ID, candidate)
	return nil
}

func (r *MemoryCandidateRepository) GetByID(_ context.Context, id string) (*domain.Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	candidate, ok := r.candidates[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := candidate.Clone()
	return &out, nil
}

func (r *MemoryCandidateRepository) UpdateProfile(_ context.Context, candidate *domain.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return r.FailWrites
	}
	current, ok := r.candidates[candidate.ID]
	if !ok {
		return ErrNotFound
	}
	for id, existing := range r.candidates {
		if id != candidate.ID && existing.StudentID == candidate.StudentID {
			return ErrDuplicate
		}
	}
	domain.CandidateProfileUpdate{
		Name:            candidate.Name,
		StudentID:       candidate.StudentID,
		Semester:        candidate.Semester,
		GPA:             candidate.GPA,
		Gender:          candidate.Gender,
		WhatsApp:        candidate.WhatsApp,
		Email:           candidate.Email,
		Experience:      candidate.Experience,
		VisionMission:   candidate.VisionMission,
		PhotoURL:        candidate.PhotoURL,
		CertificateURLs: candidate.CertificateURLs,
	}.Apply(&current)
	current.UpdatedAt = time.Now()
	candidate.UpdatedAt = current.UpdatedAt
	r.candidates[current.ID] = current
	r.publish(events.ChangeUpdated, current.ID, &current)
	return nil
}

func (r *MemoryCandidateRepository) UpdateStatus(_ context.Context, id string, status domain.CandidateStatus, note string) (*domain.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return nil, r.FailWrites
	}
	current, ok := r.candidates[id]
	if !ok {
		return nil, ErrNotFound
	}
	current.Status = status
	current.AdminNote = note
	current.UpdatedAt = time.Now()
	// Key by the stored id; callers may pass strings backed by reused buffers.
	r.candidates[current.ID] = current
	r.publish(events.ChangeUpdated, current.ID, &current)
	out := current.Clone()
	return &out, nil
}

func (r *MemoryCandidateRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return r.FailWrites
	}
	current, ok := r.candidates[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.candidates, current.ID)
	r.publish(events.ChangeDeleted, current.ID, nil)
	return nil
}

func (r *MemoryCandidateRepository) ListWithFilter(_ context.Context, filter CandidateFilter) ([]domain.Candidate, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	result := make([]domain.Candidate, 0, len(r.candidates))
	for _, candidate := range r.candidates {
		if matchesFilter(candidate, filter) {
			result = append(result, candidate.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		cmp := compareCandidates(result[i], result[j], filter.SortField)
		if cmp == 0 {
			return result[i].ID < result[j].ID
		}
		if filter.SortDesc {
			return cmp > 0
		}
		return cmp < 0
	})

	if filter.Offset >= len(result) {
		return []domain.Candidate{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(result) {
		end = len(result)
	}
	return result[filter.Offset:end], nil
}

func (r *MemoryCandidateRepository) Stats(_ context.Context) (*domain.CandidateStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &domain.CandidateStats{ByStatus: map[domain.CandidateStatus]int{}}
	var sum float64
	for _, candidate := range r.candidates {
		stats.Total++
		sum += candidate.GPA
		stats.ByStatus[candidate.Status]++
	}
	if stats.Total > 0 {
		stats.AverageGPA = sum / float64(stats.Total)
	}
	return stats, nil
}

// publish must be called with r.mu held so feed order matches commit order.
func (r *MemoryCandidateRepository) publish(kind events.ChangeKind, id string, candidate *domain.Candidate) {
	if r.feed == nil {
		return
	}
	change := events.Change{Kind: kind, CandidateID: id}
	if candidate != nil {
		snapshot := candidate.Clone()
		change.Candidate = &snapshot
	}
	r.feed.Publish(change)
}

func matchesFilter(c domain.Candidate, f CandidateFilter) bool {
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(c.Name), term) && !strings.Contains(strings.ToLower(c.Email), term) {
			return false
		}
	}
	if f.Semester != nil && c.Semester != *f.Semester {
		return false
	}
	if f.Gender != nil && c.Gender != *f.Gender {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if c.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func compareCandidates(a, b domain.Candidate, field string) int {
	switch field {
	case SortByName:
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case SortBySemester:
		return a.Semester - b.Semester
	case SortByGPA:
		switch {
		case a.GPA < b.GPA:
			return -1
		case a.GPA > b.GPA:
			return 1
		}
		return 0
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
