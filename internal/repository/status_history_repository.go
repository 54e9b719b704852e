package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/candidate-registry/internal/domain"
)

// StatusHistoryRepository stores transition audit entries.
type StatusHistoryRepository interface {
	Create(ctx context.Context, entry *domain.StatusHistory) error
	ListByCandidate(ctx context.Context, candidateID string) ([]domain.StatusHistory, error)
}

type statusHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewStatusHistoryRepository builds repository.
func NewStatusHistoryRepository(pool *pgxpool.Pool) StatusHistoryRepository {
	return &statusHistoryRepository{pool: pool}
}

func (r *statusHistoryRepository) Create(ctx context.Context, entry *domain.StatusHistory) error {
	const query = `
        INSERT INTO candidate_status_history (candidate_id, old_status, new_status, note, changed_by_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.CandidateID,
		entry.OldStatus,
		entry.NewStatus,
		entry.Note,
		entry.ChangedByID,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *statusHistoryRepository) ListByCandidate(ctx context.Context, candidateID string) ([]domain.StatusHistory, error) {
	const query = `
        SELECT id, candidate_id, old_status, new_status, note, changed_by_id, created_at
        FROM candidate_status_history WHERE candidate_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusHistory
	for rows.Next() {
		var entry domain.StatusHistory
		if err := rows.Scan(
			&entry.ID,
			&entry.CandidateID,
			&entry.OldStatus,
			&entry.NewStatus,
			&entry.Note,
			&entry.ChangedByID,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// MemoryStatusHistoryRepository is the in-process StatusHistoryRepository.
type MemoryStatusHistoryRepository struct {
	mu      sync.RWMutex
	entries map[string][]domain.StatusHistory
}

// NewMemoryStatusHistoryRepository builds an empty repository.
func NewMemoryStatusHistoryRepository() *MemoryStatusHistoryRepository {
	return &MemoryStatusHistoryRepository{entries: make(map[string][]domain.StatusHistory)}
}

func (r *MemoryStatusHistoryRepository) Create(_ context.Context, entry *domain.StatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.entries[entry.CandidateID] = append(r.entries[entry.CandidateID], *entry)
	return nil
}

func (r *MemoryStatusHistoryRepository) ListByCandidate(_ context.Context, candidateID string) ([]domain.StatusHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.StatusHistory(nil), r.entries[candidateID]...), nil
}
