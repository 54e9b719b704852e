package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/candidate-registry/internal/domain"
)

// ProfileRepository defines persistence access for admin-panel accounts.
type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) error
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	GetByEmail(ctx context.Context, email string) (*domain.Profile, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a Postgres-backed implementation.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

func (r *profileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	const query = `
        INSERT INTO profiles (email, password_hash, role)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		strings.ToLower(profile.Email),
		profile.PasswordHash,
		profile.Role,
	).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
	return translate(err)
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	const query = `
        SELECT id, email, password_hash, role, created_at, updated_at
        FROM profiles WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *profileRepository) GetByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	const query = `
        SELECT id, email, password_hash, role, created_at, updated_at
        FROM profiles WHERE email=$1`
	return r.fetchSingle(ctx, query, strings.ToLower(email))
}

func (r *profileRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Profile, error) {
	var profile domain.Profile
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&profile.ID,
		&profile.Email,
		&profile.PasswordHash,
		&profile.Role,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

// MemoryProfileRepository is the in-process ProfileRepository.
type MemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

// NewMemoryProfileRepository builds an empty repository.
func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{profiles: make(map[string]domain.Profile)}
}

func (r *MemoryProfileRepository) Create(_ context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(profile.Email)
	for _, existing := range r.profiles {
		if existing.Email == email {
			return ErrDuplicate
		}
	}
	now := time.Now()
	profile.ID = uuid.NewString()
	profile.Email = email
	profile.CreatedAt = now
	profile.UpdatedAt = now
	r.profiles[profile.ID] = *profile
	return nil
}

func (r *MemoryProfileRepository) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &profile, nil
}

func (r *MemoryProfileRepository) GetByEmail(_ context.Context, email string) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email = strings.ToLower(email)
	for _, profile := range r.profiles {
		if profile.Email == email {
			p := profile
			return &p, nil
		}
	}
	return nil, ErrNotFound
}
