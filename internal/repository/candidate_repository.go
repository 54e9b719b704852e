package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/candidate-registry/internal/domain"
)

// Sortable candidate columns.
const (
	SortByName      = "name"
	SortBySemester  = "semester"
	SortByGPA       = "gpa"
	SortByCreatedAt = "created_at"
)

// CandidateFilter captures admin list parameters.
type CandidateFilter struct {
	SearchTerm *string
	Semester   *int
	Gender     *string
	Statuses   []domain.CandidateStatus
	SortField  string
	SortDesc   bool
	Limit      int
	Offset     int
}

// Normalize applies defaults and clamps paging values.
func (f CandidateFilter) Normalize() CandidateFilter {
	switch f.SortField {
	case SortByName, SortBySemester, SortByGPA, SortByCreatedAt:
	default:
		f.SortField = SortByCreatedAt
		f.SortDesc = true
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// CandidateRepository encapsulates candidate persistence.
type CandidateRepository interface {
	Create(ctx context.Context, candidate *domain.Candidate) error
	GetByID(ctx context.Context, id string) (*domain.Candidate, error)
	UpdateProfile(ctx context.Context, candidate *domain.Candidate) error
	// UpdateStatus writes status and admin note in one atomic statement.
	UpdateStatus(ctx context.Context, id string, status domain.CandidateStatus, note string) (*domain.Candidate, error)
	Delete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter CandidateFilter) ([]domain.Candidate, error)
	Stats(ctx context.Context) (*domain.CandidateStats, error)
}

type candidateRepository struct {
	pool *pgxpool.Pool
}

// NewCandidateRepository instantiates repository.
func NewCandidateRepository(pool *pgxpool.Pool) CandidateRepository {
	return &candidateRepository{pool: pool}
}

const candidateColumns = `id, name, student_id, semester, gpa, gender, whatsapp, email,
               experience, vision_mission, photo_url, certificate_urls, status, admin_note,
               created_at, updated_at`

func (r *candidateRepository) Create(ctx context.Context, candidate *domain.Candidate) error {
	const query = `
        INSERT INTO candidates (name, student_id, semester, gpa, gender, whatsapp, email,
            experience, vision_mission, photo_url, certificate_urls, status, admin_note)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		candidate.Name,
		candidate.StudentID,
		candidate.Semester,
		candidate.GPA,
		candidate.Gender,
		candidate.WhatsApp,
		candidate.Email,
		candidate.Experience,
		candidate.VisionMission,
		candidate.PhotoURL,
		candidate.CertificateURLs,
		candidate.Status,
		candidate.AdminNote,
	).Scan(&candidate.ID, &candidate.CreatedAt, &candidate.UpdatedAt)
	return translate(err)
}

func (r *candidateRepository) GetByID(ctx context.Context, id string) (*domain.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE id=$1`
	candidate, err := scanCandidate(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return candidate, nil
}

func (r *candidateRepository) UpdateProfile(ctx context.Context, candidate *domain.Candidate) error {
	const query = `
        UPDATE candidates SET name=$1, student_id=$2, semester=$3, gpa=$4, gender=$5, whatsapp=$6,
            email=$7, experience=$8, vision_mission=$9, photo_url=$10, certificate_urls=$11, updated_at=NOW()
        WHERE id=$12
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		candidate.Name,
		candidate.StudentID,
		candidate.Semester,
		candidate.GPA,
		candidate.Gender,
		candidate.WhatsApp,
		candidate.Email,
		candidate.Experience,
		candidate.VisionMission,
		candidate.PhotoURL,
		candidate.CertificateURLs,
		candidate.ID,
	).Scan(&candidate.UpdatedAt)
	return translate(err)
}

func (r *candidateRepository) UpdateStatus(ctx context.Context, id string, status domain.CandidateStatus, note string) (*domain.Candidate, error) {
	query := `UPDATE candidates SET status=$1, admin_note=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING ` + candidateColumns
	candidate, err := scanCandidate(r.pool.QueryRow(ctx, query, status, note, id))
	if err != nil {
		return nil, translate(err)
	}
	return candidate, nil
}

func (r *candidateRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM candidates WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *candidateRepository) ListWithFilter(ctx context.Context, filter CandidateFilter) ([]domain.Candidate, error) {
	filter = filter.Normalize()
	clauses := []string{"1=1"}
	args := []any{}

	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(name) LIKE %s OR LOWER(email) LIKE %s)", placeholder, placeholder))
	}
	if filter.Semester != nil {
		args = append(args, *filter.Semester)
		clauses = append(clauses, fmt.Sprintf("semester=$%d", len(args)))
	}
	if filter.Gender != nil {
		args = append(args, *filter.Gender)
		clauses = append(clauses, fmt.Sprintf("gender=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	// SortField is whitelisted by Normalize.
	query := fmt.Sprintf(`SELECT %s FROM candidates WHERE %s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d`,
		candidateColumns, strings.Join(clauses, " AND "), filter.SortField, direction, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Candidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *candidate)
	}
	return result, rows.Err()
}

func (r *candidateRepository) Stats(ctx context.Context) (*domain.CandidateStats, error) {
	stats := &domain.CandidateStats{ByStatus: map[domain.CandidateStatus]int{}}
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(gpa), 0)::float8 FROM candidates`,
	).Scan(&stats.Total, &stats.AverageGPA); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM candidates GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.CandidateStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
	}
	return stats, rows.Err()
}

func scanCandidate(row pgx.Row) (*domain.Candidate, error) {
	var candidate domain.Candidate
	if err := row.Scan(
		&candidate.ID,
		&candidate.Name,
		&candidate.StudentID,
		&candidate.Semester,
		&candidate.GPA,
		&candidate.Gender,
		&candidate.WhatsApp,
		&candidate.Email,
		&candidate.Experience,
		&candidate.VisionMission,
		&candidate.PhotoURL,
		&candidate.CertificateURLs,
		&candidate.Status,
		&candidate.AdminNote,
		&candidate.CreatedAt,
		&candidate.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &candidate, nil
}
