package dto

import (
	"time"

	"github.com/spec-kit/candidate-registry/internal/domain"
)

// RegisterCandidateResponse is returned after a public registration.
type RegisterCandidateResponse struct {
	ID           string                 `json:"id"`
	Status       domain.CandidateStatus `json:"status"`
	TrackingPath string                 `json:"tracking_path"`
}

// CandidateStatusResponse is the public tracking view.
type CandidateStatusResponse struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Status     domain.CandidateStatus `json:"status"`
	AdminNote  string                 `json:"admin_note"`
	Progress   int                    `json:"progress"`
	Terminal   bool                   `json:"terminal"`
	Successful bool                   `json:"successful"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// CandidateResponse is the full admin view of a candidate.
type CandidateResponse struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	StudentID       string                 `json:"student_id"`
	Semester        int                    `json:"semester"`
	GPA             float64                `json:"gpa"`
	Gender          string                 `json:"gender"`
	WhatsApp        string                 `json:"whatsapp"`
	Email           string                 `json:"email"`
	Experience      string                 `json:"experience"`
	VisionMission   string                 `json:"vision_mission"`
	PhotoURL        string                 `json:"photo_url"`
	CertificateURLs []string               `json:"certificate_urls"`
	Status          domain.CandidateStatus `json:"status"`
	AdminNote       string                 `json:"admin_note"`
	Progress        int                    `json:"progress"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// UpdateCandidateRequest edits identity fields. Omitted file fields keep
// their stored values.
type UpdateCandidateRequest struct {
	Name            string   `json:"name"`
	StudentID       string   `json:"student_id"`
	Semester        int      `json:"semester"`
	GPA             float64  `json:"gpa"`
	Gender          string   `json:"gender"`
	WhatsApp        string   `json:"whatsapp"`
	Email           string   `json:"email"`
	Experience      string   `json:"experience"`
	VisionMission   string   `json:"vision_mission"`
	PhotoURL        string   `json:"photo_url"`
	CertificateURLs []string `json:"certificate_urls"`
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// StatusHistoryResponse is one audit entry.
type StatusHistoryResponse struct {
	ID          string                 `json:"id"`
	OldStatus   domain.CandidateStatus `json:"old_status"`
	NewStatus   domain.CandidateStatus `json:"new_status"`
	Note        string                 `json:"note"`
	ChangedByID string                 `json:"changed_by_id"`
	CreatedAt   time.Time              `json:"created_at"`
}

// DashboardResponse summarizes the pool.
type DashboardResponse struct {
	Total      int            `json:"total"`
	AverageGPA float64        `json:"average_gpa"`
	ByStatus   map[string]int `json:"by_status"`
}

// CandidateChangeEvent is streamed to admin dashboards.
type CandidateChangeEvent struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	CandidateID string             `json:"candidate_id"`
	Candidate   *CandidateResponse `json:"candidate,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}
