package service

import (
	"context"
	"errors"
	"io"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/events"
	"github.com/spec-kit/candidate-registry/internal/repository"
	"github.com/spec-kit/candidate-registry/internal/storage"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

const (
	photoFolder       = "photos"
	certificateFolder = "certificates"
)

// UploadLimits bounds registration attachments.
type UploadLimits struct {
	MaxPhotoBytes   int64
	MaxCertBytes    int64
	MaxCertificates int
}

// Upload is one file received with a registration.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// RegistrationInput describes the public registration form.
type RegistrationInput struct {
	Name          string
	StudentID     string
	Semester      int
	GPA           float64
	Gender        string
	WhatsApp      string
	Email         string
	Experience    string
	VisionMission string
	Photo         *Upload
	Certificates  []Upload
}

// StatusView is the public tracking projection of a candidate.
type StatusView struct {
	ID         string
	Name       string
	Status     domain.CandidateStatus
	AdminNote  string
	Progress   int
	Terminal   bool
	Successful bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewStatusView derives the tracking view from a candidate.
func NewStatusView(c domain.Candidate) StatusView {
	return StatusView{
		ID:         c.ID,
		Name:       c.Name,
		Status:     c.Status,
		AdminNote:  c.AdminNote,
		Progress:   domain.Progress(c.Status),
		Terminal:   domain.IsTerminal(c.Status),
		Successful: domain.IsSuccessful(c.Status),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// CandidateService handles registration and admin record management.
type CandidateService struct {
	candidates repository.CandidateRepository
	history    repository.StatusHistoryRepository
	blobs      storage.BlobStore
	feed       events.ChangeFeed
	roles      RoleResolver
	limits     UploadLimits
	logger     *zap.Logger
}

// CandidateDependencies bundles collaborators for candidate service.
type CandidateDependencies struct {
	CandidateRepo repository.CandidateRepository
	HistoryRepo   repository.StatusHistoryRepository
	Blobs         storage.BlobStore
	Feed          events.ChangeFeed
	Roles         RoleResolver
	Limits        UploadLimits
	Logger        *zap.Logger
}

// NewCandidateService constructs the service.
func NewCandidateService(deps CandidateDependencies) *CandidateService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CandidateService{
		candidates: deps.CandidateRepo,
		history:    deps.HistoryRepo,
		blobs:      deps.Blobs,
		feed:       deps.Feed,
		roles:      deps.Roles,
		limits:     deps.Limits,
		logger:     logger,
	}
}

// Register validates the form, stores attachments and creates the candidate
// in the submitted state.
func (s *CandidateService) Register(ctx context.Context, input RegistrationInput) (*domain.Candidate, error) {
	profile := normalizeProfile(domain.CandidateProfileUpdate{
		Name:          input.Name,
		StudentID:     input.StudentID,
		Semester:      input.Semester,
		GPA:           input.GPA,
		Gender:        input.Gender,
		WhatsApp:      input.WhatsApp,
		Email:         input.Email,
		Experience:    input.Experience,
		VisionMission: input.VisionMission,
	})
	details := validateProfile(profile)
	s.validateUploads(input, details)
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid registration", details)
	}

	var stored []string
	cleanup := func() {
		for _, url := range stored {
			if err := s.blobs.Delete(context.Background(), url); err != nil {
				s.logger.Warn("failed to remove orphaned upload", zap.String("url", url), zap.Error(err))
			}
		}
	}

	photoURL, err := s.storeUpload(ctx, photoFolder, *input.Photo, s.limits.MaxPhotoBytes)
	if err != nil {
		return nil, err
	}
	stored = append(stored, photoURL)
	profile.PhotoURL = photoURL

	for _, cert := range input.Certificates {
		url, err := s.storeUpload(ctx, certificateFolder, cert, s.limits.MaxCertBytes)
		if err != nil {
			cleanup()
			return nil, err
		}
		stored = append(stored, url)
		profile.CertificateURLs = append(profile.CertificateURLs, url)
	}

	candidate := &domain.Candidate{Status: domain.CandidateStatusSubmitted}
	profile.Apply(candidate)
	if err := s.candidates.Create(ctx, candidate); err != nil {
		cleanup()
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("student id already registered", map[string]any{"student_id": candidate.StudentID})
		}
		return nil, apperrors.NewPersistenceFailure(err)
	}

	s.logger.Info("candidate registered", zap.String("candidate_id", candidate.ID))
	return candidate, nil
}

// GetStatus returns the public tracking view. No authentication is required;
// the candidate id acts as the tracking code.
func (s *CandidateService) GetStatus(ctx context.Context, id string) (*StatusView, error) {
	candidate, err := loadCandidate(ctx, s.candidates, id)
	if err != nil {
		return nil, err
	}
	view := NewStatusView(*candidate)
	return &view, nil
}

// Get returns the full candidate record to an admin.
func (s *CandidateService) Get(ctx context.Context, id string, actor domain.Actor) (*domain.Candidate, error) {
	if err := requireAdmin(ctx, s.roles, actor); err != nil {
		return nil, err
	}
	return loadCandidate(ctx, s.candidates, id)
}

// UpdateProfile edits identity fields. Status and note only change through
// LifecycleService.RequestTransition.
func (s *CandidateService) UpdateProfile(ctx context.Context, id string, update domain.CandidateProfileUpdate, actor domain.Actor) (*domain.Candidate, error) {
	if err := requireAdmin(ctx, s.roles, actor); err != nil {
		return nil, err
	}
	candidate, err := loadCandidate(ctx, s.candidates, id)
	if err != nil {
		return nil, err
	}

	if update.PhotoURL == "" {
		update.PhotoURL = candidate.PhotoURL
	}
	if update.CertificateURLs == nil {
		update.CertificateURLs = candidate.CertificateURLs
	}
	update = normalizeProfile(update)
	if details := validateProfile(update); len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid candidate profile", details)
	}

	update.Apply(candidate)
	if err := s.candidates.UpdateProfile(ctx, candidate); err != nil {
		switch {
		case repository.IsNotFound(err):
			return nil, candidateNotFound(id)
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperrors.NewConflict("student id already registered", map[string]any{"student_id": candidate.StudentID})
		}
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return candidate, nil
}

// Delete removes a candidate and its uploaded files.
func (s *CandidateService) Delete(ctx context.Context, id string, actor domain.Actor) error {
	if err := requireAdmin(ctx, s.roles, actor); err != nil {
		return err
	}
	candidate, err := loadCandidate(ctx, s.candidates, id)
	if err != nil {
		return err
	}
	if err := s.candidates.Delete(ctx, candidate.ID); err != nil {
		if repository.IsNotFound(err) {
			return candidateNotFound(id)
		}
		return apperrors.NewPersistenceFailure(err)
	}

	urls := append([]string{candidate.PhotoURL}, candidate.CertificateURLs...)
	for _, url := range urls {
		if url == "" || s.blobs == nil {
			continue
		}
		if err := s.blobs.Delete(ctx, url); err != nil {
			s.logger.Warn("failed to remove candidate upload", zap.String("url", url), zap.Error(err))
		}
	}
	s.logger.Info("candidate deleted", zap.String("candidate_id", candidate.ID), zap.String("actor_id", actor.ID))
	return nil
}

// List returns candidates matching filter.
func (s *CandidateService) List(ctx context.Context, filter repository.CandidateFilter, actor domain.Actor) ([]domain.Candidate, error) {
	if err := requireAdmin(ctx, s.roles, actor); err != nil {
		return nil, err
	}
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("unknown status filter", map[string]any{"status": status})
		}
	}
	candidates, err := s.candidates.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return candidates, nil
}

// Stats returns dashboard aggregates.
func (s *CandidateService) Stats(ctx context.Context, actor domain.Actor) (*domain.CandidateStats, error) {
	if err := requireAdmin(ctx, s.roles, actor); err != nil {
		return nil, err
	}
	stats, err := s.candidates.Stats(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	for _, status := range domain.CandidateStatuses {
		if _, ok := stats.ByStatus[status]; !ok {
			stats.ByStatus[status] = 0
		}
	}
	return stats, nil
}

// History lists a candidate's transitions, oldest first.
func (s *CandidateService) History(ctx context.Context, id string, actor domain.Actor) ([]domain.StatusHistory, error) {
	if err := requireAdmin(ctx, s.roles, actor); err != nil {
		return nil, err
	}
	candidate, err := loadCandidate(ctx, s.candidates, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.ListByCandidate(ctx, candidate.ID)
	if err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return entries, nil
}

// WatchAll streams every candidate change to an admin.
func (s *CandidateService) WatchAll(ctx context.Context, actor domain.Actor, handler events.Handler) (*events.Subscription, error) {
	if err := requireAdmin(ctx, s.roles, actor); err != nil {
		return nil, err
	}
	return s.feed.SubscribeAll(handler), nil
}

func (s *CandidateService) validateUploads(input RegistrationInput, details map[string]any) {
	switch {
	case input.Photo == nil:
		details["photo"] = "required"
	case !strings.HasPrefix(strings.ToLower(input.Photo.ContentType), "image/"):
		details["photo"] = "must be an image"
	case s.limits.MaxPhotoBytes > 0 && input.Photo.Size > s.limits.MaxPhotoBytes:
		details["photo"] = "too large"
	}

	switch {
	case len(input.Certificates) == 0:
		details["certificates"] = "at least one certificate is required"
	case s.limits.MaxCertificates > 0 && len(input.Certificates) > s.limits.MaxCertificates:
		details["certificates"] = "too many files"
	default:
		for _, cert := range input.Certificates {
			if s.limits.MaxCertBytes > 0 && cert.Size > s.limits.MaxCertBytes {
				details["certificates"] = cert.Filename + " is too large"
				break
			}
		}
	}
}

func (s *CandidateService) storeUpload(ctx context.Context, folder string, upload Upload, limit int64) (string, error) {
	url, err := s.blobs.Store(ctx, folder, upload.Filename, upload.Reader, limit)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return "", apperrors.NewValidationError("upload too large", map[string]any{"file": upload.Filename})
		}
		return "", apperrors.NewPersistenceFailure(err)
	}
	return url, nil
}

func normalizeProfile(p domain.CandidateProfileUpdate) domain.CandidateProfileUpdate {
	p.Name = strings.TrimSpace(p.Name)
	p.StudentID = strings.TrimSpace(p.StudentID)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	p.WhatsApp = strings.TrimSpace(p.WhatsApp)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Experience = strings.TrimSpace(p.Experience)
	p.VisionMission = strings.TrimSpace(p.VisionMission)
	return p
}

func validateProfile(p domain.CandidateProfileUpdate) map[string]any {
	details := map[string]any{}
	required := map[string]string{
		"name":           p.Name,
		"student_id":     p.StudentID,
		"whatsapp":       p.WhatsApp,
		"email":          p.Email,
		"experience":     p.Experience,
		"vision_mission": p.VisionMission,
	}
	for field, value := range required {
		if value == "" {
			details[field] = "required"
		}
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			details["email"] = "invalid email address"
		}
	}
	if p.Semester < 1 || p.Semester > 8 {
		details["semester"] = "must be between 1 and 8"
	}
	if p.GPA < 0 || p.GPA > 4 {
		details["gpa"] = "must be between 0 and 4"
	}
	if p.Gender != domain.GenderMale && p.Gender != domain.GenderFemale {
		details["gender"] = "must be laki-laki or perempuan"
	}
	return details
}
