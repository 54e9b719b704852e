package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/candidate-registry/internal/api/dto"
	"github.com/spec-kit/candidate-registry/internal/auth"
	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/events"
	"github.com/spec-kit/candidate-registry/internal/repository"
	"github.com/spec-kit/candidate-registry/internal/service"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

func actorFromContext(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor(), nil
}

func statusResponse(view service.StatusView) dto.CandidateStatusResponse {
	return dto.CandidateStatusResponse{
		ID:         view.ID,
		Name:       view.Name,
		Status:     view.Status,
		AdminNote:  view.AdminNote,
		Progress:   view.Progress,
		Terminal:   view.Terminal,
		Successful: view.Successful,
		CreatedAt:  view.CreatedAt,
		UpdatedAt:  view.UpdatedAt,
	}
}

func candidateResponse(c *domain.Candidate) dto.CandidateResponse {
	certs := c.CertificateURLs
	if certs == nil {
		certs = []string{}
	}
	return dto.CandidateResponse{
		ID:              c.ID,
		Name:            c.Name,
		StudentID:       c.StudentID,
		Semester:        c.Semester,
		GPA:             c.GPA,
		Gender:          c.Gender,
		WhatsApp:        c.WhatsApp,
		Email:           c.Email,
		Experience:      c.Experience,
		VisionMission:   c.VisionMission,
		PhotoURL:        c.PhotoURL,
		CertificateURLs: certs,
		Status:          c.Status,
		AdminNote:       c.AdminNote,
		Progress:        domain.Progress(c.Status),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func historyResponse(entry domain.StatusHistory) dto.StatusHistoryResponse {
	return dto.StatusHistoryResponse{
		ID:          entry.ID,
		OldStatus:   entry.OldStatus,
		NewStatus:   entry.NewStatus,
		Note:        entry.Note,
		ChangedByID: entry.ChangedByID,
		CreatedAt:   entry.CreatedAt,
	}
}

func changeEvent(change events.Change) dto.CandidateChangeEvent {
	event := dto.CandidateChangeEvent{
		ID:          change.ID,
		Kind:        string(change.Kind),
		CandidateID: change.CandidateID,
		Timestamp:   change.Timestamp,
	}
	if change.Candidate != nil {
		resp := candidateResponse(change.Candidate)
		event.Candidate = &resp
	}
	return event
}

func parseCandidateFilter(c *fiber.Ctx) (repository.CandidateFilter, error) {
	var filter repository.CandidateFilter
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	if raw := c.Query("semester"); raw != "" {
		semester, err := strconv.Atoi(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid semester", map[string]any{"semester": raw})
		}
		filter.Semester = &semester
	}
	if gender := strings.ToLower(strings.TrimSpace(c.Query("gender"))); gender != "" {
		filter.Gender = &gender
	}
	if statuses := c.Query("status"); statuses != "" {
		for _, part := range strings.Split(statuses, ",") {
			status, ok := domain.ParseCandidateStatus(part)
			if !ok {
				return filter, apperrors.NewValidationError("unknown status filter", map[string]any{"status": part})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if sortBy := c.Query("sort"); sortBy != "" {
		filter.SortField = strings.TrimPrefix(sortBy, "-")
		filter.SortDesc = strings.HasPrefix(sortBy, "-")
		if order := c.Query("order"); order != "" {
			filter.SortDesc = strings.EqualFold(order, "desc")
		}
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}
