package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/candidate-registry/internal/api/dto"
	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/events"
	"github.com/spec-kit/candidate-registry/internal/observability"
	"github.com/spec-kit/candidate-registry/internal/service"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

// AdminCandidatesHandler serves admin record management and review.
type AdminCandidatesHandler struct {
	candidates *service.CandidateService
	lifecycle  *service.LifecycleService
	metrics    *observability.Metrics
}

// NewAdminCandidatesHandler constructs handler.
func NewAdminCandidatesHandler(candidates *service.CandidateService, lifecycle *service.LifecycleService, metrics *observability.Metrics) *AdminCandidatesHandler {
	return &AdminCandidatesHandler{candidates: candidates, lifecycle: lifecycle, metrics: metrics}
}

// List GET /admin/candidates.
func (h *AdminCandidatesHandler) List(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	filter, err := parseCandidateFilter(c)
	if err != nil {
		return err
	}
	candidates, err := h.candidates.List(c.UserContext(), filter, actor)
	if err != nil {
		return err
	}
	items := make([]dto.CandidateResponse, 0, len(candidates))
	for i := range candidates {
		items = append(items, candidateResponse(&candidates[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /admin/candidates/:id.
func (h *AdminCandidatesHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	candidate, err := h.candidates.Get(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": candidateResponse(candidate)})
}

// Update PUT /admin/candidates/:id.
func (h *AdminCandidatesHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.UpdateCandidateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	candidate, err := h.candidates.UpdateProfile(c.UserContext(), c.Params("id"), domain.CandidateProfileUpdate{
		Name:            req.Name,
		StudentID:       req.StudentID,
		Semester:        req.Semester,
		GPA:             req.GPA,
		Gender:          req.Gender,
		WhatsApp:        req.WhatsApp,
		Email:           req.Email,
		Experience:      req.Experience,
		VisionMission:   req.VisionMission,
		PhotoURL:        req.PhotoURL,
		CertificateURLs: req.CertificateURLs,
	}, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": candidateResponse(candidate)})
}

// Delete DELETE /admin/candidates/:id.
func (h *AdminCandidatesHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	if err := h.candidates.Delete(c.UserContext(), c.Params("id"), actor); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Transition POST /admin/candidates/:id/transitions.
func (h *AdminCandidatesHandler) Transition(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	candidate, err := h.lifecycle.RequestTransition(c.UserContext(), c.Params("id"), req.Status, req.Note, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": candidateResponse(candidate)})
}

// History GET /admin/candidates/:id/history.
func (h *AdminCandidatesHandler) History(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	entries, err := h.candidates.History(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	items := make([]dto.StatusHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, historyResponse(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Dashboard GET /admin/dashboard.
func (h *AdminCandidatesHandler) Dashboard(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	stats, err := h.candidates.Stats(c.UserContext(), actor)
	if err != nil {
		return err
	}
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}
	return c.JSON(fiber.Map{"data": dto.DashboardResponse{
		Total:      stats.Total,
		AverageGPA: stats.AverageGPA,
		ByStatus:   byStatus,
	}})
}

// Stream GET /admin/candidates/stream. Streams every change to the table.
func (h *AdminCandidatesHandler) Stream(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	queue := newEventQueue()
	sub, err := h.candidates.WatchAll(c.UserContext(), actor, func(change events.Change) {
		queue.offer(sseEvent{Name: string(change.Kind), Data: changeEvent(change)})
	})
	if err != nil {
		return err
	}

	h.metrics.StreamOpened()
	streamEvents(c, nil, queue, sub.Done(), func() {
		sub.Release()
		h.metrics.StreamClosed()
	})
	return nil
}
