package handlers

import (
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/spec-kit/candidate-registry/internal/api/dto"
	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/observability"
	"github.com/spec-kit/candidate-registry/internal/service"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

// CandidatesHandler serves the public registration and tracking endpoints.
type CandidatesHandler struct {
	candidates *service.CandidateService
	lifecycle  *service.LifecycleService
	metrics    *observability.Metrics
}

// NewCandidatesHandler constructs handler.
func NewCandidatesHandler(candidates *service.CandidateService, lifecycle *service.LifecycleService, metrics *observability.Metrics) *CandidatesHandler {
	return &CandidatesHandler{candidates: candidates, lifecycle: lifecycle, metrics: metrics}
}

// Register POST /candidates (multipart/form-data).
func (h *CandidatesHandler) Register(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return apperrors.NewValidationError("multipart form required", nil)
	}

	value := func(key string) string {
		if vals := form.Value[key]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	input := service.RegistrationInput{
		Name:          value("name"),
		StudentID:     value("student_id"),
		Gender:        value("gender"),
		WhatsApp:      value("whatsapp"),
		Email:         value("email"),
		Experience:    value("experience"),
		VisionMission: value("vision_mission"),
	}

	details := map[string]any{}
	if input.Semester, err = strconv.Atoi(strings.TrimSpace(value("semester"))); err != nil {
		details["semester"] = "must be a number"
	}
	if input.GPA, err = strconv.ParseFloat(strings.Replace(strings.TrimSpace(value("gpa")), ",", ".", 1), 64); err != nil {
		details["gpa"] = "must be a number"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid registration", details)
	}

	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	open := func(fh *multipart.FileHeader) (service.Upload, error) {
		f, err := fh.Open()
		if err != nil {
			return service.Upload{}, apperrors.NewValidationError("unreadable upload", map[string]any{"file": fh.Filename})
		}
		opened = append(opened, f)
		return service.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
			Reader:      f,
		}, nil
	}

	if photos := form.File["photo"]; len(photos) > 0 {
		upload, err := open(photos[0])
		if err != nil {
			return err
		}
		input.Photo = &upload
	}
	for _, fh := range form.File["certificates"] {
		upload, err := open(fh)
		if err != nil {
			return err
		}
		input.Certificates = append(input.Certificates, upload)
	}

	candidate, err := h.candidates.Register(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.RegisterCandidateResponse{
		ID:           candidate.ID,
		Status:       candidate.Status,
		TrackingPath: "/candidates/" + candidate.ID + "/status",
	}})
}

// Status GET /candidates/:id/status.
func (h *CandidatesHandler) Status(c *fiber.Ctx) error {
	view, err := h.candidates.GetStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": statusResponse(*view)})
}

// StatusStream GET /candidates/:id/status/stream. Sends the current status,
// then one event per committed change until the client disconnects.
func (h *CandidatesHandler) StatusStream(c *fiber.Ctx) error {
	// The stream outlives this ctx, so the id must not alias its buffer.
	id := utils.CopyString(c.Params("id"))
	queue := newEventQueue()

	// Subscribe before reading so no change between the read and the
	// subscription is lost; a duplicate is harmless.
	sub, err := h.lifecycle.Subscribe(id, func(candidate domain.Candidate) {
		queue.offer(sseEvent{Name: "status", Data: statusResponse(service.NewStatusView(candidate))})
	})
	if err != nil {
		return err
	}
	view, err := h.candidates.GetStatus(c.UserContext(), id)
	if err != nil {
		sub.Release()
		return err
	}

	h.metrics.StreamOpened()
	first := sseEvent{Name: "status", Data: statusResponse(*view)}
	streamEvents(c, &first, queue, sub.Done(), func() {
		sub.Release()
		h.metrics.StreamClosed()
	})
	return nil
}
