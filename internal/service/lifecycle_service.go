package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/events"
	"github.com/spec-kit/candidate-registry/internal/observability"
	"github.com/spec-kit/candidate-registry/internal/repository"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

// RoleResolver maps an actor to its access level.
type RoleResolver interface {
	ResolveRole(ctx context.Context, actor domain.Actor) (domain.Role, error)
}

// LifecycleService owns candidate status transitions and status subscriptions.
// It keeps no per-candidate state; everything lives in the repository.
type LifecycleService struct {
	candidates repository.CandidateRepository
	history    repository.StatusHistoryRepository
	feed       events.ChangeFeed
	roles      RoleResolver
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	CandidateRepo repository.CandidateRepository
	HistoryRepo   repository.StatusHistoryRepository
	Feed          events.ChangeFeed
	Roles         RoleResolver
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		candidates: deps.CandidateRepo,
		history:    deps.HistoryRepo,
		feed:       deps.Feed,
		roles:      deps.Roles,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// RequestTransition moves a candidate to target and overwrites its admin note
// in a single write. Failures carry one of the codes UNAUTHORIZED, NOT_FOUND,
// INVALID_TRANSITION or PERSISTENCE_FAILURE.
func (s *LifecycleService) RequestTransition(ctx context.Context, candidateID, target, note string, actor domain.Actor) (*domain.Candidate, error) {
	if err := requireAdmin(ctx, s.roles, actor); err != nil {
		s.metrics.RecordTransition("", target, observability.OutcomeRejected)
		return nil, err
	}

	current, err := loadCandidate(ctx, s.candidates, candidateID)
	if err != nil {
		return nil, err
	}

	next, ok := domain.ParseCandidateStatus(target)
	if !ok || !domain.CanTransition(current.Status, next) {
		s.metrics.RecordTransition(string(current.Status), target, observability.OutcomeRejected)
		return nil, apperrors.NewInvalidTransition(string(current.Status), target)
	}

	// Two admins racing on the same candidate resolve last-write-wins.
	updated, err := s.candidates.UpdateStatus(ctx, current.ID, next, note)
	if err != nil {
		s.metrics.RecordTransition(string(current.Status), string(next), observability.OutcomeFailed)
		if repository.IsNotFound(err) {
			return nil, candidateNotFound(candidateID)
		}
		s.logger.Error("candidate status write failed",
			zap.String("candidate_id", current.ID),
			zap.String("from", string(current.Status)),
			zap.String("to", string(next)),
			zap.Error(err))
		return nil, apperrors.NewPersistenceFailure(err)
	}

	s.recordHistory(ctx, current.ID, current.Status, next, note, actor)
	s.metrics.RecordTransition(string(current.Status), string(next), observability.OutcomeApplied)
	s.logger.Info("candidate status changed",
		zap.String("candidate_id", current.ID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next)),
		zap.String("actor_id", actor.ID))
	return updated, nil
}

// Subscribe invokes onChange with the full candidate after every committed
// write to candidateID. Deliveries for one candidate arrive in commit order
// and may repeat, so handlers should replace their state rather than apply
// deltas. Release on the returned handle is safe inside onChange.
// Malformed ids fail with NotFound since no record can ever carry them.
func (s *LifecycleService) Subscribe(candidateID string, onChange func(domain.Candidate)) (*events.Subscription, error) {
	if _, err := uuid.Parse(candidateID); err != nil {
		return nil, candidateNotFound(candidateID)
	}
	return s.feed.Subscribe(candidateID, func(change events.Change) {
		if change.Kind == events.ChangeDeleted || change.Candidate == nil {
			return
		}
		onChange(change.Candidate.Clone())
	}), nil
}

// Progress exposes the display percentage for status.
func (s *LifecycleService) Progress(status domain.CandidateStatus) int {
	return domain.Progress(status)
}

// The transition already committed, so a failed audit write is logged only.
func (s *LifecycleService) recordHistory(ctx context.Context, candidateID string, from, to domain.CandidateStatus, note string, actor domain.Actor) {
	if s.history == nil {
		return
	}
	entry := &domain.StatusHistory{
		CandidateID: candidateID,
		OldStatus:   from,
		NewStatus:   to,
		Note:        note,
		ChangedByID: actor.ID,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record status history",
			zap.String("candidate_id", candidateID), zap.Error(err))
	}
}

func requireAdmin(ctx context.Context, roles RoleResolver, actor domain.Actor) error {
	if roles == nil {
		return apperrors.NewUnauthorized("identity could not be verified")
	}
	role, err := roles.ResolveRole(ctx, actor)
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) && domainErr.Code == apperrors.CodeUnauthorized {
			return err
		}
		return apperrors.NewUnauthorized("identity could not be verified")
	}
	if role != domain.RoleAdmin {
		return apperrors.NewUnauthorized("admin role required")
	}
	return nil
}

func loadCandidate(ctx context.Context, candidates repository.CandidateRepository, id string) (*domain.Candidate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, candidateNotFound(id)
	}
	candidate, err := candidates.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, candidateNotFound(id)
		}
		return nil, apperrors.NewPersistenceFailure(err)
	}
	return candidate, nil
}

func candidateNotFound(id string) error {
	return apperrors.NewNotFound("candidate", map[string]any{"id": id})
}
