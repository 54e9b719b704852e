package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/candidate-registry/internal/domain"
	"github.com/spec-kit/candidate-registry/internal/events"
	"github.com/spec-kit/candidate-registry/internal/repository"
)

// CandidateLoader fetches the committed row for a notification.
type CandidateLoader interface {
	GetByID(ctx context.Context, id string) (*domain.Candidate, error)
}

type notification struct {
	Op  string        `json:"op"`
	ID  string        `json:"id"`
	Row *candidateRow `json:"row"`
}

// candidateRow mirrors row_to_json(candidates).
type candidateRow struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	StudentID       string    `json:"student_id"`
	Semester        int       `json:"semester"`
	GPA             float64   `json:"gpa"`
	Gender          string    `json:"gender"`
	WhatsApp        string    `json:"whatsapp"`
	Email           string    `json:"email"`
	Experience      string    `json:"experience"`
	VisionMission   string    `json:"vision_mission"`
	PhotoURL        string    `json:"photo_url"`
	CertificateURLs []string  `json:"certificate_urls"`
	Status          string    `json:"status"`
	AdminNote       string    `json:"admin_note"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r candidateRow) toDomain() *domain.Candidate {
	return &domain.Candidate{
		ID:              r.ID,
		Name:            r.Name,
		StudentID:       r.StudentID,
		Semester:        r.Semester,
		GPA:             r.GPA,
		Gender:          r.Gender,
		WhatsApp:        r.WhatsApp,
		Email:           r.Email,
		Experience:      r.Experience,
		VisionMission:   r.VisionMission,
		PhotoURL:        r.PhotoURL,
		CertificateURLs: r.CertificateURLs,
		Status:          domain.CandidateStatus(r.Status),
		AdminNote:       r.AdminNote,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const reloadAttempts = 3

// Listener turns Postgres NOTIFY messages from the candidates trigger into
// change-feed events. Notifications on one connection arrive in commit order,
// so the per-candidate order of the feed follows the database.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	loader  CandidateLoader
	feed    events.ChangeFeed
	logger  *zap.Logger
	backoff time.Duration

	reloadDelay time.Duration
}

// NewListener builds a listener on channel.
func NewListener(pool *pgxpool.Pool, channel string, loader CandidateLoader, feed events.ChangeFeed, logger *zap.Logger) *Listener {
	return &Listener{
		pool:        pool,
		channel:     channel,
		loader:      loader,
		feed:        feed,
		logger:      logger,
		backoff:     time.Second,
		reloadDelay: 100 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled, reconnecting after connection failures.
func (l *Listener) Run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("change listener disconnected; reconnecting",
			zap.String("channel", l.channel), zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	l.logger.Info("listening for candidate changes", zap.String("channel", l.channel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handle(ctx, n.Payload)
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	var msg notification
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		l.logger.Warn("malformed change notification", zap.String("payload", payload), zap.Error(err))
		return
	}

	change := events.Change{CandidateID: msg.ID}
	switch msg.Op {
	case "DELETE":
		change.Kind = events.ChangeDeleted
		l.feed.Publish(change)
		return
	case "INSERT":
		change.Kind = events.ChangeCreated
	default:
		change.Kind = events.ChangeUpdated
	}

	if msg.Row != nil {
		change.Candidate = msg.Row.toDomain()
		l.feed.Publish(change)
		return
	}

	// Oversized rows arrive without a payload and are read back instead.
	candidate, err := l.reload(ctx, msg.ID)
	if err != nil {
		l.logger.Error("candidate change dropped",
			zap.String("candidate_id", msg.ID), zap.String("op", msg.Op), zap.Error(err))
		return
	}
	change.Candidate = candidate
	l.feed.Publish(change)
}

func (l *Listener) reload(ctx context.Context, id string) (*domain.Candidate, error) {
	var lastErr error
	for attempt := 0; attempt < reloadAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.reloadDelay):
			}
		}
		candidate, err := l.loader.GetByID(ctx, id)
		if err == nil {
			return candidate, nil
		}
		if errors.Is(err, context.Canceled) || repository.IsNotFound(err) {
			return nil, err
		}
		lastErr = err
		l.logger.Warn("reload changed candidate",
			zap.String("candidate_id", id), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, lastErr
}
