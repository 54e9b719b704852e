package worker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/candidate-registry/internal/events"
	"github.com/spec-kit/candidate-registry/internal/observability"
)

// ChangeWorker follows the whole candidate feed and records each change in
// the logs and metrics.
type ChangeWorker struct {
	feed    events.ChangeFeed
	logger  *zap.Logger
	metrics *observability.Metrics

	mu  sync.Mutex
	sub *events.Subscription
}

// NewChangeWorker creates the worker.
func NewChangeWorker(feed events.ChangeFeed, logger *zap.Logger, metrics *observability.Metrics) *ChangeWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeWorker{feed: feed, logger: logger, metrics: metrics}
}

// Start subscribes to the feed. Calling it twice is a no-op.
func (w *ChangeWorker) Start() {
	if w == nil || w.feed == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub != nil {
		return
	}
	w.sub = w.feed.SubscribeAll(w.handle)
}

// Stop releases the subscription.
func (w *ChangeWorker) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	sub := w.sub
	w.sub = nil
	w.mu.Unlock()
	sub.Release()
}

func (w *ChangeWorker) handle(change events.Change) {
	fields := []zap.Field{
		zap.String("change_id", change.ID),
		zap.String("kind", string(change.Kind)),
		zap.String("candidate_id", change.CandidateID),
	}
	if change.Candidate != nil {
		fields = append(fields, zap.String("status", string(change.Candidate.Status)))
	}
	w.logger.Info("candidate change", fields...)
	w.metrics.RecordChange(string(change.Kind))
}
