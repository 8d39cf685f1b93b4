// Package notify delivers alerts to the operator. Delivery is best-effort:
// alerts are persisted before dispatch, so a failed send is logged and the
// deterministic alert ID keeps a later retry from duplicating history.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

// Notifier dispatches one cycle's batch of alerts.
type Notifier interface {
	Dispatch(ctx context.Context, alerts []models.Alert) error
}

// LogNotifier writes alerts to the structured log. Always active; the CLI
// wraps it around any configured external channel.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier uses the given logger, falling back to the global one.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.L()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Dispatch(_ context.Context, alerts []models.Alert) error {
	for _, a := range alerts {
		fields := []zap.Field{
			zap.String("alert_id", a.ID.String()),
			zap.String("reason", string(a.Reason)),
			zap.String("source", a.SourceSystem),
			zap.String("title", a.Title),
			zap.Float64("priority", a.Score.Priority),
			zap.Float64("relevance", a.Score.Relevance),
		}
		if a.Deadline != nil {
			fields = append(fields, zap.Time("deadline", *a.Deadline))
		}
		n.log.Info("funding alert", fields...)
	}
	return nil
}

// Multi fans a batch out to several notifiers. Every notifier sees the
// batch; the first error is returned after all have run.
type Multi []Notifier

func (m Multi) Dispatch(ctx context.Context, alerts []models.Alert) error {
	var firstErr error
	for _, n := range m {
		if err := n.Dispatch(ctx, alerts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
