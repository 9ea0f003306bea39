package notifications

import (
	"context"
	"log/slog"

	"memsweep/internal/logging"
	"memsweep/internal/scheduler"
)

// Reporter forwards scheduler outcomes to a Service.
type Reporter struct {
	svc    Service
	logger *slog.Logger
}

// NewReporter adapts svc to scheduler.Reporter.
func NewReporter(svc Service, logger *slog.Logger) *Reporter {
	return &Reporter{svc: svc, logger: logging.NewComponentLogger(logger, "notifications")}
}

func (r *Reporter) ReportOutcome(ctx context.Context, outcome scheduler.Outcome) {
	if r == nil || r.svc == nil {
		return
	}
	if err := r.svc.NotifyCleanCompleted(context.WithoutCancel(ctx), outcome); err != nil {
		logging.WarnWithContext(r.logger, "clean notification failed", "notification_failed",
			logging.String(logging.FieldPassID, outcome.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy_topic and network connectivity"),
			logging.String(logging.FieldImpact, "pass result not pushed"),
		)
	}
}
