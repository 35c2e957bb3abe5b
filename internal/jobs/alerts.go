package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// AlertFunc receives failed or panicked jobs for external alerting.
type AlertFunc func(ctx context.Context, job *rivertype.JobRow, err error)

// AlertingErrorHandler logs and forwards job failures. A delivery that
// exhausts its retries should not go unnoticed when webhook consumers or
// the certificate gateway depend on it. Failure counts come from the
// metrics hook, not here.
type AlertingErrorHandler struct {
	Logger *slog.Logger
	Notify AlertFunc
}

func NewAlertingErrorHandler(logger *slog.Logger, notify AlertFunc) *AlertingErrorHandler {
	return &AlertingErrorHandler{Logger: logger, Notify: notify}
}

func (h *AlertingErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.report(ctx, job, err, "")
	return nil
}

func (h *AlertingErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.report(ctx, job, fmt.Errorf("panic: %v", panicVal), trace)
	return nil
}

func (h *AlertingErrorHandler) report(ctx context.Context, job *rivertype.JobRow, err error, trace string) {
	if h.Logger != nil {
		args := []any{"job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", err}
		if trace != "" {
			args = append(args, "trace", trace)
		}
		h.Logger.Error("job failed", args...)
	}
	if h.Notify != nil {
		h.Notify(ctx, job, err)
	}
}
