package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/braid/pkg/domain"
)

// LogHooks logs every lifecycle event. Unit starts and successful finishes
// go to Debug, failures to Warn and history appends to Info.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnUnitStart: func(ctx context.Context, e *domain.UnitEvent) {
			logger.DebugContext(ctx, "unit_start", "unit", e.Unit, "mode", e.Mode)
		},
		OnUnitFinish: func(ctx context.Context, e *domain.UnitEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "unit_finish",
					"unit", e.Unit,
					"mode", e.Mode,
					"duration", e.Duration,
					"kind", domain.KindOf(e.Err),
					"err", e.Err,
				)
				return
			}
			logger.DebugContext(ctx, "unit_finish", "unit", e.Unit, "mode", e.Mode, "duration", e.Duration)
		},
		OnHistoryAppend: func(ctx context.Context, e *domain.HistoryEvent) {
			logger.InfoContext(ctx, "history_append", "session_id", e.SessionID, "appended", e.Appended)
		},
	}
}

// MultiHooks fans events out to each set of hooks in order.
func MultiHooks(hs ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.ComposeHooks(hs...)
}
