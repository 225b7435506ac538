package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/fsmlink/pkg/domain"
)

// LoggingHooks returns hooks that write an audit line per engine event.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(ctx context.Context, e *domain.StateEvent) {
			logger.InfoContext(ctx, "state_enter", "machine", e.Machine, "state", e.State)
		},
		OnStateExit: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_exit", "machine", e.Machine, "state", e.State)
		},
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.InfoContext(ctx, "transition",
				"machine", e.Machine,
				"from", e.Def.Source,
				"to", e.Def.Target,
				"label", e.Def.Label(),
			)
		},
		OnScriptError: func(ctx context.Context, e *domain.ScriptError) {
			logger.WarnContext(ctx, "script_error", "kind", e.Kind, "element", e.Element, "error", e.Err)
		},
	}
}

// CombineHooks calls every non-nil callback of each hook set, in order.
func CombineHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		h := h
		if h.OnStateEnter != nil {
			prev := out.OnStateEnter
			out.OnStateEnter = func(ctx context.Context, e *domain.StateEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnStateEnter(ctx, e)
			}
		}
		if h.OnStateExit != nil {
			prev := out.OnStateExit
			out.OnStateExit = func(ctx context.Context, e *domain.StateEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnStateExit(ctx, e)
			}
		}
		if h.OnTransition != nil {
			prev := out.OnTransition
			out.OnTransition = func(ctx context.Context, e *domain.TransitionEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnTransition(ctx, e)
			}
		}
		if h.OnScriptError != nil {
			prev := out.OnScriptError
			out.OnScriptError = func(ctx context.Context, e *domain.ScriptError) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnScriptError(ctx, e)
			}
		}
	}
	return out
}
