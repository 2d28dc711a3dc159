package domain

import (
	"context"
	"time"
)

// Mode names the way a unit was invoked.
type Mode string

const (
	ModeInvoke Mode = "invoke"
	ModeBatch  Mode = "batch"
	ModeStream Mode = "stream"
	ModeAsync  Mode = "async"
)

// EventType defines the category of the event.
type EventType string

const (
	EventUnitStart     EventType = "unit_start"
	EventUnitFinish    EventType = "unit_finish"
	EventHistoryAppend EventType = "history_append"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// UnitEvent represents the start or the end of a unit run.
type UnitEvent struct {
	EventBase
	Unit     string        `json:"unit"`
	Mode     Mode          `json:"mode"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// HistoryEvent is emitted after messages were committed to a session.
type HistoryEvent struct {
	EventBase
	SessionID string `json:"session_id"`
	Appended  int    `json:"appended"`
}

// LifecycleHooks defines callbacks for execution observability.
// Nil callbacks are skipped.
type LifecycleHooks struct {
	OnUnitStart     func(context.Context, *UnitEvent)
	OnUnitFinish    func(context.Context, *UnitEvent)
	OnHistoryAppend func(context.Context, *HistoryEvent)
}

// IsZero reports whether no callback is set.
func (h LifecycleHooks) IsZero() bool {
	return h.OnUnitStart == nil && h.OnUnitFinish == nil && h.OnHistoryAppend == nil
}

// ComposeHooks fans every callback out to each of hs in order.
func ComposeHooks(hs ...LifecycleHooks) LifecycleHooks {
	var active []LifecycleHooks
	for _, h := range hs {
		if !h.IsZero() {
			active = append(active, h)
		}
	}
	switch len(active) {
	case 0:
		return LifecycleHooks{}
	case 1:
		return active[0]
	}
	return LifecycleHooks{
		OnUnitStart: func(ctx context.Context, e *UnitEvent) {
			for _, h := range active {
				if h.OnUnitStart != nil {
					h.OnUnitStart(ctx, e)
				}
			}
		},
		OnUnitFinish: func(ctx context.Context, e *UnitEvent) {
			for _, h := range active {
				if h.OnUnitFinish != nil {
					h.OnUnitFinish(ctx, e)
				}
			}
		},
		OnHistoryAppend: func(ctx context.Context, e *HistoryEvent) {
			for _, h := range active {
				if h.OnHistoryAppend != nil {
					h.OnHistoryAppend(ctx, e)
				}
			}
		},
	}
}
