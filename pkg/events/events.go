// Package events defines the sync lifecycle events published for downstream consumers.
package events

import (
	"context"
	"time"
)

const (
	ImportStarted       = "import.started"
	ImportCompleted     = "import.completed"
	OrderExported       = "order.exported"
	OrderExportFailed   = "order.export_failed"
	StaleProductsMarked = "catalog.stale_marked"
)

// Event is one sync lifecycle notification.
type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	ProcessID  string         `json:"process_id,omitempty"`
	OwnerID    string         `json:"owner_id,omitempty"`
	OrderID    int64          `json:"order_id,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher delivers events. Publishing is best effort; callers log failures.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.Events = append(r.Events, event)
	return nil
}

// Types returns the types of the recorded events in order.
func (r *Recorder) Types() []string {
	types := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		types = append(types, e.Type)
	}
	return types
}
