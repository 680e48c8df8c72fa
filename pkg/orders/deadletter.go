package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrDeadLetterNotFound is returned when a dead letter id is unknown.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// DeadLetter is an order export that failed and waits for a manual retry.
type DeadLetter struct {
	// ID is assigned by the store.
	ID        string    `json:"id"`
	OrderID   int64     `json:"order_id"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// DeadLetterStore keeps failed exports.
type DeadLetterStore interface {
	Add(ctx context.Context, entry *DeadLetter) (string, error)
	List(ctx context.Context, count int64) ([]DeadLetter, error)
	Get(ctx context.Context, id string) (*DeadLetter, error)
	Delete(ctx context.Context, id string) error
}

// SetDeadLetters makes failed exports land in store. Without one they are only
// logged and noted on the order.
func (e *Exporter) SetDeadLetters(store DeadLetterStore) {
	e.deadLetters = store
}

// DeadLetters returns the newest count failed exports.
func (e *Exporter) DeadLetters(ctx context.Context, count int64) ([]DeadLetter, error) {
	if e.deadLetters == nil {
		return []DeadLetter{}, nil
	}
	return e.deadLetters.List(ctx, count)
}

// RetryDeadLetter exports the entry's order again. The entry is removed once the
// order is in the ERP; a failed retry leaves it and records a new one.
func (e *Exporter) RetryDeadLetter(ctx context.Context, id string) (*ExportOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "Exporter.RetryDeadLetter")
	defer span.End()

	if e.deadLetters == nil {
		return nil, ErrDeadLetterNotFound
	}
	entry, err := e.deadLetters.Get(ctx, id)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeadLetterNotFound, id)
	}

	outcome, err := e.Export(ctx, entry.OrderID)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	if outcome.Status == StatusExported || outcome.Status == StatusAlreadyExported {
		if err := e.deadLetters.Delete(ctx, id); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("dead_letter_id", id).Warn("Failed to remove retried dead letter")
		}
	}
	return outcome, nil
}

func (e *Exporter) deadLetter(ctx context.Context, orderID int64, outcome *ExportOutcome, err error) {
	if e.deadLetters == nil {
		return
	}

	entry := &DeadLetter{
		OrderID:   orderID,
		Stage:     "export",
		Error:     err.Error(),
		Attempts:  outcome.Attempts,
		CreatedAt: e.now().UTC(),
	}
	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		entry.Stage = exportErr.Stage
	}

	if _, addErr := e.deadLetters.Add(ctx, entry); addErr != nil {
		e.logger.WithContext(ctx).WithError(addErr).WithField("order_id", orderID).Error("Failed to record failed export")
	}
}
