package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/softone"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultMaxAttempts = 3
	// MaxRetryDelay caps the wait between transmission attempts.
	MaxRetryDelay = 30 * time.Second
	// DocumentObject is the ERP object sales documents are stored as.
	DocumentObject = "SALDOC"
)

// Export outcome statuses.
const (
	StatusExported        = "exported"
	StatusAlreadyExported = "already_exported"
	StatusFailed          = "failed"
	StatusSkipped         = "skipped"
)

// DefaultQualifyingStatuses are the order statuses that trigger an export.
var DefaultQualifyingStatuses = []string{"processing", "completed"}

// ERP is the subset of the SoftOne client the exporter uses.
type ERP interface {
	SqlData(ctx context.Context, sqlName string, params map[string]any) (*softone.SqlDataResponse, error)
	SetData(ctx context.Context, object, key string, data map[string]any) (*softone.SetDataResponse, error)
}

type Config struct {
	Series             string
	QualifyingStatuses []string
	MaxAttempts        int
	// CustomerLookupSQL is the SqlData query finding a customer by email. Empty disables the lookup.
	CustomerLookupSQL string
	// CountryCodes maps ISO country codes to ERP country ids.
	CountryCodes      map[string]string
	PaymentCodes      map[string]string
	ShipmentCode      string
	GuestCustomerCode string
}

// ExportOutcome reports what an export did.
type ExportOutcome struct {
	OrderID    int64  `json:"order_id"`
	Status     string `json:"status"`
	DocumentID string `json:"document_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Exporter sends store orders to the ERP as sales documents.
type Exporter struct {
	cfg       Config
	erp       ERP
	orders    platform.OrderRepository
	products  platform.ProductRepository
	customers platform.CustomerSync
	events    events.Publisher
	logger    ectologger.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	deadLetters DeadLetterStore
}

func NewExporter(cfg Config, erp ERP, orders platform.OrderRepository, products platform.ProductRepository, customers platform.CustomerSync, publisher events.Publisher, logger ectologger.Logger) *Exporter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if len(cfg.QualifyingStatuses) == 0 {
		cfg.QualifyingStatuses = DefaultQualifyingStatuses
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Exporter{
		cfg:       cfg,
		erp:       erp,
		orders:    orders,
		products:  products,
		customers: customers,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// HandleStatusTransition exports the order when it moves into a qualifying status.
func (e *Exporter) HandleStatusTransition(ctx context.Context, orderID int64, from, to string) (*ExportOutcome, error) {
	from, to = normalizeStatus(from), normalizeStatus(to)
	if from == to || !e.qualifies(to) {
		return &ExportOutcome{OrderID: orderID, Status: StatusSkipped}, nil
	}
	return e.Export(ctx, orderID)
}

func (e *Exporter) qualifies(status string) bool {
	for _, s := range e.cfg.QualifyingStatuses {
		if normalizeStatus(s) == status {
			return true
		}
	}
	return false
}

func normalizeStatus(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "wc-")
}

// Export sends the order to the ERP unless it already carries an export marker.
// Customer, payload and transmission failures are noted on the order and reported in
// the outcome; only load failures and configuration or authentication errors are
// returned.
func (e *Exporter) Export(ctx context.Context, orderID int64) (*ExportOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "Exporter.Export")
	defer span.End()

	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	outcome := &ExportOutcome{OrderID: orderID}
	if doc := order.MetaValue(platform.MetaDocumentID); doc != "" || order.MetaValue(platform.MetaExportedAt) != "" {
		outcome.Status = StatusAlreadyExported
		outcome.DocumentID = doc
		return outcome, nil
	}

	log := e.logger.WithContext(ctx).WithField("order_id", orderID)

	trdr, err := e.resolveCustomer(ctx, order)
	if err != nil {
		if !isRecoverable(err) {
			tracing.Fail(span, err)
			return nil, err
		}
		return e.fail(ctx, order, outcome, &ExportError{OrderID: orderID, Stage: "customer", Err: err}), nil
	}
	outcome.CustomerID = trdr

	payload, err := e.BuildDocumentPayload(ctx, order, trdr)
	if err != nil {
		if !isRecoverable(err) {
			tracing.Fail(span, err)
			return nil, err
		}
		return e.fail(ctx, order, outcome, &ExportError{OrderID: orderID, Stage: "payload", Err: err}), nil
	}

	docID, attempts, err := e.transmit(ctx, order, payload, e.cfg.MaxAttempts)
	outcome.Attempts = attempts
	if err != nil {
		if !isRecoverable(err) {
			tracing.Fail(span, err)
			return nil, err
		}
		return e.fail(ctx, order, outcome, err), nil
	}

	outcome.Status = StatusExported
	outcome.DocumentID = docID

	if err := e.orders.SetMeta(ctx, orderID, map[string]string{
		platform.MetaDocumentID: docID,
		platform.MetaExportedAt: formatTime(e.now()),
	}); err != nil {
		log.WithError(err).Error("Failed to store SoftOne document id on order")
	}
	e.note(ctx, orderID, fmt.Sprintf("Exported to SoftOne as document %s.", docID))

	log.WithField("document_id", docID).Info("Order exported to SoftOne")
	metrics.RecordOrderExport(StatusExported)
	e.publish(ctx, events.Event{
		Type:       events.OrderExported,
		OccurredAt: e.now().UTC(),
		OrderID:    orderID,
		DocumentID: docID,
		Data:       map[string]any{"trdr": trdr, "attempts": attempts},
	})
	return outcome, nil
}

func (e *Exporter) fail(ctx context.Context, order *platform.Order, outcome *ExportOutcome, err error) *ExportOutcome {
	outcome.Status = StatusFailed
	outcome.Error = err.Error()

	e.logger.WithContext(ctx).WithError(err).WithField("order_id", order.ID).Error("Order export failed")

	var exportErr *ExportError
	if !errors.As(err, &exportErr) || exportErr.Stage != "transmit" {
		e.note(ctx, order.ID, "SoftOne export failed: "+err.Error())
	}

	e.deadLetter(ctx, order.ID, outcome, err)

	metrics.RecordOrderExport(StatusFailed)
	e.publish(ctx, events.Event{
		Type:       events.OrderExportFailed,
		OccurredAt: e.now().UTC(),
		OrderID:    order.ID,
		Error:      err.Error(),
	})
	return outcome
}

// TransmitWithRetry sends the document, retrying ERP failures with capped exponential
// backoff. It returns the ERP document id.
func (e *Exporter) TransmitWithRetry(ctx context.Context, order *platform.Order, payload *DocumentPayload, maxAttempts int) (string, error) {
	docID, _, err := e.transmit(ctx, order, payload, maxAttempts)
	return docID, err
}

func (e *Exporter) transmit(ctx context.Context, order *platform.Order, payload *DocumentPayload, maxAttempts int) (string, int, error) {
	ctx, span := tracing.StartSpan(ctx, "Exporter.TransmitWithRetry")
	defer span.End()

	if payload.Empty() {
		return "", 0, ErrEmptyPayload
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := e.erp.SetData(ctx, DocumentObject, "", payload.Data())
		if err == nil && resp.ID == "" {
			err = &softone.APIError{Kind: softone.KindBusiness, Service: "setData", Message: "no document id returned"}
		}
		if err == nil {
			metrics.OrderExportAttempts.WithLabelValues("success").Inc()
			return resp.ID, attempt, nil
		}

		metrics.OrderExportAttempts.WithLabelValues("failure").Inc()
		var apiErr *softone.APIError
		if !errors.As(err, &apiErr) {
			tracing.Fail(span, err)
			return "", attempt, err
		}
		lastErr = err

		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"order_id":     order.ID,
			"attempt":      attempt,
			"max_attempts": maxAttempts,
		}).Warn("SoftOne document transmission failed")
		e.note(ctx, order.ID, fmt.Sprintf("SoftOne export attempt %d/%d failed: %s", attempt, maxAttempts, apiErr.Error()))

		if attempt < maxAttempts {
			if err := e.sleep(ctx, RetryDelay(attempt)); err != nil {
				tracing.Fail(span, err)
				return "", attempt, err
			}
		}
	}

	err := &ExportError{OrderID: order.ID, Stage: "transmit", Attempts: maxAttempts, Err: lastErr}
	tracing.Fail(span, err)
	return "", maxAttempts, err
}

// RetryDelay is the wait after a failed attempt: 2^(attempt-1) seconds, capped at MaxRetryDelay.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return MaxRetryDelay
	}
	return min(time.Second<<(attempt-1), MaxRetryDelay)
}

func (e *Exporter) note(ctx context.Context, orderID int64, note string) {
	if err := e.orders.AddNote(ctx, orderID, note); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("order_id", orderID).Warn("Failed to add order note")
	}
}

func (e *Exporter) publish(ctx context.Context, event events.Event) {
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", event.Type).Warn("Failed to publish sync event")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
