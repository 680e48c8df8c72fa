package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/softone"
)

const trnDateLayout = "2006-01-02 15:04:05"

// DocumentHeader is the SALDOC header of a sales document.
type DocumentHeader struct {
	Series   string
	Trdr     string
	TrnDate  string
	Comments string
	Payment  string
	Shipment string
}

// DocumentLine is one ITELINES entry.
type DocumentLine struct {
	Mtrl     string
	Qty      float64
	Comments string
}

// DocumentPayload is the sales document sent for an order.
type DocumentPayload struct {
	Header DocumentHeader
	Lines  []DocumentLine
}

// Empty reports whether the document misses its header or has no lines.
func (p *DocumentPayload) Empty() bool {
	return p == nil || p.Header.Series == "" || p.Header.Trdr == "" || len(p.Lines) == 0
}

// Data renders the document in the shape setData expects.
func (p *DocumentPayload) Data() map[string]any {
	header := map[string]any{
		"SERIES":  p.Header.Series,
		"TRDR":    p.Header.Trdr,
		"TRNDATE": p.Header.TrnDate,
	}
	if p.Header.Comments != "" {
		header["COMMENTS"] = p.Header.Comments
	}
	if p.Header.Payment != "" {
		header["PAYMENT"] = p.Header.Payment
	}
	if p.Header.Shipment != "" {
		header["SHIPMENT"] = p.Header.Shipment
	}

	lines := make([]any, 0, len(p.Lines))
	for _, l := range p.Lines {
		line := map[string]any{"MTRL": l.Mtrl, "QTY1": l.Qty}
		if l.Comments != "" {
			line["COMMENTS1"] = l.Comments
		}
		lines = append(lines, line)
	}

	return map[string]any{
		"SALDOC":   []any{header},
		"ITELINES": lines,
	}
}

// BuildDocumentPayload builds the sales document for order. Lines whose product has
// no ERP material id are dropped with a warning.
func (e *Exporter) BuildDocumentPayload(ctx context.Context, order *platform.Order, trdr string) (*DocumentPayload, error) {
	if strings.TrimSpace(e.cfg.Series) == "" {
		return nil, &softone.ConfigError{Field: "series", Message: "sales document series is not configured"}
	}

	date := order.DateCreated
	if date.IsZero() {
		date = e.now()
	}

	payload := &DocumentPayload{
		Header: DocumentHeader{
			Series:   e.cfg.Series,
			Trdr:     trdr,
			TrnDate:  date.Format(trnDateLayout),
			Comments: orderComments(order),
			Payment:  e.cfg.PaymentCodes[order.PaymentMethodTitle],
			Shipment: e.cfg.ShipmentCode,
		},
	}

	for _, item := range order.LineItems {
		if item.Quantity <= 0 {
			continue
		}
		mtrl, err := e.materialID(ctx, item)
		if err != nil {
			return nil, err
		}
		if mtrl == "" {
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"order_id":   order.ID,
				"product_id": item.ProductID,
				"sku":        item.SKU,
			}).Warn("Dropping order line without a SoftOne material id")
			continue
		}
		payload.Lines = append(payload.Lines, DocumentLine{
			Mtrl:     mtrl,
			Qty:      item.Quantity,
			Comments: item.Name,
		})
	}

	if payload.Empty() {
		return nil, ErrEmptyPayload
	}
	return payload, nil
}

// materialID reads the material id from the variation first, then the parent product.
func (e *Exporter) materialID(ctx context.Context, item platform.LineItem) (string, error) {
	for _, id := range []int64{item.VariationID, item.ProductID} {
		if id == 0 {
			continue
		}
		p, err := e.products.Get(ctx, id)
		if errors.Is(err, platform.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("load product %d: %w", id, err)
		}
		if mtrl := p.MetaValue(platform.MetaMaterialID); mtrl != "" {
			return mtrl, nil
		}
	}
	return "", nil
}

func orderComments(order *platform.Order) string {
	var parts []string
	if order.Number != "" {
		parts = append(parts, "Order #"+order.Number)
	}
	if note := strings.TrimSpace(order.CustomerNote); note != "" {
		parts = append(parts, note)
	}
	if order.PaymentMethodTitle != "" {
		parts = append(parts, "Payment: "+order.PaymentMethodTitle)
	}
	return strings.Join(parts, " | ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
