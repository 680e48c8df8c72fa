package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Ramsey-B/fern/pkg/platform"
)

const wcDateLayout = "2006-01-02T15:04:05"

type wcLineItem struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	VariationID int64   `json:"variation_id"`
	Name        string  `json:"name"`
	SKU         string  `json:"sku"`
	Quantity    float64 `json:"quantity"`
	Total       string  `json:"total"`
}

type wcOrder struct {
	ID                 int64            `json:"id"`
	Number             string           `json:"number"`
	Status             string           `json:"status"`
	CustomerID         int64            `json:"customer_id"`
	CustomerNote       string           `json:"customer_note"`
	PaymentMethodTitle string           `json:"payment_method_title"`
	ShippingTotal      string           `json:"shipping_total"`
	Total              string           `json:"total"`
	DateCreatedGMT     string           `json:"date_created_gmt"`
	Billing            platform.Address `json:"billing"`
	LineItems          []wcLineItem     `json:"line_items"`
	MetaData           []metaData       `json:"meta_data"`
}

func (w wcOrder) toOrder() *platform.Order {
	o := &platform.Order{
		ID:                 w.ID,
		Number:             w.Number,
		Status:             w.Status,
		CustomerID:         w.CustomerID,
		CustomerNote:       w.CustomerNote,
		PaymentMethodTitle: w.PaymentMethodTitle,
		ShippingTotal:      w.ShippingTotal,
		Total:              w.Total,
		Billing:            w.Billing,
		Meta:               metaMap(w.MetaData),
	}
	if ts, err := time.Parse(wcDateLayout, w.DateCreatedGMT); err == nil {
		o.DateCreated = ts.UTC()
	}
	for _, li := range w.LineItems {
		o.LineItems = append(o.LineItems, platform.LineItem{
			ID:          li.ID,
			ProductID:   li.ProductID,
			VariationID: li.VariationID,
			Name:        li.Name,
			SKU:         li.SKU,
			Quantity:    li.Quantity,
			Total:       li.Total,
		})
	}
	return o
}

// OrderStore implements platform.OrderRepository.
type OrderStore struct {
	client *Client
}

func NewOrderStore(client *Client) *OrderStore {
	return &OrderStore{client: client}
}

func (s *OrderStore) Get(ctx context.Context, id int64) (*platform.Order, error) {
	var w wcOrder
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("/orders/%d", id), nil, nil, &w); err != nil {
		return nil, err
	}
	return w.toOrder(), nil
}

func (s *OrderStore) SetMeta(ctx context.Context, id int64, meta map[string]string) error {
	body := map[string]any{"meta_data": metaList(meta)}
	return s.client.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d", id), nil, body, nil)
}

// AddNote appends a private order note.
func (s *OrderStore) AddNote(ctx context.Context, id int64, note string) error {
	body := map[string]any{"note": note, "customer_note": false}
	return s.client.do(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/notes", id), nil, body, nil)
}
