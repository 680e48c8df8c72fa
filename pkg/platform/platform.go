// Package platform describes the store-side collaborators the sync engines depend on.
package platform

import (
	"context"
	"errors"
	"time"
)

// Meta keys written onto store products and orders.
const (
	MetaMaterialID  = "_softone_mtrl"
	MetaLastSynced  = "_softone_last_synced"
	MetaWithdrawn   = "_softone_withdrawn"
	MetaDocumentID  = "_softone_document_id"
	MetaExportedAt  = "_softone_exported_at"
	MetaCustomerID  = "_softone_trdr"
	StatusPublish   = "publish"
	StatusDraft     = "draft"
	StockInStock    = "instock"
	StockOutOfStock = "outofstock"
)

// ErrNotFound is returned when a product, order or customer does not exist.
var ErrNotFound = errors.New("platform: not found")

// Attribute is a product attribute with the options assigned to the product.
type Attribute struct {
	ID      int64    `json:"id,omitempty"`
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

// Product is a store catalogue item.
type Product struct {
	ID            int64
	Name          string
	Description   string
	SKU           string
	Status        string
	RegularPrice  string
	ManageStock   bool
	StockQuantity *int
	StockStatus   string
	CategoryIDs   []int64
	Attributes    []Attribute
	Meta          map[string]string
}

// MetaValue returns the meta value for key, or "".
func (p *Product) MetaValue(key string) string {
	if p.Meta == nil {
		return ""
	}
	return p.Meta[key]
}

// SetMeta sets a meta value.
func (p *Product) SetMeta(key, value string) {
	if p.Meta == nil {
		p.Meta = map[string]string{}
	}
	p.Meta[key] = value
}

// ProductRepository finds and persists store products.
type ProductRepository interface {
	Get(ctx context.Context, id int64) (*Product, error)
	// FindByMaterial returns the product carrying the ERP material id, or nil.
	FindByMaterial(ctx context.Context, mtrl string) (*Product, error)
	// FindBySKU returns the product with the SKU, or nil.
	FindBySKU(ctx context.Context, sku string) (*Product, error)
	// Save creates the product when ID is zero and updates it otherwise. The
	// assigned ID is written back.
	Save(ctx context.Context, p *Product) error
	// ListStale returns up to limit products carrying a material id whose last
	// synced marker is absent or before cutoff. Saving a product with a newer
	// marker removes it from later results.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Product, error)
}

// Taxonomy resolves category and attribute terms, creating them on first use.
type Taxonomy interface {
	EnsureCategory(ctx context.Context, name string) (int64, error)
	EnsureAttributeTerm(ctx context.Context, attribute, term string) (int64, error)
	// Reset drops any cached term lookups.
	Reset()
}

// Address is an order billing address.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// LineItem is a single order line.
type LineItem struct {
	ID          int64
	ProductID   int64
	VariationID int64
	Name        string
	SKU         string
	Quantity    float64
	Total       string
}

// Order is a store order.
type Order struct {
	ID                 int64
	Number             string
	Status             string
	CustomerID         int64
	CustomerNote       string
	PaymentMethodTitle string
	ShippingTotal      string
	Total              string
	DateCreated        time.Time
	Billing            Address
	LineItems          []LineItem
	Meta               map[string]string
}

// MetaValue returns the meta value for key, or "".
func (o *Order) MetaValue(key string) string {
	if o.Meta == nil {
		return ""
	}
	return o.Meta[key]
}

// OrderRepository reads orders and records export progress on them.
type OrderRepository interface {
	Get(ctx context.Context, id int64) (*Order, error)
	SetMeta(ctx context.Context, id int64, meta map[string]string) error
	AddNote(ctx context.Context, id int64, note string) error
}

// CustomerSync resolves a registered store customer to an ERP customer id.
type CustomerSync interface {
	EnsureCustomer(ctx context.Context, customerID int64) (string, error)
}
