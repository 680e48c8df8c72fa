package woocommerce

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// LinkIndex maps ERP material ids to store product ids.
type LinkIndex interface {
	FindByMaterial(ctx context.Context, mtrl string) (*models.ProductLink, error)
	Upsert(ctx context.Context, link *models.ProductLink) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.ProductLink, error)
	DeleteByMaterial(ctx context.Context, mtrl string) error
}

type idRef struct {
	ID int64 `json:"id"`
}

type wcAttribute struct {
	ID        int64    `json:"id,omitempty"`
	Name      string   `json:"name"`
	Visible   bool     `json:"visible"`
	Variation bool     `json:"variation"`
	Options   []string `json:"options"`
}

type wcProduct struct {
	ID            int64         `json:"id,omitempty"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	SKU           string        `json:"sku"`
	Status        string        `json:"status,omitempty"`
	RegularPrice  string        `json:"regular_price"`
	ManageStock   bool          `json:"manage_stock"`
	StockQuantity *int          `json:"stock_quantity"`
	StockStatus   string        `json:"stock_status,omitempty"`
	Categories    []idRef       `json:"categories"`
	Attributes    []wcAttribute `json:"attributes"`
	MetaData      []metaData    `json:"meta_data"`
}

func (w wcProduct) toProduct() *platform.Product {
	p := &platform.Product{
		ID:            w.ID,
		Name:          w.Name,
		Description:   w.Description,
		SKU:           w.SKU,
		Status:        w.Status,
		RegularPrice:  w.RegularPrice,
		ManageStock:   w.ManageStock,
		StockQuantity: w.StockQuantity,
		StockStatus:   w.StockStatus,
		Meta:          metaMap(w.MetaData),
	}
	for _, c := range w.Categories {
		p.CategoryIDs = append(p.CategoryIDs, c.ID)
	}
	for _, a := range w.Attributes {
		p.Attributes = append(p.Attributes, platform.Attribute{ID: a.ID, Name: a.Name, Options: a.Options})
	}
	return p
}

func fromProduct(p *platform.Product) wcProduct {
	w := wcProduct{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		SKU:           p.SKU,
		Status:        p.Status,
		RegularPrice:  p.RegularPrice,
		ManageStock:   p.ManageStock,
		StockQuantity: p.StockQuantity,
		StockStatus:   p.StockStatus,
		Categories:    []idRef{},
		Attributes:    []wcAttribute{},
		MetaData:      metaList(p.Meta),
	}
	for _, id := range p.CategoryIDs {
		w.Categories = append(w.Categories, idRef{ID: id})
	}
	for _, a := range p.Attributes {
		w.Attributes = append(w.Attributes, wcAttribute{ID: a.ID, Name: a.Name, Visible: true, Options: a.Options})
	}
	return w
}

// reindexPageSize is the largest page the products endpoint serves.
const reindexPageSize = 100

// ProductStore implements platform.ProductRepository. Material ids are resolved through
// the link index rather than meta queries. The index is backfilled from the store's
// material-id markers once per process and again after any failed link write.
type ProductStore struct {
	client *Client
	links  LinkIndex
	logger ectologger.Logger

	indexMu sync.Mutex
	indexed bool
}

func NewProductStore(client *Client, links LinkIndex, logger ectologger.Logger) *ProductStore {
	return &ProductStore{client: client, links: links, logger: logger}
}

func (s *ProductStore) Get(ctx context.Context, id int64) (*platform.Product, error) {
	var w wcProduct
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d", id), nil, nil, &w); err != nil {
		return nil, err
	}
	return w.toProduct(), nil
}

func (s *ProductStore) FindByMaterial(ctx context.Context, mtrl string) (*platform.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "ProductStore.FindByMaterial")
	defer span.End()

	link, err := s.links.FindByMaterial(ctx, mtrl)
	if errors.Is(err, store.ErrNotFound) {
		reindexed, rerr := s.ensureIndexed(ctx)
		if rerr != nil {
			tracing.Fail(span, rerr)
			return nil, rerr
		}
		if !reindexed {
			return nil, nil
		}
		link, err = s.links.FindByMaterial(ctx, mtrl)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
	}
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	p, err := s.Get(ctx, link.ProductID)
	if errors.Is(err, platform.ErrNotFound) {
		s.dropLink(ctx, mtrl)
		return nil, nil
	}
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	return p, nil
}

func (s *ProductStore) FindBySKU(ctx context.Context, sku string) (*platform.Product, error) {
	var found []wcProduct
	query := url.Values{"sku": {sku}}
	if err := s.client.do(ctx, http.MethodGet, "/products", query, nil, &found); err != nil {
		return nil, err
	}
	for _, w := range found {
		if w.SKU == sku {
			return w.toProduct(), nil
		}
	}
	return nil, nil
}

// Save creates or updates the product and refreshes its link entry. A product that
// was saved but could not be indexed is reported as an error and picked up by the
// next backfill.
func (s *ProductStore) Save(ctx context.Context, p *platform.Product) error {
	ctx, span := tracing.StartSpan(ctx, "ProductStore.Save")
	defer span.End()

	var saved wcProduct
	var err error
	if p.ID == 0 {
		err = s.client.do(ctx, http.MethodPost, "/products", nil, fromProduct(p), &saved)
	} else {
		err = s.client.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d", p.ID), nil, fromProduct(p), &saved)
	}
	if err != nil {
		tracing.Fail(span, err)
		return err
	}
	p.ID = saved.ID

	link := linkFor(p)
	if link == nil {
		return nil
	}
	if err := s.links.Upsert(ctx, link); err != nil {
		s.markUnindexed()
		err = fmt.Errorf("index product %d for material %s: %w", p.ID, link.Mtrl, err)
		tracing.Fail(span, err)
		return err
	}
	return nil
}

// Reindex walks every store product and links those carrying a material id. It
// returns the number of links written.
func (s *ProductStore) Reindex(ctx context.Context) (int, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return s.reindexLocked(ctx)
}

func (s *ProductStore) reindexLocked(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ProductStore.Reindex")
	defer span.End()

	linked := 0
	for page := 1; ; page++ {
		var found []wcProduct
		query := url.Values{
			"status":   {"any"},
			"per_page": {strconv.Itoa(reindexPageSize)},
			"page":     {strconv.Itoa(page)},
		}
		if err := s.client.do(ctx, http.MethodGet, "/products", query, nil, &found); err != nil {
			tracing.Fail(span, err)
			return linked, fmt.Errorf("list products page %d: %w", page, err)
		}

		for _, w := range found {
			link := linkFor(w.toProduct())
			if link == nil {
				continue
			}
			if err := s.links.Upsert(ctx, link); err != nil {
				tracing.Fail(span, err)
				return linked, fmt.Errorf("index product %d for material %s: %w", link.ProductID, link.Mtrl, err)
			}
			linked++
		}

		if len(found) < reindexPageSize {
			break
		}
	}

	s.indexed = true
	s.logger.WithContext(ctx).WithField("linked", linked).Info("Backfilled product link index")
	return linked, nil
}

// ensureIndexed backfills the index if it has not been built since startup or
// since a link write failed. It reports whether a backfill ran.
func (s *ProductStore) ensureIndexed(ctx context.Context) (bool, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if s.indexed {
		return false, nil
	}
	if _, err := s.reindexLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ProductStore) markUnindexed() {
	s.indexMu.Lock()
	s.indexed = false
	s.indexMu.Unlock()
}

func linkFor(p *platform.Product) *models.ProductLink {
	mtrl := p.MetaValue(platform.MetaMaterialID)
	if mtrl == "" || p.ID == 0 {
		return nil
	}
	link := &models.ProductLink{Mtrl: mtrl, ProductID: p.ID, SKU: p.SKU}
	if ts, err := strconv.ParseInt(p.MetaValue(platform.MetaLastSynced), 10, 64); err == nil {
		link.LastSyncedAt = sql.NullTime{Time: time.Unix(ts, 0).UTC(), Valid: true}
	}
	return link
}

// ListStale reads stale links and loads their products. Links to deleted products
// are dropped on the way.
func (s *ProductStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*platform.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "ProductStore.ListStale")
	defer span.End()

	if _, err := s.ensureIndexed(ctx); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	for {
		links, err := s.links.ListStale(ctx, cutoff, limit)
		if err != nil {
			tracing.Fail(span, err)
			return nil, err
		}

		out := make([]*platform.Product, 0, len(links))
		dropped := 0
		for _, link := range links {
			p, err := s.Get(ctx, link.ProductID)
			if errors.Is(err, platform.ErrNotFound) {
				if s.dropLink(ctx, link.Mtrl) {
					dropped++
				}
				continue
			}
			if err != nil {
				tracing.Fail(span, err)
				return nil, err
			}
			if p.MetaValue(platform.MetaMaterialID) == "" {
				p.SetMeta(platform.MetaMaterialID, link.Mtrl)
			}
			out = append(out, p)
		}

		if len(out) > 0 || dropped == 0 {
			return out, nil
		}
	}
}

func (s *ProductStore) dropLink(ctx context.Context, mtrl string) bool {
	if err := s.links.DeleteByMaterial(ctx, mtrl); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("mtrl", mtrl).Warn("Failed to drop link to deleted product")
		return false
	}
	return true
}
