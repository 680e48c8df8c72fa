package catalog

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/store"
)

var testNow = time.Date(2026, 10, 19, 10, 0, 0, 500_000_000, time.UTC)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeProducts struct {
	mu       sync.Mutex
	nextID   int64
	items    map[int64]*platform.Product
	saves    int
	saveErrs map[int64]error
}

func newFakeProducts(seed ...*platform.Product) *fakeProducts {
	f := &fakeProducts{items: map[int64]*platform.Product{}, nextID: 1000, saveErrs: map[int64]error{}}
	for _, p := range seed {
		f.items[p.ID] = clone(p)
	}
	return f
}

func clone(p *platform.Product) *platform.Product {
	c := *p
	c.Meta = map[string]string{}
	for k, v := range p.Meta {
		c.Meta[k] = v
	}
	c.CategoryIDs = append([]int64(nil), p.CategoryIDs...)
	c.Attributes = nil
	for _, a := range p.Attributes {
		c.Attributes = append(c.Attributes, platform.Attribute{ID: a.ID, Name: a.Name, Options: append([]string(nil), a.Options...)})
	}
	if p.StockQuantity != nil {
		q := *p.StockQuantity
		c.StockQuantity = &q
	}
	return &c
}

func (f *fakeProducts) Get(_ context.Context, id int64) (*platform.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return clone(p), nil
}

func (f *fakeProducts) find(match func(*platform.Product) bool) *platform.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.ids() {
		if p := f.items[id]; match(p) {
			return clone(p)
		}
	}
	return nil
}

func (f *fakeProducts) FindByMaterial(_ context.Context, mtrl string) (*platform.Product, error) {
	return f.find(func(p *platform.Product) bool { return p.MetaValue(platform.MetaMaterialID) == mtrl }), nil
}

func (f *fakeProducts) FindBySKU(_ context.Context, sku string) (*platform.Product, error) {
	return f.find(func(p *platform.Product) bool { return p.SKU == sku }), nil
}

func (f *fakeProducts) Save(_ context.Context, p *platform.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.saveErrs[p.ID]; err != nil {
		return err
	}
	if p.ID == 0 {
		f.nextID++
		p.ID = f.nextID
	}
	f.items[p.ID] = clone(p)
	f.saves++
	return nil
}

func (f *fakeProducts) ListStale(_ context.Context, cutoff time.Time, limit int) ([]*platform.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*platform.Product
	for _, id := range f.ids() {
		p := f.items[id]
		if p.MetaValue(platform.MetaMaterialID) == "" {
			continue
		}
		if stamp := p.MetaValue(platform.MetaLastSynced); stamp != "" {
			ts, err := strconv.ParseInt(stamp, 10, 64)
			if err == nil && ts >= cutoff.Unix() {
				continue
			}
		}
		out = append(out, clone(p))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeProducts) ids() []int64 {
	ids := make([]int64, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *fakeProducts) byMaterial(t *testing.T, mtrl string) *platform.Product {
	t.Helper()
	p, _ := f.FindByMaterial(context.Background(), mtrl)
	if p == nil {
		t.Fatalf("no product with material %s", mtrl)
	}
	return p
}

func (f *fakeProducts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeTaxonomy struct {
	categories map[string]int64
	terms      map[string]int64
	resets     int
}

func newFakeTaxonomy() *fakeTaxonomy {
	return &fakeTaxonomy{categories: map[string]int64{}, terms: map[string]int64{}}
}

func (f *fakeTaxonomy) EnsureCategory(_ context.Context, name string) (int64, error) {
	switch name {
	case "boom":
		panic("taxonomy exploded")
	case "broken":
		return 0, errors.New("category service unavailable")
	}
	if id, ok := f.categories[name]; ok {
		return id, nil
	}
	id := int64(len(f.categories) + 1)
	f.categories[name] = id
	return id, nil
}

func (f *fakeTaxonomy) EnsureAttributeTerm(_ context.Context, attribute, term string) (int64, error) {
	key := attribute + "/" + term
	if id, ok := f.terms[key]; ok {
		return id, nil
	}
	id := int64(len(f.terms) + 1)
	f.terms[key] = id
	return id, nil
}

func (f *fakeTaxonomy) Reset() {
	f.resets++
}

type fakeSource struct {
	rows  []RawRow
	err   error
	calls []int
}

func (f *fakeSource) FetchItems(_ context.Context, deltaMinutes int) ([]RawRow, error) {
	f.calls = append(f.calls, deltaMinutes)
	return f.rows, f.err
}

type catalogHarness struct {
	source   *fakeSource
	products *fakeProducts
	taxonomy *fakeTaxonomy
	markers  *store.Memory
	states   *store.Memory
	events   *events.Recorder
	stale    *StaleHandler
	engine   *Engine
	service  *Service
}

func newCatalogHarness(rows []RawRow, seed ...*platform.Product) *catalogHarness {
	h := &catalogHarness{
		source:   &fakeSource{rows: rows},
		products: newFakeProducts(seed...),
		taxonomy: newFakeTaxonomy(),
		markers:  store.NewMemoryWithClock(func() time.Time { return testNow }),
		states:   store.NewMemoryWithClock(func() time.Time { return testNow }),
		events:   &events.Recorder{},
	}
	h.stale = NewStaleHandler(h.products, StalePolicyDraft, 3, silentLogger())
	h.engine = NewEngine(h.source, h.products, h.taxonomy, h.stale, h.markers, EngineOptions{
		ImportCategories: true,
		ImportAttributes: true,
	}, silentLogger())
	h.engine.now = func() time.Time { return testNow }
	h.service = NewService(h.engine, NewStateStore(h.states, DefaultStateTTL), h.events, silentLogger())
	return h
}

func itemRow(mtrl, name string) RawRow {
	return RawRow{"MTRL": mtrl, "CODE": "C-" + mtrl, "NAME": name, "PRICER": "9.90", "BALANCE": "4"}
}

func boolPtr(b bool) *bool {
	return &b
}
