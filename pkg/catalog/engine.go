package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultBatchSize is used when a caller asks for a non-positive batch size.
	DefaultBatchSize = 25
	// LastRunKey is the durable marker holding the start time of the last completed import.
	LastRunKey = "softone_items_last_run"
)

// ItemSource fetches ERP item rows. deltaMinutes of zero asks for the full catalogue.
type ItemSource interface {
	FetchItems(ctx context.Context, deltaMinutes int) ([]RawRow, error)
}

// RowImportError describes a row that could not be imported. The row is counted as
// skipped and the batch continues.
type RowImportError struct {
	Index  int
	Mtrl   string
	Reason string
	Err    error
}

func (e *RowImportError) Error() string {
	msg := fmt.Sprintf("row %d", e.Index)
	if e.Mtrl != "" {
		msg += fmt.Sprintf(" (mtrl %s)", e.Mtrl)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RowImportError) Unwrap() error {
	return e.Err
}

// EngineOptions toggles optional parts of the import.
type EngineOptions struct {
	ImportCategories bool
	ImportAttributes bool
	// DefaultFullImport applies when BeginOptions.ForceFullImport is nil.
	DefaultFullImport bool
}

// BeginOptions are the per-run flags supplied by the caller.
type BeginOptions struct {
	ForceFullImport      *bool
	ForceTaxonomyRefresh bool
}

// Engine imports ERP items into the store catalogue in bounded batches.
type Engine struct {
	source   ItemSource
	products platform.ProductRepository
	taxonomy platform.Taxonomy
	stale    *StaleHandler
	markers  store.DurableStore
	opts     EngineOptions
	logger   ectologger.Logger
	now      func() time.Time
}

func NewEngine(source ItemSource, products platform.ProductRepository, taxonomy platform.Taxonomy, stale *StaleHandler, markers store.DurableStore, opts EngineOptions, logger ectologger.Logger) *Engine {
	return &Engine{
		source:   source,
		products: products,
		taxonomy: taxonomy,
		stale:    stale,
		markers:  markers,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Begin fetches the rows for a new run. The run is a delta since the last completed
// import unless no marker exists or a full import is forced.
func (e *Engine) Begin(ctx context.Context, ownerID string, opts BeginOptions) (*BatchState, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.Begin")
	defer span.End()

	if ownerID == "" {
		return nil, ErrOwnerRequired
	}

	now := e.now().UTC().Truncate(time.Second)
	forceFull := e.opts.DefaultFullImport
	if opts.ForceFullImport != nil {
		forceFull = *opts.ForceFullImport
	}

	state := &BatchState{
		ProcessID:            uuid.NewString(),
		OwnerID:              ownerID,
		CreatedAt:            now,
		Mode:                 ModeFull,
		ForceFullImport:      forceFull,
		ForceTaxonomyRefresh: opts.ForceTaxonomyRefresh,
		Status:               StatusUninitialized,
	}

	if !forceFull {
		lastRun, ok, err := e.LastRun(ctx)
		if err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
		if ok {
			state.Mode = ModeDelta
			state.DeltaMinutes = deltaMinutes(now, lastRun)
		}
	}

	if opts.ForceTaxonomyRefresh {
		e.taxonomy.Reset()
	}

	rows, err := e.source.FetchItems(ctx, state.DeltaMinutes)
	if err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	state.Rows = rows
	state.TotalRows = len(rows)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"process_id":    state.ProcessID,
		"mode":          state.Mode,
		"delta_minutes": state.DeltaMinutes,
		"total_rows":    state.TotalRows,
	}).Info("Item import started")

	return state, nil
}

func deltaMinutes(now, lastRun time.Time) int {
	minutes := int(math.Ceil(now.Sub(lastRun).Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// RunBatch imports the next batchSize rows of the run. The state is updated in place;
// persisting it is the caller's job.
func (e *Engine) RunBatch(ctx context.Context, ownerID string, state *BatchState, batchSize int) (*BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.RunBatch")
	defer span.End()

	if state.OwnerID != ownerID {
		tracing.Fail(span, ErrOwnerMismatch)
		return nil, ErrOwnerMismatch
	}
	if state.Status == StatusComplete {
		return state.Result(Stats{}), nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	started := e.now()
	state.Status = StatusInProgress
	stamp := strconv.FormatInt(state.CreatedAt.Unix(), 10)

	var batch Stats
	end := min(state.Cursor+batchSize, state.TotalRows)
	for state.Cursor < end {
		idx := state.Cursor
		outcome, err := e.importRowSafe(ctx, idx, state.Rows[idx], stamp)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"process_id": state.ProcessID,
				"row":        state.Rows[idx],
			}).Warn("Failed to import item row")
			outcome = OutcomeSkipped
		}
		state.Stats.record(outcome)
		batch.record(outcome)
		state.Cursor++
		metrics.RecordImportRow(string(outcome))
	}

	metrics.ImportBatchDuration.Observe(e.now().Sub(started).Seconds())

	if state.Cursor < state.TotalRows {
		return state.Result(batch), nil
	}

	state.Status = StatusComplete
	result := state.Result(batch)
	if state.Mode == ModeFull {
		result.StaleProducts = e.handleStale(ctx, state)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"process_id": state.ProcessID,
		"processed":  state.Stats.Processed,
		"created":    state.Stats.Created,
		"updated":    state.Stats.Updated,
		"skipped":    state.Stats.Skipped,
	}).Info("Item import complete")

	return result, nil
}

func (e *Engine) handleStale(ctx context.Context, state *BatchState) int {
	if e.stale == nil {
		return 0
	}
	if state.TotalRows == 0 {
		e.logger.WithContext(ctx).Warn("Full import returned no rows, skipping stale sweep")
		return 0
	}
	count, err := e.stale.Handle(ctx, state.CreatedAt)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Stale item sweep failed")
	}
	return count
}

// LastRun returns the start time of the last completed import.
func (e *Engine) LastRun(ctx context.Context) (time.Time, bool, error) {
	raw, err := e.markers.Get(ctx, LastRunKey)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read last import marker: %w", err)
	}

	var ts time.Time
	if err := json.Unmarshal(raw, &ts); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Ignoring unreadable last import marker")
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

// MarkRun records startedAt as the last completed import.
func (e *Engine) MarkRun(ctx context.Context, startedAt time.Time) error {
	raw, err := json.Marshal(startedAt.UTC())
	if err != nil {
		return err
	}
	return e.markers.Set(ctx, LastRunKey, raw)
}

func (e *Engine) importRowSafe(ctx context.Context, idx int, raw RawRow, stamp string) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeSkipped
			err = &RowImportError{Index: idx, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return e.importRow(ctx, idx, raw, stamp)
}

func (e *Engine) importRow(ctx context.Context, idx int, raw RawRow, stamp string) (Outcome, error) {
	item := Normalize(raw)
	if item.Mtrl == "" && len(item.SKUCandidates()) == 0 {
		return OutcomeSkipped, &RowImportError{Index: idx, Reason: "row has no material id, sku, barcode or code"}
	}

	product, err := e.resolve(ctx, idx, item)
	if err != nil {
		return OutcomeSkipped, err
	}

	created := product == nil
	if created {
		if item.Name == "" {
			return OutcomeSkipped, &RowImportError{Index: idx, Mtrl: item.Mtrl, Reason: "new item has no name"}
		}
		product = &platform.Product{Status: platform.StatusPublish}
	}

	changed := applyFields(product, item)

	taxChanged, err := e.applyTaxonomy(ctx, product, item)
	if err != nil {
		return OutcomeSkipped, &RowImportError{Index: idx, Mtrl: item.Mtrl, Reason: "taxonomy", Err: err}
	}
	changed = changed || taxChanged

	if product.MetaValue(platform.MetaWithdrawn) != "" {
		product.Status = platform.StatusPublish
		product.SetMeta(platform.MetaWithdrawn, "")
		changed = true
	}
	if item.Mtrl != "" && product.MetaValue(platform.MetaMaterialID) != item.Mtrl {
		product.SetMeta(platform.MetaMaterialID, item.Mtrl)
		changed = true
	}

	if !created && !changed && product.MetaValue(platform.MetaLastSynced) == stamp {
		return OutcomeSkipped, nil
	}
	product.SetMeta(platform.MetaLastSynced, stamp)

	if err := e.products.Save(ctx, product); err != nil {
		return OutcomeSkipped, &RowImportError{Index: idx, Mtrl: item.Mtrl, Reason: "save product", Err: err}
	}
	if created {
		return OutcomeCreated, nil
	}
	return OutcomeUpdated, nil
}

// resolve finds the existing product by material id, then by sku, barcode and code.
func (e *Engine) resolve(ctx context.Context, idx int, item Item) (*platform.Product, error) {
	if item.Mtrl != "" {
		p, err := e.products.FindByMaterial(ctx, item.Mtrl)
		if err != nil {
			return nil, &RowImportError{Index: idx, Mtrl: item.Mtrl, Reason: "lookup by material id", Err: err}
		}
		if p != nil {
			return p, nil
		}
	}

	for _, sku := range item.SKUCandidates() {
		p, err := e.products.FindBySKU(ctx, sku)
		if err != nil {
			return nil, &RowImportError{Index: idx, Mtrl: item.Mtrl, Reason: "lookup by sku", Err: err}
		}
		if p == nil {
			continue
		}
		if owner := p.MetaValue(platform.MetaMaterialID); owner != "" && item.Mtrl != "" && owner != item.Mtrl {
			return nil, &RowImportError{
				Index:  idx,
				Mtrl:   item.Mtrl,
				Reason: fmt.Sprintf("sku %q already belongs to material %s", sku, owner),
			}
		}
		return p, nil
	}
	return nil, nil
}

// applyFields copies non-empty item values onto the product and reports whether
// anything changed. Empty values never erase existing data.
func applyFields(p *platform.Product, item Item) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}

	set(&p.Name, item.Name)
	set(&p.Description, item.Description)
	if p.SKU == "" {
		if skus := item.SKUCandidates(); len(skus) > 0 {
			p.SKU = skus[0]
			changed = true
		}
	}
	if item.Price != nil {
		set(&p.RegularPrice, strconv.FormatFloat(*item.Price, 'f', -1, 64))
	}
	if item.Stock != nil {
		qty := int(math.Round(*item.Stock))
		status := platform.StockOutOfStock
		if qty > 0 {
			status = platform.StockInStock
		}
		if !p.ManageStock || p.StockQuantity == nil || *p.StockQuantity != qty || p.StockStatus != status {
			p.ManageStock = true
			p.StockQuantity = &qty
			p.StockStatus = status
			changed = true
		}
	}
	return changed
}

func (e *Engine) applyTaxonomy(ctx context.Context, p *platform.Product, item Item) (bool, error) {
	changed := false

	if e.opts.ImportCategories && item.Category != "" {
		id, err := e.taxonomy.EnsureCategory(ctx, item.Category)
		if err != nil {
			return false, err
		}
		if !containsID(p.CategoryIDs, id) {
			p.CategoryIDs = append(p.CategoryIDs, id)
			changed = true
		}
	}

	if e.opts.ImportAttributes {
		for _, attr := range item.Attributes() {
			name, term := attr[0], attr[1]
			if _, err := e.taxonomy.EnsureAttributeTerm(ctx, name, term); err != nil {
				return false, err
			}
			if setAttribute(p, name, term) {
				changed = true
			}
		}
	}
	return changed, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func setAttribute(p *platform.Product, name, term string) bool {
	for i := range p.Attributes {
		if p.Attributes[i].Name != name {
			continue
		}
		if len(p.Attributes[i].Options) == 1 && p.Attributes[i].Options[0] == term {
			return false
		}
		p.Attributes[i].Options = []string{term}
		return true
	}
	p.Attributes = append(p.Attributes, platform.Attribute{Name: name, Options: []string{term}})
	return true
}
