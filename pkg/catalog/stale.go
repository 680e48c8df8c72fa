package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// StalePolicy decides what happens to products that disappeared from the ERP.
type StalePolicy string

const (
	StalePolicyDraft      StalePolicy = "draft"
	StalePolicyOutOfStock StalePolicy = "outofstock"

	DefaultStalePageSize = 50
)

// ErrSweepInProgress is returned when another sweep is running in this process.
var ErrSweepInProgress = errors.New("stale item sweep already in progress")

// ParseStalePolicy validates a configured policy name.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case StalePolicyDraft, StalePolicyOutOfStock:
		return StalePolicy(s), nil
	case "":
		return StalePolicyDraft, nil
	}
	return "", fmt.Errorf("unknown stale policy %q", s)
}

// StaleHandler withdraws products that were not touched by a full import.
type StaleHandler struct {
	products platform.ProductRepository
	policy   StalePolicy
	pageSize int
	mu       sync.Mutex
	logger   ectologger.Logger
}

func NewStaleHandler(products platform.ProductRepository, policy StalePolicy, pageSize int, logger ectologger.Logger) *StaleHandler {
	if pageSize <= 0 {
		pageSize = DefaultStalePageSize
	}
	if policy == "" {
		policy = StalePolicyDraft
	}
	return &StaleHandler{products: products, policy: policy, pageSize: pageSize, logger: logger}
}

// Handle applies the policy to every product whose last synced marker is absent or
// older than runTimestamp and stamps it so it is not visited again. It returns the
// number of products withdrawn.
func (h *StaleHandler) Handle(ctx context.Context, runTimestamp time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "StaleHandler.Handle")
	defer span.End()

	if !h.mu.TryLock() {
		return 0, ErrSweepInProgress
	}
	defer h.mu.Unlock()

	cutoff := runTimestamp.UTC().Truncate(time.Second)
	stamp := strconv.FormatInt(cutoff.Unix(), 10)
	seen := map[int64]bool{}
	count, failed := 0, 0

	// Stamped products drop out of the result, so every page is read from the start.
	// Products that failed to save stay in it, so the window grows past them.
	for {
		page, err := h.products.ListStale(ctx, cutoff, h.pageSize+failed)
		if err != nil {
			tracing.Fail(span, err)
			return count, fmt.Errorf("list stale products: %w", err)
		}

		progressed := false
		for _, p := range page {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			progressed = true

			h.withdraw(p, stamp)
			if err := h.products.Save(ctx, p); err != nil {
				h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"product_id": p.ID,
					"mtrl":       p.MetaValue(platform.MetaMaterialID),
				}).Warn("Failed to withdraw stale product")
				failed++
				continue
			}
			count++
			metrics.StaleProductsTotal.WithLabelValues(string(h.policy)).Inc()
		}

		if !progressed {
			break
		}
	}

	if count > 0 {
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"policy": h.policy,
			"count":  count,
		}).Info("Withdrew stale products")
	}
	return count, nil
}

func (h *StaleHandler) withdraw(p *platform.Product, stamp string) {
	switch h.policy {
	case StalePolicyOutOfStock:
		zero := 0
		p.StockStatus = platform.StockOutOfStock
		if p.ManageStock {
			p.StockQuantity = &zero
		}
	default:
		p.Status = platform.StatusDraft
	}
	p.SetMeta(platform.MetaWithdrawn, "1")
	p.SetMeta(platform.MetaLastSynced, stamp)
}
