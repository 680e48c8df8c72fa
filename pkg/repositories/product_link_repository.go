package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const productLinksTable = "softone_product_links"

var productLinkStruct = database.NewStruct(new(models.ProductLink))

// ProductLinkRepository indexes store products by ERP material id.
type ProductLinkRepository struct {
	*Repository
	now func() time.Time
}

func NewProductLinkRepository(db database.DB, logger ectologger.Logger) *ProductLinkRepository {
	return &ProductLinkRepository{
		Repository: NewRepository(db, logger),
		now:        time.Now,
	}
}

// FindByMaterial returns store.ErrNotFound when no product carries mtrl.
func (r *ProductLinkRepository) FindByMaterial(ctx context.Context, mtrl string) (*models.ProductLink, error) {
	ctx, span := tracing.StartSpan(ctx, "ProductLinkRepository.FindByMaterial")
	defer span.End()

	sb := productLinkStruct.SelectFrom(productLinksTable)
	sb.Where(sb.Equal("mtrl", mtrl))

	query, args := sb.Build()
	var link models.ProductLink
	err := r.DB().GetContext(ctx, &link, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("mtrl", mtrl).Error("failed to get product link")
		tracing.Fail(span, err)
		return nil, fmt.Errorf("get product link %s: %w", mtrl, err)
	}
	return &link, nil
}

// Upsert records that productID carries mtrl. A product can only be linked to one
// material, so an existing row for the product under another mtrl is replaced.
func (r *ProductLinkRepository) Upsert(ctx context.Context, link *models.ProductLink) error {
	ctx, span := tracing.StartSpan(ctx, "ProductLinkRepository.Upsert")
	defer span.End()

	now := r.now().UTC()
	query := `
		WITH released AS (
			DELETE FROM softone_product_links WHERE product_id = $2 AND mtrl <> $1
		)
		INSERT INTO softone_product_links (mtrl, product_id, sku, last_synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (mtrl)
		DO UPDATE SET product_id = $2, sku = $3, last_synced_at = $4, updated_at = $5
		RETURNING created_at, updated_at`

	err := r.DB().QueryRowxContext(ctx, query,
		link.Mtrl,
		link.ProductID,
		link.SKU,
		link.LastSyncedAt,
		now,
	).Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"mtrl":       link.Mtrl,
			"product_id": link.ProductID,
		}).Error("failed to upsert product link")
		tracing.Fail(span, err)
		return fmt.Errorf("upsert product link %s: %w", link.Mtrl, err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"mtrl":       link.Mtrl,
		"product_id": link.ProductID,
	}).Debugf("Upserted %s mtrl=%s product=%d", productLinksTable, link.Mtrl, link.ProductID)
	return nil
}

// ListStale returns up to limit links never synced or last synced before the cutoff,
// ordered by material id.
func (r *ProductLinkRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.ProductLink, error) {
	ctx, span := tracing.StartSpan(ctx, "ProductLinkRepository.ListStale")
	defer span.End()

	sb := productLinkStruct.SelectFrom(productLinksTable)
	sb.Where(sb.Or(sb.IsNull("last_synced_at"), sb.LessThan("last_synced_at", before.UTC())))
	sb.OrderBy("mtrl")
	sb.Limit(limit)

	query, args := sb.Build()
	var links []models.ProductLink
	if err := r.DB().SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list stale product links")
		tracing.Fail(span, err)
		return nil, fmt.Errorf("list stale product links: %w", err)
	}
	return links, nil
}

// DeleteByMaterial drops the link, used when the linked product no longer exists.
func (r *ProductLinkRepository) DeleteByMaterial(ctx context.Context, mtrl string) error {
	ctx, span := tracing.StartSpan(ctx, "ProductLinkRepository.DeleteByMaterial")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(productLinksTable).Where(db.Equal("mtrl", mtrl))

	query, args := db.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("mtrl", mtrl).Error("failed to delete product link")
		tracing.Fail(span, err)
		return fmt.Errorf("delete product link %s: %w", mtrl, err)
	}
	return nil
}
