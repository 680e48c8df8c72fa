package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const optionsTable = "softone_options"

var optionStruct = database.NewStruct(new(models.Option))

// OptionRepository is the Postgres store.DurableStore.
type OptionRepository struct {
	*Repository
	now func() time.Time
}

func NewOptionRepository(db database.DB, logger ectologger.Logger) *OptionRepository {
	return &OptionRepository{
		Repository: NewRepository(db, logger),
		now:        time.Now,
	}
}

// Set upserts value under key. value must be valid JSON.
func (r *OptionRepository) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := tracing.StartSpan(ctx, "OptionRepository.Set")
	defer span.End()

	if !json.Valid(value) {
		return fmt.Errorf("option %s: value is not valid JSON", key)
	}

	query := `
		INSERT INTO softone_options (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET value = $2, updated_at = $3`

	option := database.JSONB[json.RawMessage]{Data: value}
	if _, err := r.DB().ExecContext(ctx, query, key, option, r.now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("failed to upsert option")
		tracing.Fail(span, err)
		return fmt.Errorf("upsert option %s: %w", key, err)
	}

	r.logger.WithContext(ctx).WithField("key", key).Debugf("Upserted %s key=%s", optionsTable, key)
	return nil
}

func (r *OptionRepository) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "OptionRepository.Get")
	defer span.End()

	sb := optionStruct.SelectFrom(optionsTable)
	sb.Where(sb.Equal("key", key))

	query, args := sb.Build()
	var option models.Option
	err := r.DB().GetContext(ctx, &option, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("failed to get option")
		tracing.Fail(span, err)
		return nil, fmt.Errorf("get option %s: %w", key, err)
	}

	return option.Value.Data, nil
}

func (r *OptionRepository) Delete(ctx context.Context, key string) error {
	ctx, span := tracing.StartSpan(ctx, "OptionRepository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(optionsTable).Where(db.Equal("key", key))

	query, args := db.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("failed to delete option")
		tracing.Fail(span, err)
		return fmt.Errorf("delete option %s: %w", key, err)
	}
	return nil
}
