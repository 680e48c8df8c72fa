package catalog

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service drives import runs across calls, keeping each run in the state store
// between batches.
type Service struct {
	engine *Engine
	states *StateStore
	events events.Publisher
	logger ectologger.Logger
}

func NewService(engine *Engine, states *StateStore, publisher events.Publisher, logger ectologger.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{engine: engine, states: states, events: publisher, logger: logger}
}

// Begin starts a run for ownerID and stores it.
func (s *Service) Begin(ctx context.Context, ownerID string, opts BeginOptions) (*BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ImportService.Begin")
	defer span.End()

	state, err := s.engine.Begin(ctx, ownerID, opts)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	if err := s.states.Save(ctx, state); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	metrics.ImportRunsTotal.WithLabelValues(string(state.Mode), "started").Inc()
	s.publish(ctx, events.Event{
		Type:       events.ImportStarted,
		OccurredAt: state.CreatedAt,
		ProcessID:  state.ProcessID,
		OwnerID:    ownerID,
		Data: map[string]any{
			"mode":          state.Mode,
			"delta_minutes": state.DeltaMinutes,
			"total_rows":    state.TotalRows,
		},
	})
	return state.Result(Stats{}), nil
}

// RunBatch processes the next batch of a stored run. Completed runs are removed from
// the state store and their start time becomes the delta marker for the next run.
func (s *Service) RunBatch(ctx context.Context, ownerID, processID string, batchSize int) (*BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ImportService.RunBatch")
	defer span.End()

	state, err := s.states.Load(ctx, ownerID, processID)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	result, err := s.engine.RunBatch(ctx, ownerID, state, batchSize)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	if !result.Complete {
		if err := s.states.Save(ctx, state); err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
		return result, nil
	}

	if err := s.states.Delete(ctx, ownerID, processID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to delete completed import state")
	}
	if err := s.engine.MarkRun(ctx, state.CreatedAt); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to record last import marker")
	}

	metrics.ImportRunsTotal.WithLabelValues(string(state.Mode), "completed").Inc()
	s.publish(ctx, events.Event{
		Type:       events.ImportCompleted,
		OccurredAt: s.engine.now().UTC(),
		ProcessID:  processID,
		OwnerID:    ownerID,
		Data: map[string]any{
			"mode":      state.Mode,
			"processed": state.Stats.Processed,
			"created":   state.Stats.Created,
			"updated":   state.Stats.Updated,
			"skipped":   state.Stats.Skipped,
		},
	})
	if result.StaleProducts > 0 {
		s.publish(ctx, events.Event{
			Type:       events.StaleProductsMarked,
			OccurredAt: s.engine.now().UTC(),
			ProcessID:  processID,
			OwnerID:    ownerID,
			Data:       map[string]any{"count": result.StaleProducts},
		})
	}
	return result, nil
}

// RunToCompletion begins a run and drives it until every row is processed.
func (s *Service) RunToCompletion(ctx context.Context, ownerID string, opts BeginOptions, batchSize int) (*BatchResult, error) {
	begun, err := s.Begin(ctx, ownerID, opts)
	if err != nil {
		return nil, err
	}
	return s.Resume(ctx, ownerID, begun.ProcessID, batchSize, nil)
}

// Resume drives a stored run to completion. onBatch, when set, runs after every batch
// and aborts the run when it returns an error.
func (s *Service) Resume(ctx context.Context, ownerID, processID string, batchSize int, onBatch func(*BatchResult) error) (*BatchResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.RunBatch(ctx, ownerID, processID, batchSize)
		if err != nil {
			return nil, err
		}
		if result.Complete {
			return result, nil
		}
		if result.Batch.Processed == 0 {
			return result, errors.New("import batch made no progress")
		}
		if onBatch != nil {
			if err := onBatch(result); err != nil {
				return result, err
			}
		}
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("event_type", event.Type).Warn("Failed to publish sync event")
	}
}
