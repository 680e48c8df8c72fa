package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/store"
)

// Status is the lifecycle state of an import run. It only moves forward.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInProgress    Status = "in_progress"
	StatusComplete      Status = "complete"
)

// Mode selects between a full catalogue import and a delta since the last run.
type Mode string

const (
	ModeFull  Mode = "full"
	ModeDelta Mode = "delta"
)

// DefaultStateTTL is how long an idle import run stays resumable.
const DefaultStateTTL = time.Hour

var (
	// ErrOwnerMismatch is returned when a batch is requested by someone other than the run's owner
	ErrOwnerMismatch = errors.New("import run belongs to another owner")
	// ErrStateNotFound is returned when the run expired, completed or never existed
	ErrStateNotFound = errors.New("import run not found")
	// ErrOwnerRequired is returned when starting a run without an owner
	ErrOwnerRequired = errors.New("import owner is required")
)

// Outcome classifies one imported row.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// Stats counts processed rows. Processed always equals the sum of the others.
type Stats struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
}

func (s *Stats) record(o Outcome) {
	s.Processed++
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	default:
		s.Skipped++
	}
}

func (s *Stats) add(other Stats) {
	s.Processed += other.Processed
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
}

// RawRow is one ERP item row with ERP-native keys.
type RawRow map[string]any

// BatchState is a resumable import run. Cursor never exceeds TotalRows and always
// equals Stats.Processed.
type BatchState struct {
	ProcessID            string    `json:"process_id"`
	OwnerID              string    `json:"owner_id"`
	CreatedAt            time.Time `json:"created_at"`
	Mode                 Mode      `json:"mode"`
	DeltaMinutes         int       `json:"delta_minutes,omitempty"`
	ForceFullImport      bool      `json:"force_full_import"`
	ForceTaxonomyRefresh bool      `json:"force_taxonomy_refresh"`
	Status               Status    `json:"status"`
	Cursor               int       `json:"cursor"`
	TotalRows            int       `json:"total_rows"`
	Stats                Stats     `json:"stats"`
	Rows                 []RawRow  `json:"rows"`
}

// BatchResult reports one RunBatch call.
type BatchResult struct {
	ProcessID     string `json:"process_id"`
	Cursor        int    `json:"cursor"`
	TotalRows     int    `json:"total_rows"`
	Stats         Stats  `json:"stats"`
	Batch         Stats  `json:"batch"`
	Complete      bool   `json:"complete"`
	StaleProducts int    `json:"stale_products,omitempty"`
}

// StateStore keeps import runs in a TTL store between batch calls. There is no
// compare-and-swap, so two concurrent batches for one run can both process the
// same rows; callers drive a run sequentially.
type StateStore struct {
	store    store.TTLStore
	lifetime time.Duration
}

func NewStateStore(s store.TTLStore, lifetime time.Duration) *StateStore {
	if lifetime <= 0 {
		lifetime = DefaultStateTTL
	}
	return &StateStore{store: s, lifetime: lifetime}
}

func stateKey(ownerID, processID string) string {
	return fmt.Sprintf("import:%s:%s", ownerID, processID)
}

func (s *StateStore) Save(ctx context.Context, state *BatchState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode import state: %w", err)
	}
	return s.store.SetWithTTL(ctx, stateKey(state.OwnerID, state.ProcessID), raw, s.lifetime)
}

func (s *StateStore) Load(ctx context.Context, ownerID, processID string) (*BatchState, error) {
	raw, err := s.store.Get(ctx, stateKey(ownerID, processID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}

	var state BatchState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode import state: %w", err)
	}
	return &state, nil
}

func (s *StateStore) Delete(ctx context.Context, ownerID, processID string) error {
	return s.store.Delete(ctx, stateKey(ownerID, processID))
}

// Result summarizes the run after a batch.
func (s *BatchState) Result(batch Stats) *BatchResult {
	return &BatchResult{
		ProcessID: s.ProcessID,
		Cursor:    s.Cursor,
		TotalRows: s.TotalRows,
		Stats:     s.Stats,
		Batch:     batch,
		Complete:  s.Status == StatusComplete,
	}
}
