package models

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Option is a durable key/value record such as the cached ERP session or the last
// successful import timestamp.
type Option struct {
	Key       string                          `db:"key" json:"key"`
	Value     database.JSONB[json.RawMessage] `db:"value" json:"value"`
	UpdatedAt time.Time                       `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Option) TableName() string {
	return "softone_options"
}
