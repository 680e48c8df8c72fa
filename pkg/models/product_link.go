package models

import (
	"database/sql"
	"time"
)

// ProductLink ties an ERP material id to the store product created for it.
type ProductLink struct {
	Mtrl         string       `db:"mtrl" json:"mtrl"`
	ProductID    int64        `db:"product_id" json:"product_id"`
	SKU          string       `db:"sku" json:"sku"`
	LastSyncedAt sql.NullTime `db:"last_synced_at" json:"last_synced_at"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (ProductLink) TableName() string {
	return "softone_product_links"
}
