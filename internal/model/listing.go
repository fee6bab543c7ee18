package model

import "time"

// ListingStatus tracks the marketplace listing lifecycle.
type ListingStatus string

const (
	ListingPending ListingStatus = "PENDING"
	ListingActive  ListingStatus = "ACTIVE"
	ListingPaused  ListingStatus = "PAUSED"
	ListingClosed  ListingStatus = "CLOSED"
	ListingError   ListingStatus = "ERROR"
)

// Listing represents a product's marketplace listing. One per product.
type Listing struct {
	ID         int64         `json:"id"`
	ProductID  int64         `json:"product_id"`
	MLID       string        `json:"ml_id"`
	Status     ListingStatus `json:"status"`
	SyncError  string        `json:"sync_error"`
	LastSynced *time.Time    `json:"last_synced,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
