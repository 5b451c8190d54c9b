// Package upstream talks to the account-aggregation provider that owns the
// transaction feed.
package upstream

import (
	"context"
	"time"
)

// Client defines the provider operations the sync layer consumes.
type Client interface {
	// SyncTransactions fetches one page of the cursor feed. An empty cursor
	// starts from the beginning of the item's history.
	SyncTransactions(ctx context.Context, accessToken, cursor string) (SyncPage, error)

	// GetTransactions fetches a date-range window, used for backfills outside
	// the cursor feed.
	GetTransactions(ctx context.Context, accessToken string, rng DateRange, paging Paging) ([]Transaction, error)
}

// Transaction is one upstream transaction record.
type Transaction struct {
	ExternalID       string
	AccountID        string
	AccountName      string
	AmountCents      int64
	ISOCurrency      string
	Date             time.Time
	AuthorizedDate   *time.Time
	Description      string
	MerchantName     string
	MCC              string
	PrimaryCategory  string
	DetailedCategory string
	Pending          bool
}

// Removal identifies a record the provider retracted.
type Removal struct {
	ExternalID string
}

// SyncPage is one page of the cursor feed.
type SyncPage struct {
	Added      []Transaction
	Modified   []Transaction
	Removed    []Removal
	NextCursor string
	HasMore    bool
}

// DateRange bounds a backfill fetch, inclusive of both days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Paging bounds a backfill fetch.
type Paging struct {
	Count  int
	Offset int
}
