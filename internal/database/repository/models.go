package repository

import "time"

// Category provenance recorded on a transaction.
const (
	ProvenanceSystem = "system"
	ProvenanceUser   = "user"
	ProvenanceRule   = "rule"
)

// Rule fields a predicate can target.
const (
	FieldMerchantName     = "merchant_name"
	FieldDescription      = "description"
	FieldAccountName      = "account_name"
	FieldMCC              = "mcc"
	FieldUpstreamDetailed = "upstream_detailed"
	FieldUpstreamPrimary  = "upstream_primary"
)

// Rule operators.
const (
	OpEquals     = "equals"
	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpEndsWith   = "ends_with"
	OpRegex      = "regex"
)

// Sync job statuses. Pending and retry are the only claimable states;
// completed and failed are terminal.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobRetry      = "retry"
	JobFailed     = "failed"
)

// Sync job origins.
const (
	OriginWebhook = "webhook"
	OriginManual  = "manual"
)

// LinkedItem is an upstream-linked account with its sync cursor.
type LinkedItem struct {
	ID           string
	UserID       string
	ExternalID   string
	Institution  string
	AccessToken  string // encrypted envelope, see internal/secrets
	Cursor       *string
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Category represents a category row.
type Category struct {
	ID        string
	UserID    string
	Name      string
	Source    string
	CreatedAt time.Time
}

// Transaction represents a transaction row, keyed uniquely by
// (source, external_id).
type Transaction struct {
	ID               string
	UserID           string
	ItemID           string
	Source           string
	ExternalID       string
	AmountCents      int64
	ISOCurrency      string
	Date             time.Time
	AuthorizedDate   *time.Time
	Description      string
	MerchantName     *string
	MCC              *string
	UpstreamPrimary  *string
	UpstreamDetailed *string
	Pending          bool
	CategoryID       *string
	CategorySource   string
	Confidence       *float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CategoryRule is a categorization predicate.
type CategoryRule struct {
	ID          string
	UserID      string
	CategoryID  string
	Field       string
	Operator    string
	Pattern     string
	Priority    int
	Active      bool
	Source      string
	LearnedFrom *string
	CreatedAt   time.Time
}

// SyncJob is one deduplicated attempt to reconcile a linked item.
type SyncJob struct {
	ID          string
	UserID      string
	ItemID      string
	Fingerprint string
	Origin      string
	Status      string
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time
	LastError   *string
	Payload     []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether no further automatic transition applies.
func (j SyncJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
