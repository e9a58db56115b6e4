package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rukunwarga/rukun/internal/bulk"
	"github.com/rukunwarga/rukun/internal/lifecycle"
)

// Payment is one dues or levy obligation of a resident.
type Payment struct {
	ID          string
	WargaID     string
	Type        string
	Amount      decimal.Decimal
	Description string
	DueDate     time.Time
	Status      lifecycle.State
	PaidAt      *time.Time
	CreatedAt   time.Time
}

// GenerateInput asks for one payment per eligible resident.
type GenerateInput struct {
	Template bulk.Template
	// IdempotencyKey, when set, makes a repeated run fail with a conflict
	// instead of duplicating every record.
	IdempotencyKey string
}

// BulkResult reports a bulk run.
type BulkResult struct {
	Affected int `json:"affected"`
	Excluded int `json:"excluded"`
}
