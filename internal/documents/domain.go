package documents

import (
	"time"

	"github.com/rukunwarga/rukun/internal/lifecycle"
)

// Request is a resident's request for an administrative letter
// (surat pengantar, domisili, keterangan usaha, ...).
type Request struct {
	ID           string
	RequesterID  string
	WargaID      string
	Type         string
	Purpose      string
	Status       lifecycle.State
	RejectReason string
	ReviewedBy   string
	ReviewedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SubmitInput describes a new request.
type SubmitInput struct {
	WargaID string `json:"warga_id" validate:"required,max=64"`
	Type    string `json:"type" validate:"required,max=64"`
	Purpose string `json:"purpose" validate:"required,max=500"`
}

// ReviewInput moves a request to Target. Reason is mandatory for rejections.
type ReviewInput struct {
	Target lifecycle.State `json:"status" validate:"required"`
	Reason string          `json:"reason" validate:"max=1000"`
}
