package announcements

import (
	"time"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/visibility"
)

// Announcement is a broadcast to a computed audience of residents.
type Announcement struct {
	ID          string
	Title       string
	Body        string
	Status      lifecycle.State
	AuthorID    string
	ExpiresAt   *time.Time
	PublishedAt *time.Time
	Recipients  []visibility.Recipient
	CreatedAt   time.Time
}

// Broadcast returns the visibility-relevant view.
func (a Announcement) Broadcast() visibility.Broadcast {
	return visibility.Broadcast{
		Published:  a.Status == lifecycle.AnnouncementPublished,
		ExpiresAt:  a.ExpiresAt,
		Recipients: a.Recipients,
	}
}

// CreateInput describes a new draft.
type CreateInput struct {
	Title      string                 `json:"title" validate:"required,max=200"`
	Body       string                 `json:"body" validate:"required,max=10000"`
	ExpiresAt  *time.Time             `json:"expires_at"`
	Recipients []visibility.Recipient `json:"recipients" validate:"max=100"`
}
