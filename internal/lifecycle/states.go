package lifecycle

// Kind identifies a resource kind with its own transition table.
type Kind string

const (
	KindDocument     Kind = "document_request"
	KindAnnouncement Kind = "announcement"
	KindPayment      Kind = "payment"
)

// State is a lifecycle tag scoped to a Kind.
type State string

// Document request states.
const (
	DocumentPending   State = "PENDING"
	DocumentApproved  State = "APPROVED"
	DocumentRejected  State = "REJECTED"
	DocumentCompleted State = "COMPLETED"
)

// Announcement states.
const (
	AnnouncementDraft     State = "DRAFT"
	AnnouncementPublished State = "PUBLISHED"
)

// Payment states.
const (
	PaymentPending   State = "PENDING"
	PaymentPaid      State = "PAID"
	PaymentOverdue   State = "OVERDUE"
	PaymentCancelled State = "CANCELLED"
)
