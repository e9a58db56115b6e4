package shared

// Document request capabilities. Approve and reject are deliberately separate.
const (
	CapDocumentsView     = "view:documents"
	CapDocumentsRequest  = "request:documents"
	CapDocumentsApprove  = "approve:documents"
	CapDocumentsReject   = "reject:documents"
	CapDocumentsComplete = "complete:documents"
)

// DocumentScopes lists document capabilities.
func DocumentScopes() []string {
	return []string{
		CapDocumentsView,
		CapDocumentsRequest,
		CapDocumentsApprove,
		CapDocumentsReject,
		CapDocumentsComplete,
	}
}
