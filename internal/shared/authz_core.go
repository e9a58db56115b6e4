package shared

// Core platform capabilities.
const (
	CapAll = "*"

	CapWargaView    = "view:warga"
	CapWargaManage  = "manage:warga"
	CapFamilyManage = "manage:families"

	CapActivityView = "view:activity-logs"

	// CapBypassVisibility lets moderators read unpublished or untargeted broadcasts.
	CapBypassVisibility = "bypass:visibility"
)

// CoreScopes lists all capabilities related to the core platform.
func CoreScopes() []string {
	return []string{
		CapWargaView,
		CapWargaManage,
		CapFamilyManage,
		CapActivityView,
		CapBypassVisibility,
	}
}
