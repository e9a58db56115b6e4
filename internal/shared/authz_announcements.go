package shared

// Announcement capabilities.
const (
	CapAnnouncementsView    = "view:announcements"
	CapAnnouncementsManage  = "manage:announcements"
	CapAnnouncementsPublish = "publish:announcements"
)

// AnnouncementScopes lists announcement capabilities.
func AnnouncementScopes() []string {
	return []string{
		CapAnnouncementsView,
		CapAnnouncementsManage,
		CapAnnouncementsPublish,
	}
}
