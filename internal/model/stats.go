package model

// ForwardingStats reports how the ingestion path is keeping the cache
// and alarm store populated.
type ForwardingStats struct {
	Devices struct {
		Total  int64 `json:"total"`
		Online int64 `json:"online"`
		AccOn  int64 `json:"acc_on"`
	} `json:"devices"`
	Alarms struct {
		Total  int64 `json:"total"`
		Unread int64 `json:"unread"`
	} `json:"alarms"`
	// Most recent cache write, epoch ms; nil before the first one.
	LatestUpdateMs *int64 `json:"latest_update_ms"`
}

// SystemOverview is the admin dashboard headline.
type SystemOverview struct {
	TotalUsers     int64  `json:"total_users"`
	TotalDevices   int64  `json:"total_devices"`
	OnlineDevices  int64  `json:"online_devices"`
	OfflineDevices int64  `json:"offline_devices"`
	RecentUsers    int64  `json:"recent_users"`
	UnreadAlarms   int64  `json:"unread_alarms"`
	SystemStatus   string `json:"system_status"`
}

// UserSummary is one row of the admin user listing.
type UserSummary struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	FullName    string `json:"full_name,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	Status      int    `json:"status"`
	DeviceCount int64  `json:"device_count"`
	CreatedAt   string `json:"created_at"`
}

// CreateUserRequest registers a new app user (admin only).
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name"`
	IsAdmin  bool   `json:"is_admin"`
}
