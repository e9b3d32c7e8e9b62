package model

import (
	"time"
)

// ConfigState is the auto-configuration lifecycle of a device.
// UNCONFIGURED devices become PENDING on a genuine offline→online edge
// and CONFIGURED (terminal) once a configuration command is delivered.
type ConfigState string

const (
	ConfigUnconfigured ConfigState = "unconfigured"
	ConfigPending      ConfigState = "pending"
	ConfigDone         ConfigState = "configured"
)

// Device represents a dashcam/MDVR unit registered on the vendor
// platform and assigned to an app user.
type Device struct {
	ID             int     `json:"id" gorm:"primaryKey"`
	DeviceID       string  `json:"device_id" gorm:"column:device_id;type:varchar(100);not null;uniqueIndex"`
	Name           string  `json:"name" gorm:"type:varchar(200);not null"`
	AssignedUserID *int    `json:"assigned_user_id,omitempty" gorm:"column:assigned_user_id"`
	OrgID          string  `json:"org_id" gorm:"column:org_id;type:varchar(100)"`
	Status         string  `json:"status" gorm:"type:varchar(50);default:'offline'"` // online/offline
	Brand          string  `json:"brand,omitempty" gorm:"type:varchar(100)"`
	Model          string  `json:"model,omitempty" gorm:"type:varchar(100)"`
	PlateNumber    string  `json:"plate_number,omitempty" gorm:"column:plate_number;type:varchar(20)"`

	// Auto-configuration state machine; persisted so the scheduler
	// survives process restarts.
	ConfigState       ConfigState `json:"config_state" gorm:"column:config_state;type:varchar(20);not null;default:'unconfigured';index"`
	ConfigAttempts    int         `json:"config_attempts" gorm:"column:config_attempts;not null;default:0"`
	ConfigLastAttempt *time.Time  `json:"config_last_attempt,omitempty" gorm:"column:config_last_attempt"`
	// Set only on a genuine offline→online edge, never refreshed on
	// repeated polls, so the initial-delay wait cannot be reset.
	LastOnlineAt *time.Time `json:"last_online_at,omitempty" gorm:"column:last_online_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Device) TableName() string {
	return "devices"
}

// DeviceCache is the last-known-truth row for one device, fed by
// vendor webhooks and query results. Rows are created on first
// observation, updated in place, and never deleted.
type DeviceCache struct {
	ID       int    `json:"id" gorm:"primaryKey"`
	DeviceID string `json:"device_id" gorm:"column:device_id;type:varchar(100);not null;uniqueIndex"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	SpeedKmh  *float64 `json:"speed_kmh,omitempty" gorm:"column:speed_kmh"`
	Direction *float64 `json:"direction_deg,omitempty" gorm:"column:direction_deg"`
	Altitude  *float64 `json:"altitude_m,omitempty" gorm:"column:altitude_m"`
	Address   string   `json:"address,omitempty" gorm:"type:text"`

	AccOn  bool `json:"acc_on" gorm:"column:acc_on;not null;default:false"`
	Online bool `json:"is_online" gorm:"column:is_online;not null;default:false"`

	// GPS fix time reported by the device; may be nil when the vendor
	// delivered spatial fields without a usable timestamp.
	GpsTime      *time.Time `json:"gps_time,omitempty" gorm:"column:gps_time"`
	LastOnlineAt *time.Time `json:"last_online_time,omitempty" gorm:"column:last_online_time"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"column:updated_at;not null;index"`
}

func (DeviceCache) TableName() string {
	return "device_cache"
}

// DeviceStatus is the outward status DTO served to the app.
type DeviceStatus struct {
	DeviceID     string   `json:"device_id"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	SpeedKmh     *float64 `json:"speed_kmh,omitempty"`
	DirectionDeg *float64 `json:"direction_deg,omitempty"`
	AltitudeM    *float64 `json:"altitude_m,omitempty"`
	Address      string   `json:"address,omitempty"`
	AccOn        bool     `json:"acc_on"`
	Online       bool     `json:"is_online"`
	TimestampMs  *int64   `json:"timestamp_ms,omitempty"`
	UpdatedAt    int64    `json:"updated_at_ms"`
	Source       Source   `json:"source"`
}

// CreateDeviceRequest registers a device.
type CreateDeviceRequest struct {
	DeviceID    string `json:"device_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	OrgID       string `json:"org_id"`
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	PlateNumber string `json:"plate_number"`
}

// AssignDeviceRequest assigns a device to a user.
type AssignDeviceRequest struct {
	UserID int `json:"user_id" binding:"required"`
}

// DeviceImportColumn describes one column of the bulk-import template.
type DeviceImportColumn struct {
	Name     string
	Field    string
	Required bool
	Example  string
}

// DeviceImportTemplateColumns returns the xlsx template layout for
// bulk device registration.
func DeviceImportTemplateColumns() []DeviceImportColumn {
	return []DeviceImportColumn{
		{Name: "Device ID", Field: "device_id", Required: true, Example: "18260010855"},
		{Name: "Name", Field: "name", Required: true, Example: "Delivery Van 3"},
		{Name: "Org ID", Field: "org_id", Required: false, Example: "437"},
		{Name: "Brand", Field: "brand", Required: false, Example: "DRD"},
		{Name: "Model", Field: "model", Required: false, Example: "X5-Pro"},
		{Name: "Plate Number", Field: "plate_number", Required: false, Example: "ABC-1234"},
	}
}

// DeviceSyncResult summarizes one registry sync against the vendor's
// device inventory.
type DeviceSyncResult struct {
	VendorTotal int      `json:"vendor_total"`
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	CreatedIDs  []string `json:"created_ids,omitempty"`
}

// RegistrySummary is the local registry's assignment breakdown.
type RegistrySummary struct {
	Total      int64 `json:"total"`
	Assigned   int64 `json:"assigned"`
	Unassigned int64 `json:"unassigned"`
}

// DeviceImportRowError is one rejected row of a bulk import.
type DeviceImportRowError struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// DeviceImportResult summarizes a bulk import run.
type DeviceImportResult struct {
	Total    int                    `json:"total"`
	Imported int                    `json:"imported"`
	Skipped  int                    `json:"skipped"`
	Errors   []DeviceImportRowError `json:"errors,omitempty"`
}
