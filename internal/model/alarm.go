package model

import (
	"encoding/json"
	"time"
)

// AlarmFamily identifies which of the vendor's independent alarm
// encodings an event was decoded from.
type AlarmFamily string

const (
	// FamilyPlatform is the ~30-entry platform alarm flag map.
	FamilyPlatform AlarmFamily = "platform"
	// FamilyADAS is the driver-assistance event-code sub-object.
	FamilyADAS AlarmFamily = "adas"
	// FamilyVideoFault is the video/storage fault flag map.
	FamilyVideoFault AlarmFamily = "video_fault"
	// FamilyBehavior is the driver-behavior flag map.
	FamilyBehavior AlarmFamily = "behavior"
	// FamilyForwarded is the webhook forwarding path. Its 6-digit type
	// codes are a parallel taxonomy, not a variant of the query-path
	// families, and are never merged with them.
	FamilyForwarded AlarmFamily = "forwarded"
)

// Severity is the canonical alarm severity.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlarmEvent is one classified alarm occurrence. Within a single
// ingestion batch at most one event exists per (family, typeId,
// timestampMs); identical repeats collapse before persistence.
type AlarmEvent struct {
	ID       int         `json:"id" gorm:"primaryKey"`
	DeviceID string      `json:"device_id" gorm:"column:device_id;type:varchar(100);not null;index"`
	Family   AlarmFamily `json:"family" gorm:"type:varchar(20);not null"`
	TypeID   int         `json:"type_id" gorm:"column:type_id;not null"`
	TypeName string      `json:"type_name" gorm:"column:type_name;type:varchar(100)"`
	Severity Severity    `json:"severity" gorm:"type:varchar(10);not null;default:'info'"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	SpeedKmh  *float64 `json:"speed_kmh,omitempty" gorm:"column:speed_kmh"`

	TimestampMs     int64           `json:"timestamp_ms" gorm:"column:timestamp_ms;not null;index"`
	AttachmentCount int             `json:"attachment_count" gorm:"column:attachment_count;not null;default:0"`
	Raw             json.RawMessage `json:"-" gorm:"column:raw;type:jsonb"`

	IsRead         bool       `json:"is_read" gorm:"column:is_read;not null;default:false"`
	IsAcknowledged bool       `json:"is_acknowledged" gorm:"column:is_acknowledged;not null;default:false"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" gorm:"column:acknowledged_at"`
	CreatedAt      time.Time  `json:"created_at" gorm:"not null"`
}

func (AlarmEvent) TableName() string {
	return "alarm_events"
}

// DedupKey collapses duplicate observations of the same alarm within
// one ingestion batch.
type DedupKey struct {
	Family      AlarmFamily
	TypeID      int
	TimestampMs int64
}

// Key returns the event's dedup key.
func (a *AlarmEvent) Key() DedupKey {
	return DedupKey{Family: a.Family, TypeID: a.TypeID, TimestampMs: a.TimestampMs}
}

// AlarmListResponse pages alarm events for the app.
type AlarmListResponse struct {
	DeviceID string       `json:"device_id"`
	Count    int          `json:"count"`
	Alarms   []AlarmEvent `json:"alarms"`
}

// AlarmSummary aggregates a classification run by severity.
type AlarmSummary struct {
	DeviceID      string       `json:"device_id"`
	TotalAlarms   int          `json:"total_alarms"`
	CriticalCount int          `json:"critical_count"`
	WarningCount  int          `json:"warning_count"`
	InfoCount     int          `json:"info_count"`
	Alarms        []AlarmEvent `json:"alarms"`
}
