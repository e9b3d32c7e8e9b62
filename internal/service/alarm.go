package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"roadapp/api/internal/model"
)

// AlarmQuery scopes an alarm listing.
type AlarmQuery struct {
	DeviceID   string
	Family     model.AlarmFamily
	Severity   model.Severity
	UnreadOnly bool
	StartMs    int64
	EndMs      int64
	Page       int
	PageSize   int
}

// VendorAlarmSource is the slice of the vendor client the alarm
// service uses for on-demand history queries.
type VendorAlarmSource interface {
	VehicleAlarms(ctx context.Context, deviceID string, startMs, endMs int64) (*model.AlarmSummary, error)
}

// AlarmService serves stored alarm events and proxies on-demand
// vendor alarm history.
type AlarmService struct {
	db     *gorm.DB
	vendor VendorAlarmSource
}

func NewAlarmService(db *gorm.DB, vendor VendorAlarmSource) *AlarmService {
	return &AlarmService{db: db, vendor: vendor}
}

// List returns a page of stored alarm events, newest first.
func (s *AlarmService) List(ctx context.Context, q *AlarmQuery) (*model.AlarmListResponse, error) {
	query := s.db.WithContext(ctx).Model(&model.AlarmEvent{}).Where("device_id = ?", q.DeviceID)
	if q.Family != "" {
		query = query.Where("family = ?", q.Family)
	}
	if q.Severity != "" {
		query = query.Where("severity = ?", q.Severity)
	}
	if q.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if q.StartMs > 0 {
		query = query.Where("timestamp_ms >= ?", q.StartMs)
	}
	if q.EndMs > 0 {
		query = query.Where("timestamp_ms <= ?", q.EndMs)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var alarms []model.AlarmEvent
	if err := query.Order("timestamp_ms DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&alarms).Error; err != nil {
		return nil, err
	}
	return &model.AlarmListResponse{
		DeviceID: q.DeviceID,
		Count:    len(alarms),
		Alarms:   alarms,
	}, nil
}

// MarkRead marks a set of alarms read for one device.
func (s *AlarmService) MarkRead(ctx context.Context, deviceID string, ids []int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Model(&model.AlarmEvent{}).
		Where("device_id = ? AND id IN ?", deviceID, ids).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

// Acknowledge acknowledges one alarm.
func (s *AlarmService) Acknowledge(ctx context.Context, deviceID string, id int) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&model.AlarmEvent{}).
		Where("device_id = ? AND id = ?", deviceID, id).
		Updates(map[string]any{"is_acknowledged": true, "acknowledged_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("alarm not found")
	}
	return nil
}

// VendorHistory queries the vendor alarm list for a time range and
// returns the classified summary without persisting it.
func (s *AlarmService) VendorHistory(ctx context.Context, deviceID string, startMs, endMs int64) (*model.AlarmSummary, error) {
	return s.vendor.VehicleAlarms(ctx, deviceID, startMs, endMs)
}

// Summary aggregates stored alarms by severity over a time range.
func (s *AlarmService) Summary(ctx context.Context, deviceID string, startMs, endMs int64) (*model.AlarmSummary, error) {
	query := s.db.WithContext(ctx).Model(&model.AlarmEvent{}).Where("device_id = ?", deviceID)
	if startMs > 0 {
		query = query.Where("timestamp_ms >= ?", startMs)
	}
	if endMs > 0 {
		query = query.Where("timestamp_ms <= ?", endMs)
	}

	type row struct {
		Severity model.Severity
		Count    int
	}
	var rows []row
	if err := query.Select("severity, count(*) as count").Group("severity").Scan(&rows).Error; err != nil {
		return nil, err
	}

	summary := &model.AlarmSummary{DeviceID: deviceID}
	for _, r := range rows {
		summary.TotalAlarms += r.Count
		switch r.Severity {
		case model.SeverityCritical:
			summary.CriticalCount += r.Count
		case model.SeverityWarning:
			summary.WarningCount += r.Count
		default:
			summary.InfoCount += r.Count
		}
	}
	return summary, nil
}
