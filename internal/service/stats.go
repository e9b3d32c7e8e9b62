package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"roadapp/api/internal/model"
)

// StatsService aggregates counters for monitoring and the admin
// dashboard. Everything here reads local tables only; no vendor calls.
type StatsService struct {
	db *gorm.DB

	now func() time.Time
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db, now: time.Now}
}

// Forwarding reports how well the webhook feed is keeping the cache
// and alarm store populated.
func (s *StatsService) Forwarding(ctx context.Context) (*model.ForwardingStats, error) {
	stats := &model.ForwardingStats{}

	if err := s.db.WithContext(ctx).Model(&model.DeviceCache{}).Count(&stats.Devices.Total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.DeviceCache{}).
		Where("is_online = ?", true).Count(&stats.Devices.Online).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.DeviceCache{}).
		Where("acc_on = ?", true).Count(&stats.Devices.AccOn).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&model.AlarmEvent{}).Count(&stats.Alarms.Total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.AlarmEvent{}).
		Where("is_read = ?", false).Count(&stats.Alarms.Unread).Error; err != nil {
		return nil, err
	}

	var latest model.DeviceCache
	err := s.db.WithContext(ctx).Order("updated_at DESC").First(&latest).Error
	if err == nil {
		ms := latest.UpdatedAt.UnixMilli()
		stats.LatestUpdateMs = &ms
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return stats, nil
}

// Overview builds the admin dashboard headline from the local registry
// and cache. Device liveness comes from cached webhook state, so the
// numbers stay meaningful even when the vendor is down.
func (s *StatsService) Overview(ctx context.Context) (*model.SystemOverview, error) {
	overview := &model.SystemOverview{SystemStatus: "operational"}

	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&overview.TotalUsers).Error; err != nil {
		return nil, err
	}
	weekAgo := s.now().AddDate(0, 0, -7)
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("created_at >= ?", weekAgo).Count(&overview.RecentUsers).Error; err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&model.Device{}).Count(&overview.TotalDevices).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.DeviceCache{}).
		Where("is_online = ?", true).Count(&overview.OnlineDevices).Error; err != nil {
		return nil, err
	}
	overview.OfflineDevices = overview.TotalDevices - overview.OnlineDevices
	if overview.OfflineDevices < 0 {
		overview.OfflineDevices = 0
	}

	if err := s.db.WithContext(ctx).Model(&model.AlarmEvent{}).
		Where("is_read = ?", false).Count(&overview.UnreadAlarms).Error; err != nil {
		return nil, err
	}
	return overview, nil
}

// ListUsers pages all user accounts with their device counts.
func (s *StatsService) ListUsers(ctx context.Context, page, pageSize int) ([]model.UserSummary, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []model.User
	err := s.db.WithContext(ctx).
		Order("id").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]model.UserSummary, 0, len(users))
	for _, u := range users {
		var deviceCount int64
		if err := s.db.WithContext(ctx).Model(&model.Device{}).
			Where("assigned_user_id = ?", u.ID).Count(&deviceCount).Error; err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, model.UserSummary{
			ID:          u.ID,
			Username:    u.Username,
			FullName:    u.FullName,
			IsAdmin:     u.IsAdmin,
			Status:      u.Status,
			DeviceCount: deviceCount,
			CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return summaries, total, nil
}
