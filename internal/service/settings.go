package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"roadapp/api/internal/model"
)

// SettingsService manages push tokens and per-device notification
// subscriptions.
type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// RegisterToken stores a push token for a user, reactivating it if the
// same token was registered before (possibly by another account on a
// shared phone).
func (s *SettingsService) RegisterToken(ctx context.Context, userID int, req *model.RegisterTokenRequest) error {
	now := time.Now()

	var existing model.FCMToken
	err := s.db.WithContext(ctx).Where("fcm_token = ?", req.Token).First(&existing).Error
	if err == nil {
		existing.UserID = userID
		existing.DeviceType = req.DeviceType
		existing.DeviceName = req.DeviceName
		existing.IsActive = true
		existing.LastUsedAt = &now
		return s.db.WithContext(ctx).Save(&existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	token := model.FCMToken{
		UserID:     userID,
		Token:      req.Token,
		DeviceType: req.DeviceType,
		DeviceName: req.DeviceName,
		IsActive:   true,
		LastUsedAt: &now,
	}
	return s.db.WithContext(ctx).Create(&token).Error
}

// DeactivateToken disables a push token on logout.
func (s *SettingsService) DeactivateToken(ctx context.Context, userID int, token string) error {
	return s.db.WithContext(ctx).Model(&model.FCMToken{}).
		Where("user_id = ? AND fcm_token = ?", userID, token).
		Update("is_active", false).Error
}

// GetSettings returns all of a user's notification subscriptions.
func (s *SettingsService) GetSettings(ctx context.Context, userID int) ([]model.NotificationSetting, error) {
	var settings []model.NotificationSetting
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&settings).Error
	return settings, err
}

var validPrefs = map[model.NotificationPreference]bool{
	model.NotifyNone:    true,
	model.NotifyOnOnly:  true,
	model.NotifyOffOnly: true,
	model.NotifyBoth:    true,
}

// UpdateSetting creates or updates one device subscription.
func (s *SettingsService) UpdateSetting(ctx context.Context, userID int, req *model.UpdateNotificationSettingRequest) (*model.NotificationSetting, error) {
	pref := model.NotificationPreference(req.AccPref)
	if req.AccPref == "" {
		pref = model.NotifyBoth
	}
	if !validPrefs[pref] {
		return nil, errors.New("invalid notification preference")
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	var setting model.NotificationSetting
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, req.DeviceID).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = model.NotificationSetting{
			UserID:   userID,
			DeviceID: req.DeviceID,
			AccPref:  pref,
			Language: lang,
		}
		if err := s.db.WithContext(ctx).Create(&setting).Error; err != nil {
			return nil, err
		}
		return &setting, nil
	}
	if err != nil {
		return nil, err
	}

	setting.AccPref = pref
	setting.Language = lang
	if err := s.db.WithContext(ctx).Save(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}
