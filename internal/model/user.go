package model

import (
	"time"
)

// User represents an app user account.
type User struct {
	ID        int       `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"type:varchar(100);not null;uniqueIndex"`
	Password  string    `json:"-" gorm:"type:varchar(200);not null"`
	FullName  string    `json:"full_name,omitempty" gorm:"column:full_name;type:varchar(200)"`
	IsAdmin   bool      `json:"is_admin" gorm:"column:is_admin;not null;default:false"`
	Status    int       `json:"status" gorm:"default:1"` // 0: inactive, 1: active
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string {
	return "users"
}

// NotificationPreference controls which ACC transitions a subscriber
// wants to be notified about.
type NotificationPreference string

const (
	NotifyNone    NotificationPreference = "none"
	NotifyOnOnly  NotificationPreference = "on_only"
	NotifyOffOnly NotificationPreference = "off_only"
	NotifyBoth    NotificationPreference = "both"
)

// FCMToken stores one push token for a user's phone or tablet. A user
// can hold several active tokens at once.
type FCMToken struct {
	ID         int        `json:"id" gorm:"primaryKey"`
	UserID     int        `json:"user_id" gorm:"column:user_id;not null;index"`
	Token      string     `json:"-" gorm:"column:fcm_token;type:varchar(500);not null;uniqueIndex"`
	DeviceType string     `json:"device_type,omitempty" gorm:"column:device_type;type:varchar(50)"` // ios, android, web
	DeviceName string     `json:"device_name,omitempty" gorm:"column:device_name;type:varchar(200)"`
	IsActive   bool       `json:"is_active" gorm:"column:is_active;not null;default:true"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"column:last_used_at"`
	CreatedAt  time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"not null"`
}

func (FCMToken) TableName() string {
	return "fcm_tokens"
}

// NotificationSetting is a per-user, per-device subscription to ACC
// state-change notifications.
type NotificationSetting struct {
	ID        int                    `json:"id" gorm:"primaryKey"`
	UserID    int                    `json:"user_id" gorm:"column:user_id;not null;index"`
	DeviceID  string                 `json:"device_id" gorm:"column:device_id;type:varchar(100);not null;index"`
	AccPref   NotificationPreference `json:"acc_notification" gorm:"column:acc_notification;type:varchar(20);not null;default:'both'"`
	Language  string                 `json:"language" gorm:"type:varchar(10);not null;default:'en'"`
	CreatedAt time.Time              `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time              `json:"updated_at" gorm:"not null"`
}

func (NotificationSetting) TableName() string {
	return "user_notification_settings"
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued JWT.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterTokenRequest registers an FCM token for the current user.
type RegisterTokenRequest struct {
	Token      string `json:"fcm_token" binding:"required,min=10"`
	DeviceType string `json:"device_type"`
	DeviceName string `json:"device_name"`
}

// UpdateNotificationSettingRequest updates the ACC notification
// preference for one device.
type UpdateNotificationSettingRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	AccPref  string `json:"acc_notification"`
	Language string `json:"language"`
}
