package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadapp/api/internal/model"
)

func TestWantsTransition(t *testing.T) {
	tests := []struct {
		pref  model.NotificationPreference
		accOn bool
		want  bool
	}{
		{model.NotifyBoth, true, true},
		{model.NotifyBoth, false, true},
		{model.NotifyOnOnly, true, true},
		{model.NotifyOnOnly, false, false},
		{model.NotifyOffOnly, true, false},
		{model.NotifyOffOnly, false, true},
		{model.NotifyNone, true, false},
		{model.NotifyNone, false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, wantsTransition(tt.pref, tt.accOn),
			"pref=%s accOn=%v", tt.pref, tt.accOn)
	}
}

func TestHandleAccTransitionFiltersByPreference(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &recordingDispatcher{}
	notify := NewNotificationService(db, dispatcher)
	ctx := context.Background()

	// User 1 wants both directions, user 2 only off, user 3 nothing.
	subscribe(t, db, 1, "D1", model.NotifyBoth, "en")
	require.NoError(t, db.Create(&model.NotificationSetting{
		UserID: 2, DeviceID: "D1", AccPref: model.NotifyOffOnly, Language: "en",
	}).Error)
	require.NoError(t, db.Create(&model.FCMToken{UserID: 2, Token: "token-user2", IsActive: true}).Error)
	require.NoError(t, db.Create(&model.NotificationSetting{
		UserID: 3, DeviceID: "D1", AccPref: model.NotifyNone, Language: "en",
	}).Error)
	require.NoError(t, db.Create(&model.FCMToken{UserID: 3, Token: "token-user3", IsActive: true}).Error)

	delivered := notify.HandleAccTransition(ctx, "D1", true)
	assert.Equal(t, 1, delivered, "only the both-subscriber gets the on transition")

	dispatcher.sent = nil
	delivered = notify.HandleAccTransition(ctx, "D1", false)
	assert.Equal(t, 2, delivered, "both and off_only get the off transition")
}

func TestHandleAccTransitionSkipsInactiveTokens(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &recordingDispatcher{}
	notify := NewNotificationService(db, dispatcher)

	require.NoError(t, db.Create(&model.NotificationSetting{
		UserID: 1, DeviceID: "D1", AccPref: model.NotifyBoth, Language: "en",
	}).Error)
	// Create defaults the token to active, so deactivate it the way the
	// settings service does.
	dead := model.FCMToken{UserID: 1, Token: "token-dead"}
	require.NoError(t, db.Create(&dead).Error)
	require.NoError(t, db.Model(&model.FCMToken{}).Where("id = ?", dead.ID).Update("is_active", false).Error)

	var stored model.FCMToken
	require.NoError(t, db.First(&stored, dead.ID).Error)
	require.False(t, stored.IsActive)

	delivered := notify.HandleAccTransition(context.Background(), "D1", true)
	assert.Equal(t, 0, delivered)
	assert.Empty(t, dispatcher.sent)
}

func TestHandleAccTransitionLocalizes(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &recordingDispatcher{}
	notify := NewNotificationService(db, dispatcher)

	subscribe(t, db, 1, "D1", model.NotifyBoth, "ar")

	delivered := notify.HandleAccTransition(context.Background(), "D1", true)
	assert.Equal(t, 1, delivered)
	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, accMessages["ar"].TitleOn, dispatcher.sent[0].Title)
}

func TestHandleAccTransitionUnknownLanguageFallsBack(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &recordingDispatcher{}
	notify := NewNotificationService(db, dispatcher)

	subscribe(t, db, 1, "D1", model.NotifyBoth, "fr")

	delivered := notify.HandleAccTransition(context.Background(), "D1", false)
	assert.Equal(t, 1, delivered)
	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, accMessages["en"].TitleOff, dispatcher.sent[0].Title)
}
