package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadapp/api/internal/model"
)

func TestForwardingStatsEmpty(t *testing.T) {
	svc := NewStatsService(setupTestDB(t))

	stats, err := svc.Forwarding(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Devices.Total)
	assert.Equal(t, int64(0), stats.Alarms.Total)
	assert.Nil(t, stats.LatestUpdateMs, "no cache writes yet, no latest update")
}

func TestForwardingStatsCounts(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStatsService(db)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour).UTC()
	newest := time.Now().UTC()
	require.NoError(t, db.Create(&model.DeviceCache{
		DeviceID: "D1", Online: true, AccOn: true, UpdatedAt: older,
	}).Error)
	require.NoError(t, db.Create(&model.DeviceCache{
		DeviceID: "D2", Online: true, AccOn: false, UpdatedAt: newest,
	}).Error)
	require.NoError(t, db.Create(&model.DeviceCache{
		DeviceID: "D3", Online: false, AccOn: false, UpdatedAt: older,
	}).Error)

	require.NoError(t, db.Create(&model.AlarmEvent{
		DeviceID: "D1", Family: model.FamilyForwarded, TypeID: 100001,
		Severity: model.SeverityWarning, TimestampMs: 1700018000000,
	}).Error)
	require.NoError(t, db.Create(&model.AlarmEvent{
		DeviceID: "D1", Family: model.FamilyForwarded, TypeID: 100002,
		Severity: model.SeverityInfo, TimestampMs: 1700018001000, IsRead: true,
	}).Error)

	stats, err := svc.Forwarding(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Devices.Total)
	assert.Equal(t, int64(2), stats.Devices.Online)
	assert.Equal(t, int64(1), stats.Devices.AccOn)
	assert.Equal(t, int64(2), stats.Alarms.Total)
	assert.Equal(t, int64(1), stats.Alarms.Unread)
	require.NotNil(t, stats.LatestUpdateMs)
	assert.Equal(t, newest.UnixMilli(), *stats.LatestUpdateMs)
}

func TestOverviewCounts(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStatsService(db)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	require.NoError(t, db.Create(&model.User{
		Username: "old", Password: "x", Status: 1, CreatedAt: base.AddDate(0, 0, -30),
	}).Error)
	require.NoError(t, db.Create(&model.User{
		Username: "fresh", Password: "x", Status: 1, CreatedAt: base.AddDate(0, 0, -2),
	}).Error)

	require.NoError(t, db.Create(&model.Device{DeviceID: "D1", Name: "Van 1", ConfigState: model.ConfigUnconfigured}).Error)
	require.NoError(t, db.Create(&model.Device{DeviceID: "D2", Name: "Van 2", ConfigState: model.ConfigUnconfigured}).Error)
	require.NoError(t, db.Create(&model.DeviceCache{DeviceID: "D1", Online: true, UpdatedAt: base}).Error)

	require.NoError(t, db.Create(&model.AlarmEvent{
		DeviceID: "D1", Family: model.FamilyForwarded, TypeID: 110001,
		Severity: model.SeverityCritical, TimestampMs: 1700018000000,
	}).Error)

	overview, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), overview.TotalUsers)
	assert.Equal(t, int64(1), overview.RecentUsers)
	assert.Equal(t, int64(2), overview.TotalDevices)
	assert.Equal(t, int64(1), overview.OnlineDevices)
	assert.Equal(t, int64(1), overview.OfflineDevices)
	assert.Equal(t, int64(1), overview.UnreadAlarms)
	assert.Equal(t, "operational", overview.SystemStatus)
}

func TestListUsersWithDeviceCounts(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStatsService(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.User{Username: "alice", Password: "x", Status: 1}).Error)
	require.NoError(t, db.Create(&model.User{Username: "bob", Password: "x", Status: 1}).Error)

	var alice model.User
	require.NoError(t, db.Where("username = ?", "alice").First(&alice).Error)
	require.NoError(t, db.Create(&model.Device{
		DeviceID: "D1", Name: "Van 1", AssignedUserID: &alice.ID, ConfigState: model.ConfigUnconfigured,
	}).Error)
	require.NoError(t, db.Create(&model.Device{
		DeviceID: "D2", Name: "Van 2", AssignedUserID: &alice.ID, ConfigState: model.ConfigUnconfigured,
	}).Error)

	users, total, err := svc.ListUsers(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, int64(2), users[0].DeviceCount)
	assert.Equal(t, int64(0), users[1].DeviceCount)

	// Second page is empty but the total is unchanged.
	users, total, err = svc.ListUsers(ctx, 2, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Empty(t, users)
}
