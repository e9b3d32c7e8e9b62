package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roadapp/api/internal/config"
	"roadapp/api/internal/mdvr"
	"roadapp/api/internal/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection: every pooled connection to :memory: would
	// otherwise get its own empty database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.FCMToken{}, &model.NotificationSetting{},
		&model.Device{}, &model.DeviceCache{}, &model.AlarmEvent{},
	))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		CacheFreshWindow:        5 * time.Minute,
		SchedulerFreshWindow:    10 * time.Minute,
		AutoConfigCheckInterval: time.Minute,
		AutoConfigInitialDelay:  3 * time.Minute,
		AutoConfigRetryDelay:    5 * time.Minute,
	}
}

// fakeVendor scripts the vendor gateway for cache tests.
type fakeVendor struct {
	fix      *model.GpsFix
	err      error
	calls    int
	statuses []mdvr.DeviceState
}

func (v *fakeVendor) LatestGps(ctx context.Context, deviceID string, opts mdvr.ParseOptions) (*model.GpsFix, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.fix, nil
}

func (v *fakeVendor) DeviceStates(ctx context.Context, deviceIDs []string) ([]mdvr.DeviceState, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.statuses, nil
}

func newTestCache(t *testing.T, vendor VendorGateway) (*CacheService, *gorm.DB) {
	db := setupTestDB(t)
	cache := NewCacheService(db, nil, vendor, testConfig())
	return cache, db
}

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool       { return &v }
func ip(v int64) *int64     { return &v }

func TestUpsertCreatesRow(t *testing.T) {
	cache, _ := newTestCache(t, &fakeVendor{})
	ctx := context.Background()

	transition, err := cache.Upsert(ctx, &Observation{
		DeviceID: "D1",
		Latitude: fp(22.64), Longitude: fp(114.14),
		AccOn: bp(true),
	})
	require.NoError(t, err)
	// First observation: previous ACC unknown, no transition inferred.
	assert.False(t, transition.Fired)

	row, err := cache.Get(ctx, "D1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 22.64, *row.Latitude)
	assert.True(t, row.AccOn)
}

func TestUpsertPartialFieldsPreserved(t *testing.T) {
	cache, _ := newTestCache(t, &fakeVendor{})
	ctx := context.Background()

	_, err := cache.Upsert(ctx, &Observation{
		DeviceID: "D1",
		Latitude: fp(22.64), Longitude: fp(114.14),
		SpeedKmh: fp(35),
	})
	require.NoError(t, err)

	// A status-only delta must not wipe the spatial fields.
	_, err = cache.Upsert(ctx, &Observation{DeviceID: "D1", AccOn: bp(true)})
	require.NoError(t, err)

	row, err := cache.Get(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, 22.64, *row.Latitude)
	assert.Equal(t, 35.0, *row.SpeedKmh)
	assert.True(t, row.AccOn)
}

func TestUpsertAccTransition(t *testing.T) {
	cache, _ := newTestCache(t, &fakeVendor{})
	ctx := context.Background()

	_, err := cache.Upsert(ctx, &Observation{DeviceID: "D1", AccOn: bp(false)})
	require.NoError(t, err)

	transition, err := cache.Upsert(ctx, &Observation{DeviceID: "D1", AccOn: bp(true)})
	require.NoError(t, err)
	assert.True(t, transition.Fired)
	assert.True(t, transition.AccOn)

	// Identical repeat: no transition.
	transition, err = cache.Upsert(ctx, &Observation{DeviceID: "D1", AccOn: bp(true)})
	require.NoError(t, err)
	assert.False(t, transition.Fired)

	// Observation without ACC: no transition either way.
	transition, err = cache.Upsert(ctx, &Observation{DeviceID: "D1", SpeedKmh: fp(10)})
	require.NoError(t, err)
	assert.False(t, transition.Fired)
}

func TestFreshnessBoundary(t *testing.T) {
	cache, _ := newTestCache(t, &fakeVendor{})
	now := time.Now()
	cache.now = func() time.Time { return now }

	tests := []struct {
		name  string
		age   time.Duration
		fresh bool
	}{
		{"4:59 is fresh", 4*time.Minute + 59*time.Second, true},
		{"exactly 5:00 is stale", 5 * time.Minute, false},
		{"5:01 is stale", 5*time.Minute + time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := &model.DeviceCache{UpdatedAt: now.Add(-tt.age)}
			assert.Equal(t, tt.fresh, cache.fresh(row, cache.freshWindow))
		})
	}
}

func TestGetStatusFreshCache(t *testing.T) {
	vendor := &fakeVendor{}
	cache, _ := newTestCache(t, vendor)
	ctx := context.Background()

	_, err := cache.Upsert(ctx, &Observation{
		DeviceID: "D1",
		Latitude: fp(22.64), Longitude: fp(114.14),
	})
	require.NoError(t, err)

	status, err := cache.GetStatus(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, model.SourceCache, status.Source)
	assert.Equal(t, 0, vendor.calls, "fresh cache must not hit the vendor")
}

func TestGetStatusStaleRefreshesFromVendor(t *testing.T) {
	vendor := &fakeVendor{fix: &model.GpsFix{
		DeviceID: "D1",
		Latitude: fp(23.0), Longitude: fp(115.0),
		TimestampMs: ip(1700018000000),
	}}
	cache, _ := newTestCache(t, vendor)
	ctx := context.Background()

	_, err := cache.Upsert(ctx, &Observation{DeviceID: "D1", Latitude: fp(22.0), Longitude: fp(114.0)})
	require.NoError(t, err)

	// Age the row past the window.
	base := time.Now()
	cache.now = func() time.Time { return base.Add(6 * time.Minute) }

	status, err := cache.GetStatus(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, model.SourceVendorAPI, status.Source)
	assert.Equal(t, 1, vendor.calls)
	assert.Equal(t, 23.0, *status.Latitude, "vendor result overwrites the row")
}

func TestGetStatusVendorFailureServesStale(t *testing.T) {
	vendor := &fakeVendor{err: fmt.Errorf("%w: connection refused", mdvr.ErrVendorUnavailable)}
	cache, _ := newTestCache(t, vendor)
	ctx := context.Background()

	_, err := cache.Upsert(ctx, &Observation{DeviceID: "D1", Latitude: fp(22.0), Longitude: fp(114.0)})
	require.NoError(t, err)

	base := time.Now()
	cache.now = func() time.Time { return base.Add(6 * time.Minute) }

	status, err := cache.GetStatus(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, model.SourceStaleCache, status.Source)
	assert.Equal(t, 22.0, *status.Latitude)
}

func TestGetStatusUnknownDeviceVendorFailure(t *testing.T) {
	vendor := &fakeVendor{err: fmt.Errorf("%w: connection refused", mdvr.ErrVendorUnavailable)}
	cache, _ := newTestCache(t, vendor)

	_, err := cache.GetStatus(context.Background(), "D9")
	assert.Error(t, err, "no cache row and no vendor: the failure propagates")
}

func TestListStatusesScopesAndTagsProvenance(t *testing.T) {
	vendor := &fakeVendor{}
	cache, _ := newTestCache(t, vendor)
	ctx := context.Background()
	base := time.Now()

	// D1 written 6 minutes ago, D2 just now.
	cache.now = func() time.Time { return base.Add(-6 * time.Minute) }
	_, err := cache.Upsert(ctx, &Observation{DeviceID: "D1", Latitude: fp(22.0), Longitude: fp(114.0)})
	require.NoError(t, err)
	cache.now = func() time.Time { return base }
	_, err = cache.Upsert(ctx, &Observation{DeviceID: "D2", Online: bp(true)})
	require.NoError(t, err)

	statuses, err := cache.ListStatuses(ctx, nil)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, model.SourceStaleCache, statuses[0].Source)
	assert.Equal(t, model.SourceCache, statuses[1].Source)
	assert.Equal(t, 0, vendor.calls, "fleet reads never query the vendor")

	statuses, err = cache.ListStatuses(ctx, []string{"D2"})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "D2", statuses[0].DeviceID)

	statuses, err = cache.ListStatuses(ctx, []string{})
	require.NoError(t, err)
	assert.Empty(t, statuses, "empty scope means no devices, not all devices")
}

func TestTrustedOnline(t *testing.T) {
	cache, _ := newTestCache(t, &fakeVendor{})
	now := time.Now()
	cache.now = func() time.Time { return now }

	assert.False(t, cache.TrustedOnline(nil))
	assert.True(t, cache.TrustedOnline(&model.DeviceCache{AccOn: true, UpdatedAt: now.Add(-9 * time.Minute)}))
	// Inside the fast-path window would be stale for it, but the
	// scheduler window is deliberately coarser.
	assert.True(t, cache.TrustedOnline(&model.DeviceCache{AccOn: true, UpdatedAt: now.Add(-7 * time.Minute)}))
	assert.False(t, cache.TrustedOnline(&model.DeviceCache{AccOn: true, UpdatedAt: now.Add(-10 * time.Minute)}))
	assert.False(t, cache.TrustedOnline(&model.DeviceCache{AccOn: false, UpdatedAt: now}))
}
