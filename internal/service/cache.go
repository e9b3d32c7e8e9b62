package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"roadapp/api/internal/config"
	"roadapp/api/internal/mdvr"
	"roadapp/api/internal/model"
)

// VendorGateway is the slice of the vendor client the cache needs for
// its fallback path.
type VendorGateway interface {
	LatestGps(ctx context.Context, deviceID string, opts mdvr.ParseOptions) (*model.GpsFix, error)
	DeviceStates(ctx context.Context, deviceIDs []string) ([]mdvr.DeviceState, error)
}

// Observation is one inbound partial view of a device, from a webhook
// message or a vendor query result. Nil fields are left untouched on
// upsert.
type Observation struct {
	DeviceID     string
	Latitude     *float64
	Longitude    *float64
	SpeedKmh     *float64
	DirectionDeg *float64
	AltitudeM    *float64
	Address      string
	AccOn        *bool
	Online       *bool
	GpsTimeMs    *int64
	LastOnlineMs *int64
}

// AccTransition reports whether an upsert flipped the cached ACC state.
// A row created by the upsert never fires: the previous state was
// unknown, and no transition is inferred from unknown state.
type AccTransition struct {
	Fired bool
	AccOn bool
}

// CacheService is the per-device last-known-truth cache. Rows live in
// Postgres with a Redis shadow for WebSocket consumers; the freshness
// windows decide when a row may be served without a vendor call.
type CacheService struct {
	db     *gorm.DB
	redis  *redis.Client
	vendor VendorGateway

	freshWindow     time.Duration
	schedulerWindow time.Duration

	now func() time.Time
}

func NewCacheService(db *gorm.DB, redisClient *redis.Client, vendor VendorGateway, cfg *config.Config) *CacheService {
	return &CacheService{
		db:              db,
		redis:           redisClient,
		vendor:          vendor,
		freshWindow:     cfg.CacheFreshWindow,
		schedulerWindow: cfg.SchedulerFreshWindow,
		now:             time.Now,
	}
}

// fresh reports whether a row is inside the given window. Age exactly
// equal to the window counts as stale.
func (s *CacheService) fresh(row *model.DeviceCache, window time.Duration) bool {
	return s.now().Sub(row.UpdatedAt) < window
}

// Upsert applies a partial observation to the device's cache row,
// creating the row on first observation. Every upsert refreshes
// updatedAt regardless of which fields the observation carries.
func (s *CacheService) Upsert(ctx context.Context, obs *Observation) (AccTransition, error) {
	var transition AccTransition
	if obs.DeviceID == "" {
		return transition, errors.New("observation without device ID")
	}

	var row model.DeviceCache
	err := s.db.WithContext(ctx).Where("device_id = ?", obs.DeviceID).First(&row).Error
	created := false
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.DeviceCache{DeviceID: obs.DeviceID}
		created = true
	} else if err != nil {
		return transition, err
	}

	if obs.Latitude != nil && obs.Longitude != nil {
		row.Latitude = obs.Latitude
		row.Longitude = obs.Longitude
	}
	if obs.SpeedKmh != nil {
		row.SpeedKmh = obs.SpeedKmh
	}
	if obs.DirectionDeg != nil {
		row.Direction = obs.DirectionDeg
	}
	if obs.AltitudeM != nil {
		row.Altitude = obs.AltitudeM
	}
	if obs.Address != "" {
		row.Address = obs.Address
	}
	if obs.GpsTimeMs != nil {
		t := time.UnixMilli(*obs.GpsTimeMs).UTC()
		row.GpsTime = &t
	}
	if obs.LastOnlineMs != nil {
		t := time.UnixMilli(*obs.LastOnlineMs).UTC()
		row.LastOnlineAt = &t
	}
	if obs.Online != nil {
		row.Online = *obs.Online
	}
	if obs.AccOn != nil {
		if !created && row.AccOn != *obs.AccOn {
			transition = AccTransition{Fired: true, AccOn: *obs.AccOn}
		}
		row.AccOn = *obs.AccOn
	}
	row.UpdatedAt = s.now()

	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		// Not retried; the next observation re-derives the row.
		return AccTransition{}, err
	}
	s.mirrorShadow(ctx, &row)
	return transition, nil
}

// mirrorShadow writes the row to Redis for WebSocket fan-out readers.
func (s *CacheService) mirrorShadow(ctx context.Context, row *model.DeviceCache) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return
	}
	key := fmt.Sprintf("road:shadow:%s", row.DeviceID)
	if err := s.redis.Set(ctx, key, payload, 24*time.Hour).Err(); err != nil {
		log.Printf("[CacheService] Failed to mirror shadow for %s: %v", row.DeviceID, err)
	}
}

// Get returns the raw cache row, or nil when the device has never been
// observed.
func (s *CacheService) Get(ctx context.Context, deviceID string) (*model.DeviceCache, error) {
	var row model.DeviceCache
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListStatuses serves cache rows for many devices in one read. Unlike
// GetStatus there is no vendor fallback: a fleet view tolerates stale
// rows, and a per-device vendor query storm would not. Each row is
// tagged cache or stale_cache by the fast-path window. A nil deviceIDs
// slice means all cached devices.
func (s *CacheService) ListStatuses(ctx context.Context, deviceIDs []string) ([]model.DeviceStatus, error) {
	var rows []model.DeviceCache
	query := s.db.WithContext(ctx).Order("device_id")
	if deviceIDs != nil {
		if len(deviceIDs) == 0 {
			return []model.DeviceStatus{}, nil
		}
		query = query.Where("device_id IN ?", deviceIDs)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	statuses := make([]model.DeviceStatus, 0, len(rows))
	for i := range rows {
		source := model.SourceCache
		if !s.fresh(&rows[i], s.freshWindow) {
			source = model.SourceStaleCache
		}
		statuses = append(statuses, *s.statusFromRow(&rows[i], source))
	}
	return statuses, nil
}

// GetStatus serves a device's status with the freshness policy: a row
// inside the fast-path window is returned directly; otherwise one
// vendor query refreshes it, and on vendor failure the stale row is
// still served with a stale_cache provenance tag.
func (s *CacheService) GetStatus(ctx context.Context, deviceID string) (*model.DeviceStatus, error) {
	row, err := s.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if row != nil && s.fresh(row, s.freshWindow) {
		return s.statusFromRow(row, model.SourceCache), nil
	}

	fix, vendorErr := s.vendor.LatestGps(ctx, deviceID, mdvr.ParseOptions{DialectBOnly: true})
	if vendorErr == nil {
		obs := &Observation{
			DeviceID:     deviceID,
			Latitude:     fix.Latitude,
			Longitude:    fix.Longitude,
			SpeedKmh:     fix.SpeedKmh,
			DirectionDeg: fix.DirectionDeg,
			AltitudeM:    fix.AltitudeM,
			GpsTimeMs:    fix.TimestampMs,
		}
		if _, err := s.Upsert(ctx, obs); err != nil {
			log.Printf("[CacheService] Failed to cache vendor result for %s: %v", deviceID, err)
		}
		refreshed, err := s.Get(ctx, deviceID)
		if err == nil && refreshed != nil {
			return s.statusFromRow(refreshed, model.SourceVendorAPI), nil
		}
		return s.statusFromFix(fix), nil
	}

	if row != nil {
		log.Printf("[CacheService] Vendor unavailable for %s, serving stale cache: %v", deviceID, vendorErr)
		return s.statusFromRow(row, model.SourceStaleCache), nil
	}
	return nil, vendorErr
}

func (s *CacheService) statusFromRow(row *model.DeviceCache, source model.Source) *model.DeviceStatus {
	st := &model.DeviceStatus{
		DeviceID:     row.DeviceID,
		Latitude:     row.Latitude,
		Longitude:    row.Longitude,
		SpeedKmh:     row.SpeedKmh,
		DirectionDeg: row.Direction,
		AltitudeM:    row.Altitude,
		Address:      row.Address,
		AccOn:        row.AccOn,
		Online:       row.Online,
		UpdatedAt:    row.UpdatedAt.UnixMilli(),
		Source:       source,
	}
	if row.GpsTime != nil {
		ms := row.GpsTime.UnixMilli()
		st.TimestampMs = &ms
	}
	return st
}

func (s *CacheService) statusFromFix(fix *model.GpsFix) *model.DeviceStatus {
	return &model.DeviceStatus{
		DeviceID:     fix.DeviceID,
		Latitude:     fix.Latitude,
		Longitude:    fix.Longitude,
		SpeedKmh:     fix.SpeedKmh,
		DirectionDeg: fix.DirectionDeg,
		AltitudeM:    fix.AltitudeM,
		Address:      fix.Address,
		TimestampMs:  fix.TimestampMs,
		UpdatedAt:    s.now().UnixMilli(),
		Source:       model.SourceVendorAPI,
	}
}

// TrustedOnline reports whether the scheduler may treat the device as
// genuinely live. The coarser window deliberately skips devices whose
// liveness is in doubt rather than risk commanding an offline one.
func (s *CacheService) TrustedOnline(row *model.DeviceCache) bool {
	return row != nil && row.AccOn && s.fresh(row, s.schedulerWindow)
}
