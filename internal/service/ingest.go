package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"roadapp/api/internal/mdvr"
	"roadapp/api/internal/model"
)

// Webhook message kinds pushed by the vendor forwarding service.
const (
	msgGpsBatch     = 1
	msgAlarmBatch   = 2
	msgStatusChange = 3
)

type webhookEnvelope struct {
	MsgID int             `json:"msgId"`
	Gps   json.RawMessage `json:"gps"`
	Alarm json.RawMessage `json:"alarm"`
}

type webhookStatusFlags struct {
	Acc    mdvr.Bool       `json:"acc"`
	Online mdvr.OnlineBool `json:"online"`
}

type webhookGpsItem struct {
	DeviceID    string              `json:"deviceId"`
	Latitude    mdvr.Number         `json:"lat"`
	Longitude   mdvr.Number         `json:"lng"`
	Speed       mdvr.Number         `json:"speed"`
	Direction   mdvr.Number         `json:"direction"`
	Altitude    mdvr.Number         `json:"altitude"`
	Time        mdvr.Timestamp      `json:"time"`
	StatusFlags *webhookStatusFlags `json:"statusFlags"`
}

type webhookGpsBatch struct {
	List []webhookGpsItem `json:"list"`
}

type webhookAlarmBase struct {
	DeviceID    string              `json:"deviceId"`
	Latitude    mdvr.Number         `json:"latitude"`
	Longitude   mdvr.Number         `json:"longitude"`
	Speed       mdvr.Number         `json:"speed"`
	Time        mdvr.Timestamp      `json:"time"`
	StatusFlags *webhookStatusFlags `json:"statusFlags"`
	FileCount   int                 `json:"fileCount"`
}

type webhookAlarmEntry struct {
	Category int       `json:"category"`
	Type     int       `json:"type"`
	Status   mdvr.Bool `json:"status"` // active/inactive
}

type webhookAlarmBatch struct {
	Base webhookAlarmBase    `json:"base"`
	List []webhookAlarmEntry `json:"list"`
}

type webhookStatusDelta struct {
	DeviceID  string          `json:"deviceId"`
	AccStatus mdvr.Bool       `json:"accStatus"`
	Online    mdvr.OnlineBool `json:"online"`
}

// locationMessage is the NATS fan-out payload for WebSocket consumers.
type locationMessage struct {
	DeviceID  string   `json:"device_id"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Direction *float64 `json:"direction,omitempty"`
	Timestamp *int64   `json:"timestamp,omitempty"`
	AccOn     *bool    `json:"acc_on,omitempty"`
	Online    *bool    `json:"online,omitempty"`
	Address   string   `json:"address,omitempty"`
}

// IngestService consumes the vendor's forwarding webhook: GPS batches,
// alarm batches and status deltas. Per-item failures are logged and
// skipped; the rest of the batch still lands.
type IngestService struct {
	db       *gorm.DB
	nats     *nats.Conn
	cache    *CacheService
	notify   *NotificationService
	geocoder Geocoder
	ts       *mdvr.TimestampNormalizer
}

func NewIngestService(db *gorm.DB, natsConn *nats.Conn, cache *CacheService, notify *NotificationService, geocoder Geocoder, ts *mdvr.TimestampNormalizer) *IngestService {
	return &IngestService{
		db:       db,
		nats:     natsConn,
		cache:    cache,
		notify:   notify,
		geocoder: geocoder,
		ts:       ts,
	}
}

// Handle dispatches one webhook body by msgId. Unknown kinds are
// logged and dropped; the webhook endpoint acknowledges regardless so
// the vendor does not stall its forwarding queue.
func (s *IngestService) Handle(ctx context.Context, raw []byte) error {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("malformed webhook body: %w", err)
	}
	switch env.MsgID {
	case msgGpsBatch:
		return s.handleGpsBatch(ctx, raw, env.Gps)
	case msgAlarmBatch:
		return s.handleAlarmBatch(ctx, env.Alarm)
	case msgStatusChange:
		return s.handleStatusDelta(ctx, raw)
	default:
		log.Printf("[IngestService] Ignoring unknown msgId %d", env.MsgID)
		return nil
	}
}

func (s *IngestService) handleGpsBatch(ctx context.Context, raw, gps json.RawMessage) error {
	var batch webhookGpsBatch
	if len(gps) > 0 {
		if err := json.Unmarshal(gps, &batch); err != nil {
			return fmt.Errorf("malformed gps batch: %w", err)
		}
	}
	items := batch.List
	if len(items) == 0 {
		// Legacy flat shape: the item fields sit directly on the body.
		var flat webhookGpsItem
		if err := json.Unmarshal(raw, &flat); err == nil && flat.DeviceID != "" {
			items = []webhookGpsItem{flat}
		}
	}

	for i := range items {
		if err := s.applyGpsItem(ctx, &items[i]); err != nil {
			log.Printf("[IngestService] Skipping gps item for %s: %v", items[i].DeviceID, err)
		}
	}
	return nil
}

func (s *IngestService) applyGpsItem(ctx context.Context, item *webhookGpsItem) error {
	if item.DeviceID == "" {
		return fmt.Errorf("missing device ID")
	}
	// Forwarded speeds arrive already in km/h, unlike the query path.
	obs := &Observation{
		DeviceID:     item.DeviceID,
		SpeedKmh:     item.Speed.Ptr(),
		DirectionDeg: item.Direction.Ptr(),
		AltitudeM:    item.Altitude.Ptr(),
		GpsTimeMs:    s.ts.Normalize(item.Time),
	}
	lat := mdvr.DecimalDegrees(item.Latitude)
	lng := mdvr.DecimalDegrees(item.Longitude)
	if lat != nil && lng != nil {
		obs.Latitude, obs.Longitude = lat, lng
		obs.Address = s.geocoder.Reverse(ctx, *lat, *lng)
	}
	if item.StatusFlags != nil {
		obs.AccOn = item.StatusFlags.Acc.Ptr()
	}
	s.markOnline(obs)

	transition, err := s.cache.Upsert(ctx, obs)
	if err != nil {
		return err
	}
	s.publishLocation(item.DeviceID, obs)
	if transition.Fired {
		s.notify.HandleAccTransition(ctx, item.DeviceID, transition.AccOn)
	}
	return nil
}

// markOnline stamps an observation as coming from a live device. A
// device that delivers GPS or alarm traffic is online no matter what
// its status flags claim, and its last-online time moves forward.
func (s *IngestService) markOnline(obs *Observation) {
	online := true
	obs.Online = &online
	if obs.GpsTimeMs != nil {
		obs.LastOnlineMs = obs.GpsTimeMs
	} else {
		now := time.Now().UnixMilli()
		obs.LastOnlineMs = &now
	}
}

func (s *IngestService) handleAlarmBatch(ctx context.Context, alarm json.RawMessage) error {
	var batch webhookAlarmBatch
	if err := json.Unmarshal(alarm, &batch); err != nil {
		return fmt.Errorf("malformed alarm batch: %w", err)
	}
	if batch.Base.DeviceID == "" {
		return fmt.Errorf("alarm batch without device ID")
	}

	tsMs := int64(0)
	if ts := s.ts.Normalize(batch.Base.Time); ts != nil {
		tsMs = *ts
	}
	lat := mdvr.DecimalDegrees(batch.Base.Latitude)
	lng := mdvr.DecimalDegrees(batch.Base.Longitude)

	// The base block doubles as a position observation.
	obs := &Observation{
		DeviceID: batch.Base.DeviceID,
		SpeedKmh: batch.Base.Speed.Ptr(),
	}
	if lat != nil && lng != nil {
		obs.Latitude, obs.Longitude = lat, lng
	}
	if tsMs != 0 {
		obs.GpsTimeMs = &tsMs
	}
	if batch.Base.StatusFlags != nil {
		obs.AccOn = batch.Base.StatusFlags.Acc.Ptr()
	}
	s.markOnline(obs)
	transition, err := s.cache.Upsert(ctx, obs)
	if err != nil {
		log.Printf("[IngestService] Failed to cache alarm base for %s: %v", batch.Base.DeviceID, err)
	} else if transition.Fired {
		s.notify.HandleAccTransition(ctx, batch.Base.DeviceID, transition.AccOn)
	}

	seen := make(map[model.DedupKey]struct{})
	for _, entry := range batch.List {
		// Inactive/cleared alarms are dropped before persistence.
		if !entry.Status.Valid || !entry.Status.Value {
			continue
		}
		typeID := ForwardedTypeID(entry.Category, entry.Type)
		name, severity := ForwardedAlarmType(typeID)
		ev := model.AlarmEvent{
			DeviceID:        batch.Base.DeviceID,
			Family:          model.FamilyForwarded,
			TypeID:          typeID,
			TypeName:        name,
			Severity:        severity,
			TimestampMs:     tsMs,
			AttachmentCount: batch.Base.FileCount,
		}
		if lat != nil && lng != nil {
			ev.Latitude, ev.Longitude = lat, lng
		}
		ev.SpeedKmh = obs.SpeedKmh

		key := ev.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
			log.Printf("[IngestService] Failed to persist alarm %d for %s: %v", typeID, ev.DeviceID, err)
			continue
		}
		s.publishAlarm(&ev)
	}
	return nil
}

func (s *IngestService) handleStatusDelta(ctx context.Context, raw json.RawMessage) error {
	var delta webhookStatusDelta
	if err := json.Unmarshal(raw, &delta); err != nil {
		return fmt.Errorf("malformed status delta: %w", err)
	}
	if delta.DeviceID == "" {
		return fmt.Errorf("status delta without device ID")
	}

	obs := &Observation{
		DeviceID: delta.DeviceID,
		AccOn:    delta.AccStatus.Ptr(),
		Online:   delta.Online.Ptr(),
	}
	transition, err := s.cache.Upsert(ctx, obs)
	if err != nil {
		return err
	}
	s.publishLocation(delta.DeviceID, obs)
	if transition.Fired {
		s.notify.HandleAccTransition(ctx, delta.DeviceID, transition.AccOn)
	}
	return nil
}

func (s *IngestService) publishLocation(deviceID string, obs *Observation) {
	if s.nats == nil {
		return
	}
	msg := locationMessage{
		DeviceID:  deviceID,
		Lat:       obs.Latitude,
		Lon:       obs.Longitude,
		Speed:     obs.SpeedKmh,
		Direction: obs.DirectionDeg,
		Timestamp: obs.GpsTimeMs,
		AccOn:     obs.AccOn,
		Online:    obs.Online,
		Address:   obs.Address,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.nats.Publish("road.uplink.LOCATION", payload); err != nil {
		log.Printf("[IngestService] Failed to publish location for %s: %v", deviceID, err)
	}
}

func (s *IngestService) publishAlarm(ev *model.AlarmEvent) {
	if s.nats == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.nats.Publish("road.alarm.CREATED", payload); err != nil {
		log.Printf("[IngestService] Failed to publish alarm for %s: %v", ev.DeviceID, err)
	}
}
