package mdvr

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"roadapp/api/internal/model"
)

// Dialect identifies which of the vendor's GPS payload shapes a
// response uses.
type Dialect int

const (
	DialectUnknown Dialect = iota
	// DialectA is the legacy flat-array shape: data.gpsInfo[] with
	// scaled integer coordinates.
	DialectA
	// DialectB is the per-device list shape: data.list[] with a nested
	// gps sub-object carrying decimal coordinates.
	DialectB
)

// ParseOptions tune latest-fix parsing for deployments where parts of
// the vendor feed are known unreliable.
type ParseOptions struct {
	// DialectBOnly disables the dialect A fallback entirely.
	DialectBOnly bool
	// PreferLastOnline forces dialect B's lastOnlineTime as the fix
	// timestamp, ignoring the per-fix time field. Sleeping devices
	// report frozen fix times, so some deployments trust only the
	// platform-side last-seen value.
	PreferLastOnline bool
}

type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// success codes vary by endpoint generation.
func (e *envelope) ok() bool {
	return e.Code == nil || *e.Code == 200 || *e.Code == 0
}

type dialectAPoint struct {
	Latitude  Number    `json:"latitude"`
	Longitude Number    `json:"longitude"`
	Speed     Number    `json:"speed"`
	Direction Number    `json:"direction"`
	Height    Number    `json:"height"`
	Time      Timestamp `json:"time"`
}

type dialectAData struct {
	GpsInfo []dialectAPoint `json:"gpsInfo"`
	Points  []dialectAPoint `json:"points"`
}

type dialectBGps struct {
	Lat       Number    `json:"lat"`
	Lng       Number    `json:"lng"`
	Speed     Number    `json:"speed"`
	Direction Number    `json:"direction"`
	Altitude  Number    `json:"altitude"`
	Time      Timestamp `json:"time"`
}

type dialectBEntry struct {
	DeviceID       string       `json:"deviceId"`
	Gps            *dialectBGps `json:"gps"`
	LastOnlineTime Timestamp    `json:"lastOnlineTime"`
}

type dialectBData struct {
	List []dialectBEntry `json:"list"`
}

// GPSParser decodes the vendor's two GPS dialects into canonical fixes
// and tracks.
type GPSParser struct {
	ts *TimestampNormalizer
}

func NewGPSParser(ts *TimestampNormalizer) *GPSParser {
	return &GPSParser{ts: ts}
}

// DetectDialect inspects a payload and reports which shape it carries.
func DetectDialect(data json.RawMessage) Dialect {
	var probe struct {
		List    json.RawMessage `json:"list"`
		GpsInfo json.RawMessage `json:"gpsInfo"`
		Points  json.RawMessage `json:"points"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return DialectUnknown
	}
	if len(probe.List) > 0 {
		return DialectB
	}
	if len(probe.GpsInfo) > 0 || len(probe.Points) > 0 {
		return DialectA
	}
	return DialectUnknown
}

// ParseLatest extracts the latest fix for one device from a vendor
// response that may be either dialect. Dialect B is tried first by
// exact device-ID match; dialect A, which carries no device IDs, is
// assumed to be a single-device response. Returns ErrNoData (with a
// reason) when the response holds nothing usable for the device.
func (p *GPSParser) ParseLatest(raw []byte, deviceID string, opts ParseOptions) (*model.GpsFix, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed gps response: %v", ErrNoData, err)
	}
	if !env.ok() {
		return nil, fmt.Errorf("%w: vendor code %d: %s", ErrNoData, *env.Code, env.Message)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrNoData)
	}

	switch DetectDialect(env.Data) {
	case DialectB:
		var data dialectBData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: malformed dialect B data: %v", ErrNoData, err)
		}
		for i := range data.List {
			if data.List[i].DeviceID == deviceID {
				return p.fixFromDialectB(&data.List[i], opts), nil
			}
		}
		return nil, fmt.Errorf("%w: device %s not in response", ErrNoData, deviceID)
	case DialectA:
		if opts.DialectBOnly {
			return nil, fmt.Errorf("%w: dialect A response with dialect B required", ErrNoData)
		}
		var data dialectAData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: malformed dialect A data: %v", ErrNoData, err)
		}
		points := data.GpsInfo
		if len(points) == 0 {
			points = data.Points
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("%w: no points", ErrNoData)
		}
		// The vendor returns this list newest-first.
		return p.fixFromDialectA(deviceID, &points[0]), nil
	default:
		return nil, fmt.Errorf("%w: unrecognized gps payload shape", ErrNoData)
	}
}

func (p *GPSParser) fixFromDialectB(entry *dialectBEntry, opts ParseOptions) *model.GpsFix {
	fix := &model.GpsFix{DeviceID: entry.DeviceID}
	if entry.Gps != nil {
		lat := DecimalDegrees(entry.Gps.Lat)
		lng := DecimalDegrees(entry.Gps.Lng)
		if lat != nil && lng != nil {
			fix.Latitude, fix.Longitude = lat, lng
		}
		fix.SpeedKmh = SpeedScaledTenth(entry.Gps.Speed)
		fix.DirectionDeg = entry.Gps.Direction.Ptr()
		fix.AltitudeM = entry.Gps.Altitude.Ptr()
		if !opts.PreferLastOnline {
			fix.TimestampMs = p.ts.Normalize(entry.Gps.Time)
		}
	}
	if fix.TimestampMs == nil {
		fix.TimestampMs = p.ts.Normalize(entry.LastOnlineTime)
	}
	return fix
}

func (p *GPSParser) fixFromDialectA(deviceID string, pt *dialectAPoint) *model.GpsFix {
	fix := &model.GpsFix{DeviceID: deviceID}
	lat := ScaledToDegrees(pt.Latitude)
	lng := ScaledToDegrees(pt.Longitude)
	if lat != nil && lng != nil {
		fix.Latitude, fix.Longitude = lat, lng
	}
	fix.SpeedKmh = SpeedAdaptive(pt.Speed)
	fix.DirectionDeg = pt.Direction.Ptr()
	fix.AltitudeM = pt.Height.Ptr()
	fix.TimestampMs = p.ts.Normalize(pt.Time)
	return fix
}

// ParseTrack decodes a track-history response (dialect A shape) into a
// chronological playback. Points missing coordinates or with
// unparseable timestamps are dropped individually; the start and end
// bounds come from the first and last retained point.
func (p *GPSParser) ParseTrack(raw []byte, deviceID string) (*model.TrackPlayback, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed track response: %v", ErrNoData, err)
	}
	if !env.ok() {
		return nil, fmt.Errorf("%w: vendor code %d: %s", ErrNoData, *env.Code, env.Message)
	}
	var data dialectAData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: malformed track data: %v", ErrNoData, err)
		}
	}
	points := data.GpsInfo
	if len(points) == 0 {
		points = data.Points
	}

	track := &model.TrackPlayback{DeviceID: deviceID, Points: make([]model.TrackPoint, 0, len(points))}
	dropped := 0
	for i := range points {
		pt := &points[i]
		lat := ScaledToDegrees(pt.Latitude)
		lng := ScaledToDegrees(pt.Longitude)
		ts := p.ts.Normalize(pt.Time)
		if lat == nil || lng == nil || ts == nil {
			dropped++
			continue
		}
		track.Points = append(track.Points, model.TrackPoint{
			Latitude:     *lat,
			Longitude:    *lng,
			TimestampMs:  *ts,
			SpeedKmh:     SpeedAdaptive(pt.Speed),
			DirectionDeg: pt.Direction.Ptr(),
		})
	}
	if dropped > 0 {
		log.Printf("[GPSParser] Dropped %d unusable track points for device %s", dropped, deviceID)
	}
	sort.SliceStable(track.Points, func(i, j int) bool {
		return track.Points[i].TimestampMs < track.Points[j].TimestampMs
	})
	if n := len(track.Points); n > 0 {
		track.StartTimeMs = track.Points[0].TimestampMs
		track.EndTimeMs = track.Points[n-1].TimestampMs
	}
	return track, nil
}

// ParseTrackDates decodes a track-availability response into the list
// of dates the vendor holds history for. The order is passed through
// as the vendor sent it.
func ParseTrackDates(raw []byte) ([]string, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed track dates response: %v", ErrNoData, err)
	}
	if !env.ok() {
		return nil, fmt.Errorf("%w: vendor code %d: %s", ErrNoData, *env.Code, env.Message)
	}
	var data struct {
		Dates []string `json:"dates"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: malformed track dates data: %v", ErrNoData, err)
		}
	}
	if data.Dates == nil {
		data.Dates = []string{}
	}
	return data.Dates, nil
}
