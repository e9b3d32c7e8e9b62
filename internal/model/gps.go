package model

// Source tags an outbound DTO with where its data came from.
type Source string

const (
	// SourceCache means the cached row was within the fast-path window.
	SourceCache Source = "cache"
	// SourceStaleCache means the vendor call failed and the stale row
	// was returned as a degraded answer.
	SourceStaleCache Source = "stale_cache"
	// SourceVendorAPI means the data was fetched live from the vendor.
	SourceVendorAPI Source = "vendor_api"
)

// GpsFix is the canonical position fix served to the app. Latitude and
// longitude are both present or both absent. A fix without a timestamp
// is unusable for track history but may still refresh the spatial
// fields of a live cache row.
type GpsFix struct {
	DeviceID     string   `json:"device_id"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	SpeedKmh     *float64 `json:"speed_kmh,omitempty"`
	DirectionDeg *float64 `json:"direction_deg,omitempty"`
	AltitudeM    *float64 `json:"altitude_m,omitempty"`
	TimestampMs  *int64   `json:"timestamp_ms,omitempty"`
	Address      string   `json:"address,omitempty"`
	AccOn        *bool    `json:"acc_on,omitempty"`
}

// HasCoordinates reports whether the fix carries a usable position.
func (f *GpsFix) HasCoordinates() bool {
	return f.Latitude != nil && f.Longitude != nil
}

// TrackPoint is one retained point of a track playback.
type TrackPoint struct {
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	TimestampMs  int64    `json:"timestamp_ms"`
	SpeedKmh     *float64 `json:"speed_kmh,omitempty"`
	DirectionDeg *float64 `json:"direction_deg,omitempty"`
}

// TrackPlayback is a chronological track for one device. Start and end
// bounds are derived from the first and last retained point, never
// from vendor-echoed bounds.
type TrackPlayback struct {
	DeviceID    string       `json:"device_id"`
	StartTimeMs int64        `json:"start_time_ms"`
	EndTimeMs   int64        `json:"end_time_ms"`
	Points      []TrackPoint `json:"points"`
}

// LatestGpsResponse wraps a latest fix with its provenance.
type LatestGpsResponse struct {
	GpsFix
	Source Source `json:"source"`
}
