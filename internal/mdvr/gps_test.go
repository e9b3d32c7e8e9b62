package mdvr

import (
	"encoding/json"
	"errors"
	"testing"
)

func testParser() *GPSParser {
	return NewGPSParser(NewTimestampNormalizer(18000, 8))
}

func TestDetectDialect(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Dialect
	}{
		{"dialect B list", `{"list":[{"deviceId":"D1"}]}`, DialectB},
		{"dialect A gpsInfo", `{"gpsInfo":[{}]}`, DialectA},
		{"dialect A points", `{"points":[{}]}`, DialectA},
		{"unknown", `{"something":1}`, DialectUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectDialect(json.RawMessage(tt.data)); got != tt.want {
				t.Errorf("DetectDialect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLatestDialectBMissingFixTime(t *testing.T) {
	raw := []byte(`{"code":200,"data":{"list":[
		{"deviceId":"D1","gps":{"lat":22.64,"lng":114.14,"speed":350,"time":null},"lastOnlineTime":1700000000}
	]}}`)
	fix, err := testParser().ParseLatest(raw, "D1", ParseOptions{})
	if err != nil {
		t.Fatalf("ParseLatest: %v", err)
	}
	if fix.TimestampMs == nil || *fix.TimestampMs != 1700018000000 {
		t.Errorf("timestamp = %v, want 1700018000000 from lastOnlineTime", fix.TimestampMs)
	}
	if fix.Latitude == nil || *fix.Latitude != 22.64 {
		t.Errorf("latitude = %v, want 22.64 unchanged", deref(fix.Latitude))
	}
	if fix.SpeedKmh == nil || *fix.SpeedKmh != 35 {
		t.Errorf("speed = %v, want 35 (tenths)", deref(fix.SpeedKmh))
	}
}

func TestParseLatestDialectBPrefersFixTime(t *testing.T) {
	raw := []byte(`{"code":200,"data":{"list":[
		{"deviceId":"D1","gps":{"lat":22.64,"lng":114.14,"time":1700000100},"lastOnlineTime":1700000000}
	]}}`)
	fix, err := testParser().ParseLatest(raw, "D1", ParseOptions{})
	if err != nil {
		t.Fatalf("ParseLatest: %v", err)
	}
	if fix.TimestampMs == nil || *fix.TimestampMs != 1700018100000 {
		t.Errorf("timestamp = %v, want fix time 1700018100000", fix.TimestampMs)
	}
}

func TestParseLatestPreferLastOnline(t *testing.T) {
	// Frozen fix times on sleeping devices: callers can force the
	// platform-side last-seen value.
	raw := []byte(`{"code":200,"data":{"list":[
		{"deviceId":"D1","gps":{"lat":22.64,"lng":114.14,"time":1690000000},"lastOnlineTime":1700000000}
	]}}`)
	fix, err := testParser().ParseLatest(raw, "D1", ParseOptions{PreferLastOnline: true})
	if err != nil {
		t.Fatalf("ParseLatest: %v", err)
	}
	if fix.TimestampMs == nil || *fix.TimestampMs != 1700018000000 {
		t.Errorf("timestamp = %v, want lastOnlineTime 1700018000000", fix.TimestampMs)
	}
}

func TestParseLatestDialectBExactMatchOnly(t *testing.T) {
	raw := []byte(`{"code":200,"data":{"list":[
		{"deviceId":"D10","gps":{"lat":1,"lng":1,"time":1700000000}}
	]}}`)
	_, err := testParser().ParseLatest(raw, "D1", ParseOptions{})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("prefix device-ID match should not resolve, got err = %v", err)
	}
}

func TestParseLatestDialectA(t *testing.T) {
	raw := []byte(`{"code":200,"data":{"gpsInfo":[
		{"latitude":22644000,"longitude":114144000,"speed":1200,"height":35,"time":1700000000}
	]}}`)
	fix, err := testParser().ParseLatest(raw, "D1", ParseOptions{})
	if err != nil {
		t.Fatalf("ParseLatest: %v", err)
	}
	if fix.Latitude == nil || *fix.Latitude != 22.644 {
		t.Errorf("latitude = %v, want 22.644 (scaled)", deref(fix.Latitude))
	}
	if fix.SpeedKmh == nil || *fix.SpeedKmh != 120 {
		t.Errorf("speed = %v, want 120 (adaptive tenths)", deref(fix.SpeedKmh))
	}
	if fix.TimestampMs == nil || *fix.TimestampMs != 1700018000000 {
		t.Errorf("timestamp = %v, want 1700018000000", fix.TimestampMs)
	}
}

func TestParseLatestDialectANewestFirst(t *testing.T) {
	// The legacy list arrives newest-first; the first entry is the fix.
	raw := []byte(`{"code":200,"data":{"gpsInfo":[
		{"latitude":22645000,"longitude":114145000,"time":1700000100},
		{"latitude":22644000,"longitude":114144000,"time":1700000000}
	]}}`)
	fix, err := testParser().ParseLatest(raw, "D1", ParseOptions{})
	if err != nil {
		t.Fatalf("ParseLatest: %v", err)
	}
	if fix.TimestampMs == nil || *fix.TimestampMs != 1700018100000 {
		t.Errorf("timestamp = %v, want first entry 1700018100000", fix.TimestampMs)
	}
	if fix.Latitude == nil || *fix.Latitude != 22.645 {
		t.Errorf("latitude = %v, want 22.645 from the first entry", deref(fix.Latitude))
	}
}

func TestParseLatestDialectBOnly(t *testing.T) {
	raw := []byte(`{"code":200,"data":{"gpsInfo":[{"latitude":1,"longitude":1,"time":1700000000}]}}`)
	_, err := testParser().ParseLatest(raw, "D1", ParseOptions{DialectBOnly: true})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("dialect A must not be attempted in dialect-B-only mode, got err = %v", err)
	}
}

func TestParseLatestNonSuccessCode(t *testing.T) {
	raw := []byte(`{"code":500,"message":"no gps found","data":null}`)
	_, err := testParser().ParseLatest(raw, "D1", ParseOptions{})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("non-success code should be ErrNoData, got %v", err)
	}
}

func TestParseTrack(t *testing.T) {
	raw := []byte(`{"code":200,"data":{"points":[
		{"latitude":22644000,"longitude":114144000,"speed":60,"time":1700000200},
		{"latitude":null,"longitude":114144000,"time":1700000100},
		{"latitude":22645000,"longitude":114145000,"time":1700000000},
		{"latitude":22646000,"longitude":114146000,"time":"garbage"}
	]}}`)
	track, err := testParser().ParseTrack(raw, "D1")
	if err != nil {
		t.Fatalf("ParseTrack: %v", err)
	}
	if len(track.Points) != 2 {
		t.Fatalf("retained %d points, want 2", len(track.Points))
	}
	// Chronological order regardless of input order.
	if track.Points[0].TimestampMs != 1700018000000 || track.Points[1].TimestampMs != 1700018200000 {
		t.Errorf("points not chronological: %d, %d", track.Points[0].TimestampMs, track.Points[1].TimestampMs)
	}
	// Bounds from retained points, not vendor-echoed values.
	if track.StartTimeMs != 1700018000000 || track.EndTimeMs != 1700018200000 {
		t.Errorf("bounds = [%d, %d], want [1700018000000, 1700018200000]", track.StartTimeMs, track.EndTimeMs)
	}
}

func TestParseTrackEmpty(t *testing.T) {
	track, err := testParser().ParseTrack([]byte(`{"code":200,"data":{"points":[]}}`), "D1")
	if err != nil {
		t.Fatalf("ParseTrack: %v", err)
	}
	if len(track.Points) != 0 || track.StartTimeMs != 0 || track.EndTimeMs != 0 {
		t.Errorf("empty track should have no points and zero bounds")
	}
}
