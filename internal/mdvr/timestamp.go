package mdvr

import (
	"time"
)

// Timestamps below this value are epoch seconds, at or above it epoch
// milliseconds. The split sits in 2001 for milliseconds and year
// ~33658 for seconds, far from any plausible fix time on either side.
const millisThreshold = 1_000_000_000_000

const naiveLayout = "2006-01-02 15:04:05"

// TimestampNormalizer converts the vendor's three timestamp encodings
// into canonical UTC epoch milliseconds. Integer timestamps carry the
// vendor platform's known clock skew and are corrected by a fixed
// offset; naive strings are produced in the platform's local timezone.
type TimestampNormalizer struct {
	skew time.Duration
	loc  *time.Location
}

// NewTimestampNormalizer builds a normalizer with the given clock-skew
// correction (seconds, added to integer timestamps) and the UTC offset
// (hours) the vendor uses when formatting naive timestamp strings.
func NewTimestampNormalizer(skewSeconds, tzOffsetHours int) *TimestampNormalizer {
	return &TimestampNormalizer{
		skew: time.Duration(skewSeconds) * time.Second,
		loc:  time.FixedZone("vendor", tzOffsetHours*3600),
	}
}

// EpochToMillis normalizes an integer vendor timestamp. Values below
// 1e12 are seconds, values at or above are milliseconds; both get the
// skew correction.
func (n *TimestampNormalizer) EpochToMillis(v int64) int64 {
	if v < millisThreshold {
		v *= 1000
	}
	return v + n.skew.Milliseconds()
}

// StringToMillis normalizes a string vendor timestamp. A naive
// "YYYY-MM-DD HH:MM:SS" string is interpreted in the vendor timezone;
// a string with explicit offset information is taken as-is. Neither
// form gets the skew correction. Returns false when unparseable.
func (n *TimestampNormalizer) StringToMillis(s string) (int64, bool) {
	if t, err := time.ParseInLocation(naiveLayout, s, n.loc); err == nil {
		return t.UnixMilli(), true
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// Normalize converts a decoded vendor Timestamp to epoch milliseconds.
// Absent or unparseable timestamps return nil rather than a guess.
func (n *TimestampNormalizer) Normalize(t Timestamp) *int64 {
	if !t.Valid {
		return nil
	}
	if t.IsText {
		ms, ok := n.StringToMillis(t.Text)
		if !ok {
			return nil
		}
		return &ms
	}
	ms := n.EpochToMillis(t.Epoch)
	return &ms
}
