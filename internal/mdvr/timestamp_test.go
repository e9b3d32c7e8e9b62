package mdvr

import (
	"testing"
)

func TestEpochToMillis(t *testing.T) {
	n := NewTimestampNormalizer(18000, 8)

	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"seconds", 1700000000, (1700000000 + 18000) * 1000},
		{"seconds small", 1, (1 + 18000) * 1000},
		{"just below millis threshold", 999_999_999_999, (999_999_999_999 + 18000) * 1000},
		{"milliseconds", 1_700_000_000_000, 1_700_000_000_000 + 18_000_000},
		{"at millis threshold", 1_000_000_000_000, 1_000_000_000_000 + 18_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.EpochToMillis(tt.in); got != tt.want {
				t.Errorf("EpochToMillis(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestEpochToMillisCustomSkew(t *testing.T) {
	n := NewTimestampNormalizer(0, 8)
	if got := n.EpochToMillis(1700000000); got != 1700000000000 {
		t.Errorf("zero-skew EpochToMillis = %d, want 1700000000000", got)
	}
}

func TestStringToMillis(t *testing.T) {
	n := NewTimestampNormalizer(18000, 8)

	tests := []struct {
		name   string
		in     string
		want   int64
		wantOK bool
	}{
		// 1700000000 == 2023-11-14 22:13:20 UTC.
		{"naive vendor timezone", "2023-11-14 22:13:20", 1700000000000 - 8*3600*1000, true},
		{"iso with offset", "2023-11-14T22:13:20+08:00", 1700000000000 - 8*3600*1000, true},
		{"iso utc", "2023-11-14T22:13:20Z", 1700000000000, true},
		{"garbage", "not a timestamp", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.StringToMillis(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("StringToMillis(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("StringToMillis(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestStringNotSkewCorrected(t *testing.T) {
	// The skew correction applies to integer timestamps only.
	withSkew := NewTimestampNormalizer(18000, 8)
	noSkew := NewTimestampNormalizer(0, 8)
	const s = "2024-01-10 12:00:00"
	a, _ := withSkew.StringToMillis(s)
	b, _ := noSkew.StringToMillis(s)
	if a != b {
		t.Errorf("string normalization changed with skew: %d vs %d", a, b)
	}
}

func TestNormalize(t *testing.T) {
	n := NewTimestampNormalizer(18000, 8)

	if got := n.Normalize(Timestamp{}); got != nil {
		t.Errorf("Normalize(absent) = %v, want nil", *got)
	}
	if got := n.Normalize(Str("garbage")); got != nil {
		t.Errorf("Normalize(garbage string) = %v, want nil", *got)
	}
	if got := n.Normalize(Sec(1700000000)); got == nil || *got != 1700018000000 {
		t.Errorf("Normalize(1700000000) = %v, want 1700018000000", got)
	}
}
