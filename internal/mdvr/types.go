package mdvr

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Number is a vendor numeric field. The platform emits numbers, numeric
// strings, or null for conceptually the same field depending on the
// endpoint, so decoding is tolerant and validity is explicit.
type Number struct {
	Value float64
	Valid bool
}

// Num is a convenience constructor for tests and fixtures.
func Num(v float64) Number {
	return Number{Value: v, Valid: true}
}

// UnmarshalJSON accepts a JSON number, a quoted numeric string, or null.
// Anything else leaves the Number invalid without failing the batch.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		n.Valid = false
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			n.Valid = false
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			n.Valid = false
			return nil
		}
		n.Value = v
		n.Valid = true
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		n.Valid = false
		return nil
	}
	n.Value = v
	n.Valid = true
	return nil
}

// Ptr returns the value as a pointer, nil when invalid.
func (n Number) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// Timestamp is a vendor timestamp field: an integer (epoch seconds or
// milliseconds), a formatted string, or null.
type Timestamp struct {
	Epoch  int64
	Text   string
	IsText bool
	Valid  bool
}

// Sec builds an integer Timestamp (tests and fixtures).
func Sec(epoch int64) Timestamp {
	return Timestamp{Epoch: epoch, Valid: true}
}

// Str builds a string Timestamp (tests and fixtures).
func Str(s string) Timestamp {
	return Timestamp{Text: s, IsText: true, Valid: true}
}

// UnmarshalJSON accepts an integer epoch, a quoted timestamp string, or
// null. Decoding never fails the enclosing batch.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Valid = false
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			t.Valid = false
			return nil
		}
		if s == "" {
			t.Valid = false
			return nil
		}
		t.Text = s
		t.IsText = true
		t.Valid = true
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		t.Valid = false
		return nil
	}
	t.Epoch = int64(v)
	t.IsText = false
	t.Valid = true
	return nil
}

// Bool is a vendor truthy field. Accepted true encodings are true, 1,
// "1", "on" and "ON"; everything else decodes to false.
type Bool struct {
	Value bool
	Valid bool
}

// UnmarshalJSON decodes the vendor's assorted truthy encodings.
func (v *Bool) UnmarshalJSON(b []byte) error {
	v.Value, v.Valid = decodeTruthy(b, boolTruthy)
	return nil
}

// Ptr returns the value as a pointer, nil when the field was absent.
func (v Bool) Ptr() *bool {
	if !v.Valid {
		return nil
	}
	b := v.Value
	return &b
}

// OnlineBool is a vendor online flag. It accepts the same encodings as
// Bool plus the literal "online", which the platform emits only for
// connectivity fields. Keeping "online" out of Bool stops it from
// counting as ACC-on.
type OnlineBool struct {
	Value bool
	Valid bool
}

func (v *OnlineBool) UnmarshalJSON(b []byte) error {
	v.Value, v.Valid = decodeTruthy(b, onlineTruthy)
	return nil
}

// Ptr returns the value as a pointer, nil when the field was absent.
func (v OnlineBool) Ptr() *bool {
	if !v.Valid {
		return nil
	}
	b := v.Value
	return &b
}

var (
	boolTruthy   = map[string]bool{"1": true, "on": true, "ON": true}
	onlineTruthy = map[string]bool{"1": true, "on": true, "ON": true, "online": true}
)

func decodeTruthy(b []byte, truthy map[string]bool) (value, valid bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return false, false
	}
	switch {
	case bytes.Equal(b, []byte("true")):
		return true, true
	case bytes.Equal(b, []byte("false")):
		return false, true
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return false, false
		}
		return truthy[s], true
	default:
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return false, false
		}
		return n == 1, true
	}
}
