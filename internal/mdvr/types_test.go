package mdvr

import (
	"encoding/json"
	"testing"
)

func TestNumberDecoding(t *testing.T) {
	var s struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a":12.5,"b":"37","c":null,"d":"oops"}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !s.A.Valid || s.A.Value != 12.5 {
		t.Errorf("number literal: %+v", s.A)
	}
	if !s.B.Valid || s.B.Value != 37 {
		t.Errorf("numeric string: %+v", s.B)
	}
	if s.C.Valid {
		t.Errorf("null should be invalid")
	}
	if s.D.Valid {
		t.Errorf("non-numeric string should be invalid, not an error")
	}
}

func TestTimestampDecoding(t *testing.T) {
	var s struct {
		A Timestamp `json:"a"`
		B Timestamp `json:"b"`
		C Timestamp `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":1700000000,"b":"2024-01-10 12:00:00","c":null}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !s.A.Valid || s.A.IsText || s.A.Epoch != 1700000000 {
		t.Errorf("epoch: %+v", s.A)
	}
	if !s.B.Valid || !s.B.IsText || s.B.Text != "2024-01-10 12:00:00" {
		t.Errorf("text: %+v", s.B)
	}
	if s.C.Valid {
		t.Errorf("null should be invalid")
	}
}

func TestBoolTruthyEncodings(t *testing.T) {
	tests := []struct {
		raw   string
		value bool
		valid bool
	}{
		{`true`, true, true},
		{`false`, false, true},
		{`1`, true, true},
		{`0`, false, true},
		{`"1"`, true, true},
		{`"on"`, true, true},
		{`"ON"`, true, true},
		// "online" describes connectivity, not ACC; it is truthy only
		// for OnlineBool.
		{`"online"`, false, true},
		{`"off"`, false, true},
		{`"offline"`, false, true},
		{`null`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var b Bool
			if err := json.Unmarshal([]byte(tt.raw), &b); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.raw, err)
			}
			if b.Valid != tt.valid || b.Value != tt.value {
				t.Errorf("decode %s = {value:%v valid:%v}, want {value:%v valid:%v}",
					tt.raw, b.Value, b.Valid, tt.value, tt.valid)
			}
		})
	}
}

func TestOnlineBoolAcceptsOnline(t *testing.T) {
	tests := []struct {
		raw   string
		value bool
		valid bool
	}{
		{`"online"`, true, true},
		{`"ON"`, true, true},
		{`"1"`, true, true},
		{`true`, true, true},
		{`"offline"`, false, true},
		{`0`, false, true},
		{`null`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var b OnlineBool
			if err := json.Unmarshal([]byte(tt.raw), &b); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.raw, err)
			}
			if b.Valid != tt.valid || b.Value != tt.value {
				t.Errorf("decode %s = {value:%v valid:%v}, want {value:%v valid:%v}",
					tt.raw, b.Value, b.Valid, tt.value, tt.valid)
			}
		})
	}
}

func TestIsInfraError(t *testing.T) {
	infra := []string{
		"Database connection failed",
		"upstream timed out",
		"SQL error 1045",
		"connection refused",
	}
	for _, msg := range infra {
		if !IsInfraError(msg) {
			t.Errorf("IsInfraError(%q) = false, want true", msg)
		}
	}
	benign := []string{"no gps found", "device not registered", ""}
	for _, msg := range benign {
		if IsInfraError(msg) {
			t.Errorf("IsInfraError(%q) = true, want false", msg)
		}
	}
}
