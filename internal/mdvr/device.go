package mdvr

import (
	"encoding/json"
	"fmt"
)

// DeviceState is one entry of the vendor's device-state list, decoded
// to canonical booleans.
type DeviceState struct {
	DeviceID     string
	Online       bool
	AccOn        bool
	LastOnlineMs *int64
}

type deviceStateEntry struct {
	DeviceID       string    `json:"deviceId"`
	State          *int      `json:"state"`
	AccState       Bool      `json:"accState"`
	LastOnlineTime Timestamp `json:"lastOnlineTime"`
}

type deviceStateData struct {
	List []deviceStateEntry `json:"list"`
}

// ParseDeviceStates decodes a device-state list response. Vendor state
// codes: 0 offline, 1 online, 2 low power. Low power counts as offline
// for every consumer here.
func ParseDeviceStates(raw []byte, ts *TimestampNormalizer) ([]DeviceState, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed state response: %v", ErrNoData, err)
	}
	if !env.ok() {
		return nil, fmt.Errorf("%w: vendor code %d: %s", ErrNoData, *env.Code, env.Message)
	}
	var data deviceStateData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: malformed state data: %v", ErrNoData, err)
		}
	}

	states := make([]DeviceState, 0, len(data.List))
	for i := range data.List {
		e := &data.List[i]
		if e.DeviceID == "" {
			continue
		}
		s := DeviceState{
			DeviceID:     e.DeviceID,
			Online:       e.State != nil && *e.State == 1,
			AccOn:        e.AccState.Valid && e.AccState.Value,
			LastOnlineMs: ts.Normalize(e.LastOnlineTime),
		}
		states = append(states, s)
	}
	return states, nil
}

// FindDeviceState returns the state for one device, or nil when the
// device is absent from the batch.
func FindDeviceState(states []DeviceState, deviceID string) *DeviceState {
	for i := range states {
		if states[i].DeviceID == deviceID {
			return &states[i]
		}
	}
	return nil
}

// RegistryEntry is one row of the vendor's paged device inventory.
// Unlike the state list it carries identity fields, not liveness, and
// its status is a plain string rather than a numeric code.
type RegistryEntry struct {
	DeviceID string
	Name     string
	OrgID    string
	Status   string
}

type registryListData struct {
	Total int `json:"total"`
	List  []struct {
		DeviceID   string `json:"deviceId"`
		DeviceName string `json:"deviceName"`
		OrgID      string `json:"orgId"`
		Status     string `json:"status"`
	} `json:"list"`
}

// ParseDeviceList decodes one page of the vendor device inventory and
// returns the entries plus the vendor's total count across all pages.
// Entries without a device ID are dropped; a missing name falls back
// to the device ID and a missing status to offline.
func ParseDeviceList(raw []byte) ([]RegistryEntry, int, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, fmt.Errorf("%w: malformed device list response: %v", ErrNoData, err)
	}
	if !env.ok() {
		return nil, 0, fmt.Errorf("%w: vendor code %d: %s", ErrNoData, *env.Code, env.Message)
	}
	var data registryListData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, 0, fmt.Errorf("%w: malformed device list data: %v", ErrNoData, err)
		}
	}

	entries := make([]RegistryEntry, 0, len(data.List))
	for _, e := range data.List {
		if e.DeviceID == "" {
			continue
		}
		entry := RegistryEntry{
			DeviceID: e.DeviceID,
			Name:     e.DeviceName,
			OrgID:    e.OrgID,
			Status:   e.Status,
		}
		if entry.Name == "" {
			entry.Name = e.DeviceID
		}
		if entry.Status == "" {
			entry.Status = "offline"
		}
		entries = append(entries, entry)
	}
	return entries, data.Total, nil
}
