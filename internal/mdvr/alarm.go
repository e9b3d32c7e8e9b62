package mdvr

import (
	"encoding/json"
	"fmt"
	"log"

	"roadapp/api/internal/model"
)

type alarmType struct {
	ID       int
	Name     string
	Severity model.Severity
}

// Platform alarm flag map. Keys are the vendor's flag names as they
// appear in the alarm batch payload.
var platformAlarmTypes = map[string]alarmType{
	"emergency":        {1, "Emergency alarm", model.SeverityCritical},
	"overspeed":        {2, "Overspeed", model.SeverityWarning},
	"fatigueDriving":   {3, "Fatigue driving", model.SeverityWarning},
	"dangerWarning":    {4, "Danger warning", model.SeverityWarning},
	"gnssFault":        {5, "GNSS module fault", model.SeverityWarning},
	"gnssAntennaCut":   {6, "GNSS antenna disconnected", model.SeverityWarning},
	"gnssAntennaShort": {7, "GNSS antenna short circuit", model.SeverityWarning},
	"powerLow":         {8, "Main power undervoltage", model.SeverityWarning},
	"powerCut":         {9, "Main power disconnected", model.SeverityCritical},
	"displayFault":     {10, "Display fault", model.SeverityInfo},
	"ttsFault":         {11, "TTS module fault", model.SeverityInfo},
	"cameraFault":      {12, "Camera fault", model.SeverityWarning},
	"icCardFault":      {13, "IC card module fault", model.SeverityInfo},
	"overspeedWarning": {14, "Overspeed pre-warning", model.SeverityInfo},
	"fatigueWarning":   {15, "Fatigue pre-warning", model.SeverityInfo},
	"drivingTimeout":   {18, "Cumulative driving timeout", model.SeverityWarning},
	"parkingTimeout":   {19, "Parking timeout", model.SeverityInfo},
	"areaInOut":        {20, "Area entry/exit", model.SeverityInfo},
	"routeInOut":       {21, "Route entry/exit", model.SeverityInfo},
	"routeTimeAbnorm":  {22, "Route driving time abnormal", model.SeverityInfo},
	"routeDeviation":   {23, "Route deviation", model.SeverityWarning},
	"vssFault":         {24, "Vehicle speed sensor fault", model.SeverityWarning},
	"oilAbnormal":      {25, "Fuel level abnormal", model.SeverityWarning},
	"vehicleStolen":    {26, "Vehicle stolen", model.SeverityCritical},
	"illegalIgnition":  {27, "Illegal ignition", model.SeverityWarning},
	"illegalMove":      {28, "Illegal displacement", model.SeverityWarning},
	"collisionAlarm":   {29, "Collision detected", model.SeverityCritical},
	"rolloverAlarm":    {30, "Rollover detected", model.SeverityCritical},
	"illegalOpenDoor":  {31, "Illegal door opening", model.SeverityWarning},
}

// Driver-assistance events keyed by the vendor's numeric event code.
var adasEventTypes = map[int]alarmType{
	1: {101, "Forward collision warning", model.SeverityCritical},
	2: {102, "Lane departure warning", model.SeverityWarning},
	3: {103, "Headway too close", model.SeverityWarning},
	4: {104, "Pedestrian collision warning", model.SeverityCritical},
	5: {105, "Frequent lane change", model.SeverityInfo},
	6: {106, "Road sign overrun", model.SeverityInfo},
	7: {107, "Obstacle warning", model.SeverityWarning},
}

var videoFaultTypes = map[string]alarmType{
	"videoLoss":      {201, "Video signal loss", model.SeverityWarning},
	"videoCover":     {202, "Camera occlusion", model.SeverityWarning},
	"storageFault":   {203, "Storage unit fault", model.SeverityWarning},
	"memoryFault":    {204, "Memory fault", model.SeverityWarning},
	"recorderFault":  {205, "Recorder fault", model.SeverityWarning},
	"specialOverrun": {206, "Special recording storage overrun", model.SeverityInfo},
}

var behaviorTypes = map[string]alarmType{
	"smoking":        {301, "Smoking detected", model.SeverityWarning},
	"phoneCall":      {302, "Phone call while driving", model.SeverityWarning},
	"distracted":     {303, "Distracted driving", model.SeverityWarning},
	"fatigue":        {304, "Driver fatigue", model.SeverityCritical},
	"driverAbsent":   {305, "Driver absent", model.SeverityWarning},
	"seatbeltUnworn": {306, "Seatbelt not worn", model.SeverityInfo},
}

var familyLabels = map[model.AlarmFamily]string{
	model.FamilyPlatform:   "Platform",
	model.FamilyADAS:       "Driver assistance",
	model.FamilyVideoFault: "Video fault",
	model.FamilyBehavior:   "Driver behavior",
}

// unknownType synthesizes a fallback entry for codes absent from the
// lookup tables so new vendor codes surface instead of vanishing.
func unknownType(family model.AlarmFamily, id int) alarmType {
	return alarmType{
		ID:       id,
		Name:     fmt.Sprintf("%s alarm (%d)", familyLabels[family], id),
		Severity: model.SeverityInfo,
	}
}

// ADASEvent is the nested driver-assistance sub-object.
type ADASEvent struct {
	EventType int  `json:"eventType"`
	Status    Bool `json:"status"`
	Level     int  `json:"level"`
}

// AlarmBatchItem is one item of the vendor's GPS-style alarm batch.
// Each item may carry up to four independently encoded alarm signals.
type AlarmBatchItem struct {
	DeviceID  string    `json:"deviceId"`
	Latitude  Number    `json:"latitude"`
	Longitude Number    `json:"longitude"`
	Speed     Number    `json:"speed"`
	Time      Timestamp `json:"time"`

	AlarmFlags  map[string]Bool `json:"alarmFlags"`
	ADAS        *ADASEvent      `json:"adas"`
	VideoFaults map[string]Bool `json:"videoFault"`
	Behaviors   map[string]Bool `json:"behavior"`

	AttachmentCount int `json:"attachmentCount"`
}

// AlarmClassifier turns raw vendor alarm batches into canonical alarm
// events with per-batch dedup.
type AlarmClassifier struct {
	ts *TimestampNormalizer
}

func NewAlarmClassifier(ts *TimestampNormalizer) *AlarmClassifier {
	return &AlarmClassifier{ts: ts}
}

// Classify materializes one AlarmEvent per active signal on every
// batch item. Inactive or cleared signals are discarded; duplicates on
// (family, typeId, timestampMs) collapse to one event.
func (c *AlarmClassifier) Classify(items []AlarmBatchItem) []model.AlarmEvent {
	events := make([]model.AlarmEvent, 0, len(items))
	seen := make(map[model.DedupKey]struct{})

	for i := range items {
		item := &items[i]
		ts := c.ts.Normalize(item.Time)
		var tsMs int64
		if ts != nil {
			tsMs = *ts
		}
		lat := ScaledToDegrees(item.Latitude)
		lng := ScaledToDegrees(item.Longitude)
		speed := SpeedAdaptive(item.Speed)

		emit := func(family model.AlarmFamily, at alarmType) {
			ev := model.AlarmEvent{
				DeviceID:        item.DeviceID,
				Family:          family,
				TypeID:          at.ID,
				TypeName:        at.Name,
				Severity:        at.Severity,
				TimestampMs:     tsMs,
				AttachmentCount: item.AttachmentCount,
			}
			if lat != nil && lng != nil {
				ev.Latitude, ev.Longitude = lat, lng
			}
			ev.SpeedKmh = speed
			key := ev.Key()
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			events = append(events, ev)
		}

		for flag, state := range item.AlarmFlags {
			if !state.Valid || !state.Value {
				continue
			}
			at, ok := platformAlarmTypes[flag]
			if !ok {
				log.Printf("[AlarmClassifier] Unknown platform alarm flag %q on device %s", flag, item.DeviceID)
				at = unknownType(model.FamilyPlatform, 0)
				at.Name = fmt.Sprintf("Platform alarm (%s)", flag)
			}
			emit(model.FamilyPlatform, at)
		}

		if item.ADAS != nil && item.ADAS.Status.Valid && item.ADAS.Status.Value {
			at, ok := adasEventTypes[item.ADAS.EventType]
			if !ok {
				at = unknownType(model.FamilyADAS, item.ADAS.EventType)
			}
			emit(model.FamilyADAS, at)
		}

		for flag, state := range item.VideoFaults {
			if !state.Valid || !state.Value {
				continue
			}
			at, ok := videoFaultTypes[flag]
			if !ok {
				at = unknownType(model.FamilyVideoFault, 0)
				at.Name = fmt.Sprintf("Video fault alarm (%s)", flag)
			}
			emit(model.FamilyVideoFault, at)
		}

		for flag, state := range item.Behaviors {
			if !state.Valid || !state.Value {
				continue
			}
			at, ok := behaviorTypes[flag]
			if !ok {
				at = unknownType(model.FamilyBehavior, 0)
				at.Name = fmt.Sprintf("Driver behavior alarm (%s)", flag)
			}
			emit(model.FamilyBehavior, at)
		}
	}
	return events
}

type vendorAlarm struct {
	TypeID   int       `json:"typeId"`
	Message  string    `json:"message"`
	Level    int       `json:"level"`
	HappenAt Timestamp `json:"happenAt"`
	Lat      Number    `json:"latitude"`
	Lng      Number    `json:"longitude"`
	Speed    Number    `json:"speed"`
	FileNum  int       `json:"fileNum"`
}

type vendorVehicle struct {
	DeviceID string        `json:"deviceId"`
	Alarm    []vendorAlarm `json:"alarm"`
}

type alarmListData struct {
	Vehicles []vendorVehicle `json:"vehicles"`
	Alarms   []vendorAlarm   `json:"alarms"`
}

// ParseAlarmList decodes a query-path alarm list response. The vendor
// returns either data.vehicles[].alarm or a flat data.alarms[]; both
// map into platform-family events with the vendor level translated to
// severity (1 info, 2 warning, 3 critical).
func (c *AlarmClassifier) ParseAlarmList(raw []byte, deviceID string) (*model.AlarmSummary, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed alarm response: %v", ErrNoData, err)
	}
	if !env.ok() {
		return nil, fmt.Errorf("%w: vendor code %d: %s", ErrNoData, *env.Code, env.Message)
	}
	var data alarmListData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: malformed alarm data: %v", ErrNoData, err)
		}
	}

	raws := data.Alarms
	for i := range data.Vehicles {
		if data.Vehicles[i].DeviceID == "" || data.Vehicles[i].DeviceID == deviceID {
			raws = append(raws, data.Vehicles[i].Alarm...)
		}
	}

	summary := &model.AlarmSummary{DeviceID: deviceID}
	seen := make(map[model.DedupKey]struct{})
	for i := range raws {
		a := &raws[i]
		ev := model.AlarmEvent{
			DeviceID:        deviceID,
			Family:          model.FamilyPlatform,
			TypeID:          a.TypeID,
			TypeName:        a.Message,
			Severity:        levelToSeverity(a.Level),
			AttachmentCount: a.FileNum,
		}
		if ev.TypeName == "" {
			ev.TypeName = unknownType(model.FamilyPlatform, a.TypeID).Name
		}
		if ts := c.ts.Normalize(a.HappenAt); ts != nil {
			ev.TimestampMs = *ts
		}
		lat := ScaledToDegrees(a.Lat)
		lng := ScaledToDegrees(a.Lng)
		if lat != nil && lng != nil {
			ev.Latitude, ev.Longitude = lat, lng
		}
		ev.SpeedKmh = SpeedAdaptive(a.Speed)

		key := ev.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		summary.Alarms = append(summary.Alarms, ev)
		switch ev.Severity {
		case model.SeverityCritical:
			summary.CriticalCount++
		case model.SeverityWarning:
			summary.WarningCount++
		default:
			summary.InfoCount++
		}
	}
	summary.TotalAlarms = len(summary.Alarms)
	return summary, nil
}

func levelToSeverity(level int) model.Severity {
	switch level {
	case 3:
		return model.SeverityCritical
	case 2:
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}
