package service

import (
	"fmt"

	"roadapp/api/internal/model"
)

// The forwarding path carries its own alarm taxonomy: a 6-digit type
// code built as categoryPrefix*10000 + eventCode. It is structurally
// unrelated to the query-path alarm families and is kept as its own
// bounded context; the two are never merged.

// forwardedCategoryPrefix maps the webhook's alarm category number to
// the 2-digit code prefix.
var forwardedCategoryPrefix = map[int]int{
	1: 10, // platform/terminal alarms
	2: 11, // driver assistance
	3: 12, // driver behavior
	4: 13, // video and storage faults
	5: 14, // blind spot detection
}

type forwardedAlarmType struct {
	Name     string
	Severity model.Severity
}

var forwardedAlarmTypes = map[int]forwardedAlarmType{
	// 10xxxx platform/terminal
	100001: {"Emergency alarm", model.SeverityCritical},
	100002: {"Overspeed", model.SeverityWarning},
	100003: {"Fatigue driving", model.SeverityWarning},
	100008: {"Main power undervoltage", model.SeverityWarning},
	100009: {"Main power disconnected", model.SeverityCritical},
	100020: {"Area entry/exit", model.SeverityInfo},
	100023: {"Route deviation", model.SeverityWarning},
	100029: {"Collision detected", model.SeverityCritical},
	100030: {"Rollover detected", model.SeverityCritical},
	// 11xxxx driver assistance
	110001: {"Forward collision warning", model.SeverityCritical},
	110002: {"Lane departure warning", model.SeverityWarning},
	110003: {"Headway too close", model.SeverityWarning},
	110004: {"Pedestrian collision warning", model.SeverityCritical},
	110005: {"Frequent lane change", model.SeverityInfo},
	// 12xxxx driver behavior
	120001: {"Fatigue detected", model.SeverityCritical},
	120002: {"Phone call while driving", model.SeverityWarning},
	120003: {"Smoking detected", model.SeverityWarning},
	120004: {"Distracted driving", model.SeverityWarning},
	120005: {"Driver absent", model.SeverityWarning},
	// 13xxxx video/storage
	130001: {"Video signal loss", model.SeverityWarning},
	130002: {"Camera occlusion", model.SeverityWarning},
	130003: {"Storage unit fault", model.SeverityWarning},
	// 14xxxx blind spot
	140001: {"Blind spot rear approach", model.SeverityWarning},
	140002: {"Blind spot side approach", model.SeverityWarning},
}

// ForwardedTypeID composes the 6-digit type code from a webhook
// category number and event code. Unknown categories keep the raw
// event code so the event still surfaces.
func ForwardedTypeID(category, eventCode int) int {
	prefix, ok := forwardedCategoryPrefix[category]
	if !ok {
		return eventCode
	}
	return prefix*10000 + eventCode
}

// ForwardedAlarmType resolves a 6-digit type code to its display name
// and severity, with a generic info-level fallback for unknown codes.
func ForwardedAlarmType(typeID int) (string, model.Severity) {
	if at, ok := forwardedAlarmTypes[typeID]; ok {
		return at.Name, at.Severity
	}
	return fmt.Sprintf("Device alarm (%d)", typeID), model.SeverityInfo
}
