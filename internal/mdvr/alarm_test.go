package mdvr

import (
	"errors"
	"testing"

	"roadapp/api/internal/model"
)

func testClassifier() *AlarmClassifier {
	return NewAlarmClassifier(NewTimestampNormalizer(18000, 8))
}

func activeFlag() Bool { return Bool{Value: true, Valid: true} }

func TestClassifyActiveOnly(t *testing.T) {
	items := []AlarmBatchItem{{
		DeviceID: "D1",
		Time:     Sec(1700000000),
		AlarmFlags: map[string]Bool{
			"overspeed": activeFlag(),
			"emergency": {Value: false, Valid: true},
		},
	}}
	events := testClassifier().Classify(items)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (inactive flags discarded)", len(events))
	}
	if events[0].TypeName != "Overspeed" || events[0].Severity != model.SeverityWarning {
		t.Errorf("event = %s/%s, want Overspeed/warning", events[0].TypeName, events[0].Severity)
	}
	if events[0].TimestampMs != 1700018000000 {
		t.Errorf("timestamp = %d, want 1700018000000", events[0].TimestampMs)
	}
}

func TestClassifyDedup(t *testing.T) {
	// Same (family, typeId, timestamp) on two items collapses to one.
	item := AlarmBatchItem{
		DeviceID:   "D1",
		Time:       Sec(1700000000),
		AlarmFlags: map[string]Bool{"overspeed": activeFlag()},
	}
	events := testClassifier().Classify([]AlarmBatchItem{item, item})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 after dedup", len(events))
	}
}

func TestClassifyDistinctTimestampsKept(t *testing.T) {
	a := AlarmBatchItem{DeviceID: "D1", Time: Sec(1700000000), AlarmFlags: map[string]Bool{"overspeed": activeFlag()}}
	b := AlarmBatchItem{DeviceID: "D1", Time: Sec(1700000060), AlarmFlags: map[string]Bool{"overspeed": activeFlag()}}
	events := testClassifier().Classify([]AlarmBatchItem{a, b})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 for distinct timestamps", len(events))
	}
}

func TestClassifyFourFamilies(t *testing.T) {
	items := []AlarmBatchItem{{
		DeviceID:    "D1",
		Time:        Sec(1700000000),
		Latitude:    Num(22644000),
		Longitude:   Num(114144000),
		AlarmFlags:  map[string]Bool{"powerCut": activeFlag()},
		ADAS:        &ADASEvent{EventType: 2, Status: activeFlag()},
		VideoFaults: map[string]Bool{"videoLoss": activeFlag()},
		Behaviors:   map[string]Bool{"smoking": activeFlag()},
	}}
	events := testClassifier().Classify(items)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4 (one per family)", len(events))
	}
	families := make(map[model.AlarmFamily]bool)
	for _, ev := range events {
		families[ev.Family] = true
		if ev.Latitude == nil || *ev.Latitude != 22.644 {
			t.Errorf("%s event latitude = %v, want 22.644", ev.Family, deref(ev.Latitude))
		}
	}
	for _, fam := range []model.AlarmFamily{model.FamilyPlatform, model.FamilyADAS, model.FamilyVideoFault, model.FamilyBehavior} {
		if !families[fam] {
			t.Errorf("missing family %s", fam)
		}
	}
}

func TestClassifyUnknownADASCode(t *testing.T) {
	items := []AlarmBatchItem{{
		DeviceID: "D1",
		Time:     Sec(1700000000),
		ADAS:     &ADASEvent{EventType: 99, Status: activeFlag()},
	}}
	events := testClassifier().Classify(items)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].TypeName != "Driver assistance alarm (99)" {
		t.Errorf("name = %q, want generic fallback", events[0].TypeName)
	}
	if events[0].Severity != model.SeverityInfo {
		t.Errorf("severity = %s, want info for unknown code", events[0].Severity)
	}
}

func TestClassifyInactiveADAS(t *testing.T) {
	items := []AlarmBatchItem{{
		DeviceID: "D1",
		Time:     Sec(1700000000),
		ADAS:     &ADASEvent{EventType: 1, Status: Bool{Value: false, Valid: true}},
	}}
	if events := testClassifier().Classify(items); len(events) != 0 {
		t.Errorf("cleared signal materialized %d events, want 0", len(events))
	}
}

func TestParseAlarmListVehicles(t *testing.T) {
	raw := []byte(`{"code":200,"data":{"vehicles":[{"deviceId":"D1","alarm":[
		{"typeId":2,"message":"Overspeed","level":2,"happenAt":1700000000,"latitude":22644000,"longitude":114144000},
		{"typeId":29,"message":"Collision detected","level":3,"happenAt":1700000100},
		{"typeId":2,"message":"Overspeed","level":2,"happenAt":1700000000}
	]}]}}`)
	summary, err := testClassifier().ParseAlarmList(raw, "D1")
	if err != nil {
		t.Fatalf("ParseAlarmList: %v", err)
	}
	if summary.TotalAlarms != 2 {
		t.Fatalf("total = %d, want 2 after dedup", summary.TotalAlarms)
	}
	if summary.CriticalCount != 1 || summary.WarningCount != 1 || summary.InfoCount != 0 {
		t.Errorf("counts = %d/%d/%d, want 1 critical, 1 warning, 0 info",
			summary.CriticalCount, summary.WarningCount, summary.InfoCount)
	}
}

func TestParseAlarmListFlat(t *testing.T) {
	raw := []byte(`{"code":200,"data":{"alarms":[
		{"typeId":8,"level":1,"happenAt":1700000000}
	]}}`)
	summary, err := testClassifier().ParseAlarmList(raw, "D1")
	if err != nil {
		t.Fatalf("ParseAlarmList: %v", err)
	}
	if summary.TotalAlarms != 1 || summary.InfoCount != 1 {
		t.Errorf("flat alarms shape not accepted: %+v", summary)
	}
	if summary.Alarms[0].TypeName == "" {
		t.Errorf("missing message should fall back to a generated name")
	}
}

func TestParseAlarmListNonSuccess(t *testing.T) {
	raw := []byte(`{"code":500,"message":"query failed"}`)
	if _, err := testClassifier().ParseAlarmList(raw, "D1"); !errors.Is(err, ErrNoData) {
		t.Errorf("want ErrNoData, got %v", err)
	}
}
