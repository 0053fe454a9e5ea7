package coreg

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestNewRecordDerivesMeterShifts(t *testing.T) {
	res := EngineResult{
		Success:          true,
		ShiftX:           floatPtr(1.5),
		ShiftY:           floatPtr(-2.0),
		ShiftReliability: floatPtr(81.3),
		WindowSize:       [2]int{256, 256},
		OriginalSSIM:     floatPtr(0.52),
		CoregisteredSSIM: floatPtr(0.61),
	}
	rec := NewRecord("scene_ms.tif", "L8", res, 30, -30)

	if !rec.Success {
		t.Fatalf("expected success record")
	}
	if got := Float(rec.ShiftXMeters, 0); got != 45 {
		t.Fatalf("expected shift_x_meters 45, got %g", got)
	}
	if got := Float(rec.ShiftYMeters, 0); got != 60 {
		t.Fatalf("expected shift_y_meters 60, got %g", got)
	}
	if got := Float(rec.ChangeSSIM, 0); math.Abs(got-0.09) > 1e-9 {
		t.Fatalf("expected change_ssim 0.09, got %g", got)
	}
}

func TestNewRecordKeepsEngineMeters(t *testing.T) {
	res := EngineResult{
		Success:      true,
		ShiftX:       floatPtr(2),
		ShiftY:       floatPtr(2),
		ShiftXMeters: floatPtr(-6.07),
		ShiftYMeters: floatPtr(-5.04),
	}
	rec := NewRecord("scene_ms.tif", "S2", res, 10, -10)
	if got := Float(rec.ShiftXMeters, 0); got != -6.07 {
		t.Fatalf("engine-reported meters must win, got %g", got)
	}
	if got := Float(rec.ShiftYMeters, 0); got != -5.04 {
		t.Fatalf("engine-reported meters must win, got %g", got)
	}
}

func TestNewRecordCollapsesFailures(t *testing.T) {
	crs := "EPSG:32610"
	rec := NewRecord("bad_ms.tif", "L9", EngineResult{Success: false, CRS: &crs}, 30, -30)
	if rec.Success {
		t.Fatalf("expected failed record")
	}
	if rec.ShiftX != nil || rec.ShiftY != nil || rec.ShiftXMeters != nil || rec.ShiftReliability != nil {
		t.Fatalf("numeric fields must be absent on failure: %+v", rec)
	}
	if rec.CRS == nil || *rec.CRS != "EPSG:32610" {
		t.Fatalf("CRS metadata must survive failure")
	}

	rec = NewRecord("half_ms.tif", "L9", EngineResult{Success: true}, 30, -30)
	if rec.Success {
		t.Fatalf("a result without shifts must collapse to failure")
	}
}

func TestShiftRecordDecodesLegacyValues(t *testing.T) {
	raw := `{
		"original_ssim": 0.42,
		"coregistered_ssim": "0.55",
		"change_ssim": "null",
		"shift_x": -1.25,
		"shift_y": 0.75,
		"shift_x_meters": null,
		"shift_y_meters": null,
		"shift_reliability": false,
		"window_size": [256, 256],
		"success": "True",
		"CRS": "EPSG:32618",
		"CRS_converted": false
	}`
	var rec ShiftRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !rec.Success {
		t.Fatalf("string success must decode as true")
	}
	if rec.ShiftReliability != nil {
		t.Fatalf("bare false reliability must decode as absent, got %g", *rec.ShiftReliability)
	}
	if got := Float(rec.CoregisteredSSIM, 0); got != 0.55 {
		t.Fatalf("quoted numeric must decode, got %g", got)
	}
	if rec.ChangeSSIM != nil {
		t.Fatalf("the string \"null\" must decode as absent")
	}
	if rec.WindowSize != [2]int{256, 256} {
		t.Fatalf("unexpected window size %v", rec.WindowSize)
	}
	if rec.CRS == nil || *rec.CRS != "EPSG:32618" {
		t.Fatalf("unexpected CRS")
	}
	if got := Float(rec.ShiftX, 0); got != -1.25 {
		t.Fatalf("unexpected shift_x %g", got)
	}
}

func TestFailedRecordMarshalsNulls(t *testing.T) {
	rec := FailedRecord("x_ms.tif", "L8", nil, false)
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"shift_x":null`) || !strings.Contains(s, `"shift_reliability":null`) {
		t.Fatalf("failed record must write nulls: %s", s)
	}
	if strings.Contains(s, "x_ms.tif") {
		t.Fatalf("filename must not appear inside the record body: %s", s)
	}
}
