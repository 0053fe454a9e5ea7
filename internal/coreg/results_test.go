package coreg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResultsDocumentKeepsInsertionOrder(t *testing.T) {
	doc := NewResultsDocument(true)
	names := []string{"2020-01-01_ms.tif", "2020-02-02_ms.tif", "2020-03-03_ms.tif"}
	for i, name := range names {
		sat := "L8"
		if i == 2 {
			sat = "L9"
		}
		res := EngineResult{Success: true, ShiftX: floatPtr(float64(i)), ShiftY: floatPtr(1)}
		doc.Add(NewRecord(name, sat, res, 30, -30))
	}
	doc.SetSettings(RunSettings{
		EngineSettings: DefaultEngineSettings(),
		FilterSettings: DefaultFilterSettings(),
	})

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var loaded ResultsDocument
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !loaded.Grouped() {
		t.Fatalf("expected grouped layout to be detected")
	}
	recs := loaded.Records()
	if len(recs) != len(names) {
		t.Fatalf("expected %d records, got %d", len(names), len(recs))
	}
	for i, rec := range recs {
		if rec.Filename != names[i] {
			t.Fatalf("record %d out of order: got %s", i, rec.Filename)
		}
	}
	if recs[0].Satellite != "L8" || recs[2].Satellite != "L9" {
		t.Fatalf("satellite groups lost: %s %s", recs[0].Satellite, recs[2].Satellite)
	}
	if loaded.Settings() == nil || loaded.Settings().MaxShiftMeters != 250 {
		t.Fatalf("settings block lost")
	}
}

func TestResultsDocumentSettingsLast(t *testing.T) {
	doc := NewResultsDocument(false)
	doc.Add(FailedRecord("z_last_ms.tif", "", nil, false))
	doc.SetSettings(RunSettings{EngineSettings: DefaultEngineSettings(), FilterSettings: DefaultFilterSettings()})

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(data)
	settingsIdx := strings.Index(s, `"settings"`)
	if settingsIdx < 0 {
		t.Fatalf("settings key missing: %s", s)
	}
	if strings.Index(s, `"z_last_ms.tif"`) > settingsIdx {
		t.Fatalf("settings must be the last key: %s", s)
	}
}

func TestResultsDocumentFlatLayout(t *testing.T) {
	doc := NewResultsDocument(false)
	doc.Add(NewRecord("b_planet.tif", "", EngineResult{Success: true, ShiftX: floatPtr(0.5), ShiftY: floatPtr(0.5)}, 3, -3))
	doc.Add(FailedRecord("a_planet.tif", "", nil, false))

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var loaded ResultsDocument
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if loaded.Grouped() {
		t.Fatalf("expected flat layout")
	}
	recs := loaded.Records()
	if len(recs) != 2 || recs[0].Filename != "b_planet.tif" || recs[1].Filename != "a_planet.tif" {
		t.Fatalf("expected on-disk order preserved, got %+v", recs)
	}
	if recs[1].Success {
		t.Fatalf("failed record must stay failed after round trip")
	}
}

func TestReadResultsDocumentLegacyFile(t *testing.T) {
	legacy := `{
    "L9": {
        "2023-06-10-22-57-30_L9_site_ms.tif": {
            "original_ssim": 0.51,
            "coregistered_ssim": 0.56,
            "change_ssim": 0.05,
            "shift_x": 1.2,
            "shift_y": -0.4,
            "shift_x_meters": 36.0,
            "shift_y_meters": 12.0,
            "shift_reliability": 73.2,
            "window_size": [256, 256],
            "success": true,
            "CRS": "EPSG:32618",
            "CRS_converted": false
        }
    },
    "S2": {},
    "settings": null
}`
	path := filepath.Join(t.TempDir(), "coreg_results.json")
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	doc, err := ReadResultsDocument(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !doc.Grouped() {
		t.Fatalf("expected grouped layout")
	}
	if doc.Len() != 1 {
		t.Fatalf("expected one record, got %d", doc.Len())
	}
	rec, ok := doc.Record("2023-06-10-22-57-30_L9_site_ms.tif")
	if !ok {
		t.Fatalf("record lookup failed")
	}
	if rec.Satellite != "L9" {
		t.Fatalf("expected satellite L9, got %q", rec.Satellite)
	}
	if got := Float(rec.ShiftReliability, 0); got != 73.2 {
		t.Fatalf("unexpected reliability %g", got)
	}
	if doc.Settings() != nil {
		t.Fatalf("null settings block must read as absent")
	}

	out := filepath.Join(t.TempDir(), "rewritten.json")
	if err := doc.WriteFile(out); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	again, err := ReadResultsDocument(out)
	if err != nil {
		t.Fatalf("re-read failed: %v", err)
	}
	if again.Len() != 1 || !again.Grouped() {
		t.Fatalf("rewrite changed the document shape")
	}
}
