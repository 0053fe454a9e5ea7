package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleConfig = `{
    "roi_ids": ["zih2", "zih3"],
    "zih2": {
        "dates": ["2023-12-01", "2024-03-01"],
        "sitename": "ID_zih2_datetime11-04-24__04_30_52",
        "polygon": [[[-75.0, 36.0], [-75.0, 36.1], [-74.9, 36.1], [-74.9, 36.0]]],
        "landsat_collection": "C02",
        "sat_list": ["L8", "L9", "S2"]
    },
    "settings": {
        "output_epsg": 32618,
        "save_figure": true
    }
}
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("failed to write sample config: %v", err)
	}
	return path
}

func TestResolveROI(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	roi, err := cfg.ResolveROI("")
	if err != nil {
		t.Fatalf("failed to resolve default ROI: %v", err)
	}
	if roi != "zih2" {
		t.Fatalf("expected default ROI zih2, got %q", roi)
	}

	if _, err := cfg.ResolveROI("zih3"); err == nil {
		t.Fatal("expected error for ROI without an input block")
	}
	if _, err := cfg.ResolveROI("nope"); err == nil {
		t.Fatal("expected error for unknown ROI")
	}

	roi, err = cfg.ResolveROI("zih2")
	if err != nil {
		t.Fatalf("failed to resolve explicit ROI: %v", err)
	}
	if roi != "zih2" {
		t.Fatalf("expected zih2, got %q", roi)
	}
}

func TestSatellitesAndSitename(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	sats, err := cfg.Satellites("zih2")
	if err != nil {
		t.Fatalf("failed to read sat_list: %v", err)
	}
	if !reflect.DeepEqual(sats, []string{"L8", "L9", "S2"}) {
		t.Fatalf("unexpected sat_list: %v", sats)
	}

	site, err := cfg.Sitename("zih2")
	if err != nil {
		t.Fatalf("failed to read sitename: %v", err)
	}
	if site != "ID_zih2_datetime11-04-24__04_30_52" {
		t.Fatalf("unexpected sitename: %q", site)
	}

	if _, err := cfg.Satellites("zih3"); err == nil {
		t.Fatal("expected error for ROI without an input block")
	}
}

func TestRewriteForCoregistered(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	out := filepath.Join(t.TempDir(), "config.json")
	settings := map[string]any{"max_shift_meters": 250.0}
	if err := cfg.RewriteForCoregistered(out, settings); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	rewritten, err := Load(out)
	if err != nil {
		t.Fatalf("failed to reload rewritten config: %v", err)
	}
	site, err := rewritten.Sitename("zih2")
	if err != nil {
		t.Fatalf("failed to read rewritten sitename: %v", err)
	}
	want := filepath.Join("ID_zih2_datetime11-04-24__04_30_52", "coregistered")
	if site != want {
		t.Fatalf("expected sitename %q, got %q", want, site)
	}

	raw, ok := rewritten.obj.get("coregistered_settings")
	if !ok {
		t.Fatal("expected coregistered_settings in rewritten config")
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("failed to decode coregistered_settings: %v", err)
	}
	if got["max_shift_meters"] != 250.0 {
		t.Fatalf("unexpected coregistered_settings: %v", got)
	}

	// The rewrite must not disturb key order or touch the source config.
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read rewritten file: %v", err)
	}
	text := string(data)
	order := []string{`"roi_ids"`, `"zih2"`, `"settings"`, `"coregistered_settings"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, key)
		if idx < 0 {
			t.Fatalf("expected key %s in rewritten config", key)
		}
		if idx < last {
			t.Fatalf("key %s out of order", key)
		}
		last = idx
	}
	if !strings.HasSuffix(text, "\n") {
		t.Fatal("expected trailing newline")
	}

	site, err = cfg.Sitename("zih2")
	if err != nil {
		t.Fatalf("failed to re-read source sitename: %v", err)
	}
	if site != "ID_zih2_datetime11-04-24__04_30_52" {
		t.Fatalf("source config was modified, sitename now %q", site)
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	if _, err := Parse([]byte(`[1, 2, 3]`)); err == nil {
		t.Fatal("expected error for non-object config")
	}
}
