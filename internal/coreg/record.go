package coreg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ShiftRecord is one coregistration measurement for a single target file.
// Records are built once, right after the engine returns, and never mutated.
// The JSON field names match the result documents consumed by downstream
// tooling, so they must not change.
type ShiftRecord struct {
	Filename  string `json:"-"`
	Satellite string `json:"-"`

	OriginalSSIM     *float64 `json:"original_ssim"`
	CoregisteredSSIM *float64 `json:"coregistered_ssim"`
	ChangeSSIM       *float64 `json:"change_ssim"`
	ShiftX           *float64 `json:"shift_x"`
	ShiftY           *float64 `json:"shift_y"`
	ShiftXMeters     *float64 `json:"shift_x_meters"`
	ShiftYMeters     *float64 `json:"shift_y_meters"`
	ShiftReliability *float64 `json:"shift_reliability"`
	WindowSize       [2]int   `json:"window_size"`
	Success          bool     `json:"success"`
	CRS              *string  `json:"CRS"`
	CRSConverted     bool     `json:"CRS_converted"`
}

// EngineResult is the wire contract returned by a coregistration engine:
// a shift vector with confidence and CRS metadata, or success=false when the
// engine could not produce a usable result.
type EngineResult struct {
	Success          bool     `json:"success"`
	ShiftX           *float64 `json:"shift_x"`
	ShiftY           *float64 `json:"shift_y"`
	ShiftXMeters     *float64 `json:"shift_x_meters"`
	ShiftYMeters     *float64 `json:"shift_y_meters"`
	ShiftReliability *float64 `json:"shift_reliability"`
	WindowSize       [2]int   `json:"window_size"`
	CRS              *string  `json:"CRS"`
	CRSConverted     bool     `json:"CRS_converted"`
	OriginalSSIM     *float64 `json:"original_ssim"`
	CoregisteredSSIM *float64 `json:"coregistered_ssim"`
	Error            string   `json:"error,omitempty"`
}

// NewRecord builds an immutable ShiftRecord from a raw engine result.
// xRes/yRes are the target raster's signed pixel resolutions, used to derive
// meter shifts (shift_px * pixel_size) when the engine did not report them.
// Results without usable shifts collapse to a failed record; one bad file must
// never take down a batch.
func NewRecord(filename, satellite string, r EngineResult, xRes, yRes float64) ShiftRecord {
	if !r.Success || r.ShiftX == nil || r.ShiftY == nil {
		return FailedRecord(filename, satellite, r.CRS, r.CRSConverted)
	}

	rec := ShiftRecord{
		Filename:         filename,
		Satellite:        satellite,
		OriginalSSIM:     r.OriginalSSIM,
		CoregisteredSSIM: r.CoregisteredSSIM,
		ShiftX:           r.ShiftX,
		ShiftY:           r.ShiftY,
		ShiftXMeters:     r.ShiftXMeters,
		ShiftYMeters:     r.ShiftYMeters,
		ShiftReliability: r.ShiftReliability,
		WindowSize:       r.WindowSize,
		Success:          true,
		CRS:              r.CRS,
		CRSConverted:     r.CRSConverted,
	}
	if rec.ShiftXMeters == nil && xRes != 0 {
		rec.ShiftXMeters = floatPtr(*r.ShiftX * xRes)
	}
	if rec.ShiftYMeters == nil && yRes != 0 {
		rec.ShiftYMeters = floatPtr(*r.ShiftY * yRes)
	}
	if r.OriginalSSIM != nil && r.CoregisteredSSIM != nil {
		rec.ChangeSSIM = floatPtr(*r.CoregisteredSSIM - *r.OriginalSSIM)
	}
	return rec
}

// FailedRecord is the record shape for engine failures: success=false and all
// numeric fields absent, so the filter pipeline short-circuits without ever
// touching missing data.
func FailedRecord(filename, satellite string, crs *string, crsConverted bool) ShiftRecord {
	return ShiftRecord{
		Filename:     filename,
		Satellite:    satellite,
		Success:      false,
		CRS:          crs,
		CRSConverted: crsConverted,
	}
}

// UnmarshalJSON tolerates the field quirks found in result documents written
// by earlier tooling: shift_reliability may be a bare false, numerics may
// arrive as quoted strings or the literal "null", success may be a string.
func (r *ShiftRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.OriginalSSIM = coerceFloat(raw["original_ssim"])
	r.CoregisteredSSIM = coerceFloat(raw["coregistered_ssim"])
	r.ChangeSSIM = coerceFloat(raw["change_ssim"])
	r.ShiftX = coerceFloat(raw["shift_x"])
	r.ShiftY = coerceFloat(raw["shift_y"])
	r.ShiftXMeters = coerceFloat(raw["shift_x_meters"])
	r.ShiftYMeters = coerceFloat(raw["shift_y_meters"])
	r.ShiftReliability = coerceFloat(raw["shift_reliability"])
	r.Success = coerceBool(raw["success"])
	r.CRSConverted = coerceBool(raw["CRS_converted"])

	if v, ok := raw["window_size"]; ok {
		var ws [2]int
		if err := json.Unmarshal(v, &ws); err == nil {
			r.WindowSize = ws
		}
	}
	if v, ok := raw["CRS"]; ok && string(v) != "null" {
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			r.CRS = &s
		}
	}
	return nil
}

func coerceFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	s := strings.TrimSpace(string(raw))
	switch s {
	case "null", "false", "true":
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &f
	}
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		if quoted == "null" || quoted == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(quoted, 64); err == nil {
			return &f
		}
	}
	return nil
}

func coerceBool(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	if s == "true" {
		return true
	}
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		return strings.EqualFold(quoted, "true")
	}
	return false
}

func floatPtr(v float64) *float64 { return &v }

// Float returns the pointed-to value, or def when the field is absent.
func Float(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func (r ShiftRecord) String() string {
	if !r.Success {
		return fmt.Sprintf("%s: failed", r.Filename)
	}
	return fmt.Sprintf("%s: shift=(%.3f, %.3f)px reliability=%.1f",
		r.Filename, Float(r.ShiftX, 0), Float(r.ShiftY, 0), Float(r.ShiftReliability, 0))
}
