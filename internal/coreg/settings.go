package coreg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EngineSettings configure one engine invocation. The JSON keys follow the
// engine's wire contract.
type EngineSettings struct {
	WindowSize   [2]int     `json:"ws" yaml:"ws"`
	NoData       [2]float64 `json:"nodata" yaml:"nodata"`
	MaxShiftPx   int        `json:"max_shift" yaml:"max_shift"`
	BinaryWS     bool       `json:"binary_ws" yaml:"binary_ws"`
	Progress     bool       `json:"progress" yaml:"progress"`
	Verbose      bool       `json:"v" yaml:"v"`
	IgnoreErrors bool       `json:"ignore_errors" yaml:"ignore_errors"`
	FormatOut    string     `json:"fmt_out" yaml:"fmt_out"`
}

// DefaultEngineSettings returns the engine configuration used for batch runs:
// a 256px correlation window, zero nodata on both rasters, a 100px search cap,
// and errors converted to failed results instead of aborting.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		WindowSize:   [2]int{256, 256},
		NoData:       [2]float64{0, 0},
		MaxShiftPx:   100,
		BinaryWS:     false,
		Progress:     true,
		Verbose:      false,
		IgnoreErrors: true,
		FormatOut:    "GTiff",
	}
}

// Validate reports configuration errors before any processing starts.
func (s EngineSettings) Validate() error {
	if s.WindowSize[0] <= 0 || s.WindowSize[1] <= 0 {
		return fmt.Errorf("engine settings: window size must be positive, got %v", s.WindowSize)
	}
	if s.MaxShiftPx <= 0 {
		return fmt.Errorf("engine settings: max shift must be positive, got %d", s.MaxShiftPx)
	}
	if s.FormatOut == "" {
		return fmt.Errorf("engine settings: output format must be set")
	}
	return nil
}

// FilterSettings are the thresholds for the outlier filter pipeline. They are
// immutable for the duration of a run.
type FilterSettings struct {
	ShiftReliabilityMin    float64 `json:"shift_reliability" yaml:"shift_reliability"`
	WindowSizeMin          int     `json:"window_size" yaml:"window_size"`
	MaxShiftMeters         float64 `json:"max_shift_meters" yaml:"max_shift_meters"`
	FilterZScore           bool    `json:"filter_z_score" yaml:"filter_z_score"`
	FilterZScorePassedOnly bool    `json:"filter_z_score_filter_passed_only" yaml:"filter_z_score_filter_passed_only"`
	ZScoreThreshold        float64 `json:"z_score_threshold" yaml:"z_score_threshold"`
}

// DefaultFilterSettings returns the thresholds used for batch runs.
func DefaultFilterSettings() FilterSettings {
	return FilterSettings{
		ShiftReliabilityMin:    40,
		WindowSizeMin:          50,
		MaxShiftMeters:         250,
		FilterZScore:           true,
		FilterZScorePassedOnly: false,
		ZScoreThreshold:        2,
	}
}

// Validate fails fast on settings that would make the pipeline nonsensical.
// It must be called before any scene is processed.
func (s FilterSettings) Validate() error {
	if s.ShiftReliabilityMin < 0 || s.ShiftReliabilityMin > 100 {
		return fmt.Errorf("filter settings: shift reliability minimum must be within [0,100], got %g", s.ShiftReliabilityMin)
	}
	if s.WindowSizeMin < 0 {
		return fmt.Errorf("filter settings: window size minimum must not be negative, got %d", s.WindowSizeMin)
	}
	if s.MaxShiftMeters <= 0 {
		return fmt.Errorf("filter settings: max shift meters must be positive, got %g", s.MaxShiftMeters)
	}
	if s.FilterZScore && s.ZScoreThreshold <= 0 {
		return fmt.Errorf("filter settings: z-score threshold must be positive, got %g", s.ZScoreThreshold)
	}
	return nil
}

// LoadFilterSettings reads a preset file (YAML or JSON) and overlays it on the
// defaults, so presets only need to name the thresholds they change.
func LoadFilterSettings(path string) (FilterSettings, error) {
	s := DefaultFilterSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read filter preset: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &s)
	default:
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return s, fmt.Errorf("parse filter preset %s: %w", filepath.Base(path), err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// RunSettings is the reproducibility block stored under the "settings" key of
// every result document: the engine and filter configuration plus the
// reference raster the batch was aligned against. The embedded structs
// flatten into a single JSON object.
type RunSettings struct {
	EngineSettings `yaml:",inline"`
	FilterSettings `yaml:",inline"`
	ReferencePath  string `json:"template_path,omitempty" yaml:"template_path,omitempty"`
}
