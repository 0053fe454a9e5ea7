// Package session reads and rewrites the config.json that describes a
// downloaded imagery session: which regions of interest it covers, which
// satellites each region requested, and where the scene tree lives.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"georeg/internal/fsutil"
)

// Config is a parsed session config.json. Top-level keys are ROI IDs mapping
// to input blocks, plus roi_ids, settings and whatever else the downloader
// recorded. Unknown keys survive a rewrite untouched and in order.
type Config struct {
	obj *jsonObject
}

// Load reads a session config from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Parse decodes session config bytes.
func Parse(data []byte) (*Config, error) {
	obj, err := parseObject(data)
	if err != nil {
		return nil, err
	}
	return &Config{obj: obj}, nil
}

// ROIIDs returns the regions of interest the session lists, in config order.
func (c *Config) ROIIDs() []string {
	raw, ok := c.obj.get("roi_ids")
	if !ok {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	return ids
}

// ResolveROI picks the ROI a run works on. An explicitly requested ID must
// have an input block in the config. With no request, the first listed ROI
// that has an input block wins.
func (c *Config) ResolveROI(requested string) (string, error) {
	if requested != "" {
		if _, ok := c.obj.get(requested); !ok {
			return "", fmt.Errorf("ROI %q not found in session config", requested)
		}
		return requested, nil
	}
	for _, id := range c.ROIIDs() {
		if _, ok := c.obj.get(id); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("session config lists no usable ROI")
}

type roiBlock struct {
	Sitename string   `json:"sitename"`
	SatList  []string `json:"sat_list"`
}

func (c *Config) roi(roiID string) (*roiBlock, error) {
	raw, ok := c.obj.get(roiID)
	if !ok {
		return nil, fmt.Errorf("ROI %q not found in session config", roiID)
	}
	var block roiBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("failed to parse ROI %q: %w", roiID, err)
	}
	return &block, nil
}

// Satellites returns the sat_list of one ROI.
func (c *Config) Satellites(roiID string) ([]string, error) {
	block, err := c.roi(roiID)
	if err != nil {
		return nil, err
	}
	return block.SatList, nil
}

// Sitename returns the sitename of one ROI.
func (c *Config) Sitename(roiID string) (string, error) {
	block, err := c.roi(roiID)
	if err != nil {
		return "", err
	}
	return block.Sitename, nil
}

// RewriteForCoregistered writes a derived config to path. Every listed ROI's
// sitename gains a coregistered suffix and the settings the run used are
// recorded under coregistered_settings, so tools pointed at the new config
// treat the aligned imagery as a session of its own. The receiver is not
// modified.
func (c *Config) RewriteForCoregistered(path string, settings any) error {
	out := c.obj.clone()
	for _, id := range c.ROIIDs() {
		raw, ok := out.get(id)
		if !ok {
			continue
		}
		block, err := parseObject(raw)
		if err != nil {
			return fmt.Errorf("failed to parse ROI %q: %w", id, err)
		}
		siteRaw, ok := block.get("sitename")
		if !ok {
			continue
		}
		var sitename string
		if err := json.Unmarshal(siteRaw, &sitename); err != nil {
			return fmt.Errorf("failed to parse sitename of ROI %q: %w", id, err)
		}
		renamed, err := json.Marshal(filepath.Join(sitename, fsutil.CoregDirName))
		if err != nil {
			return err
		}
		block.set("sitename", renamed)
		out.set(id, block.marshal())
	}

	settingsRaw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode run settings: %w", err)
	}
	out.set("coregistered_settings", settingsRaw)

	var buf bytes.Buffer
	if err := json.Indent(&buf, out.marshal(), "", "    "); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	buf.WriteByte('\n')
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
