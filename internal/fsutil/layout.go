package fsutil

import (
	"fmt"
	"path/filepath"
)

// SessionLayout addresses the input tree of one download session:
//
//	<root>/<satellite>/{ms,mask,meta,pan|swir}/...
//	<root>/jpg_files/preprocessed/RGB/*.jpg
//	<root>/config.json, config_gdf.geojson
type SessionLayout struct {
	Root string
}

func (l SessionLayout) SatelliteDir(sat string) string { return filepath.Join(l.Root, sat) }

func (l SessionLayout) BandDir(sat, band string) string {
	return filepath.Join(l.Root, sat, band)
}

func (l SessionLayout) MSDir(sat string) string   { return l.BandDir(sat, "ms") }
func (l SessionLayout) MetaDir(sat string) string { return filepath.Join(l.Root, sat, "meta") }

func (l SessionLayout) RGBJpgDir() string {
	return filepath.Join(l.Root, "jpg_files", "preprocessed", "RGB")
}

func (l SessionLayout) ConfigPath() string  { return filepath.Join(l.Root, "config.json") }
func (l SessionLayout) GeoJSONPath() string { return filepath.Join(l.Root, "config_gdf.geojson") }

// CoregDirName is the folder created inside a session for aligned output.
const CoregDirName = "coregistered"

// CoregLayout addresses the output tree written inside a session.
type CoregLayout struct {
	Root string
}

// NewCoregLayout returns the layout rooted at <session>/coregistered.
func NewCoregLayout(sessionDir string) CoregLayout {
	return CoregLayout{Root: filepath.Join(sessionDir, CoregDirName)}
}

func (l CoregLayout) BandDir(sat, band string) string {
	return filepath.Join(l.Root, sat, band)
}

func (l CoregLayout) MSDir(sat string) string   { return l.BandDir(sat, "ms") }
func (l CoregLayout) MetaDir(sat string) string { return filepath.Join(l.Root, sat, "meta") }

// NewCRSDir holds reprojected intermediates for one band folder. They are
// kept so a run can be audited.
func (l CoregLayout) NewCRSDir(sat, band string) string {
	return filepath.Join(l.Root, sat, band, "new_crs")
}

// FailedDir segregates every file of a rejected scene.
func (l CoregLayout) FailedDir(sat string) string {
	return filepath.Join(l.Root, "failed_coregistration", sat)
}

func (l CoregLayout) JpgDir() string {
	return filepath.Join(l.Root, "jpg_files", "preprocessed")
}

func (l CoregLayout) RGBJpgDir() string {
	return filepath.Join(l.Root, "jpg_files", "preprocessed", "RGB")
}

func (l CoregLayout) ResultsPath() string {
	return filepath.Join(l.Root, "transformation_results.json")
}

func (l CoregLayout) CSVPath() string     { return filepath.Join(l.Root, "filtered_files.csv") }
func (l CoregLayout) ConfigPath() string  { return filepath.Join(l.Root, "config.json") }
func (l CoregLayout) GeoJSONPath() string { return filepath.Join(l.Root, "config_gdf.geojson") }
func (l CoregLayout) ReadmePath() string  { return filepath.Join(l.Root, "readme.txt") }

// Create builds the output tree for the given satellites. Unrecognized
// satellite names are a configuration error and stop the run before any
// processing starts.
func (l CoregLayout) Create(satellites []string) error {
	if err := EnsureDir(filepath.Join(l.Root, "jpg_files", "preprocessed")); err != nil {
		return err
	}
	for _, sat := range satellites {
		bands := CompanionBands(sat)
		if bands == nil {
			return fmt.Errorf("satellite %q not recognized", sat)
		}
		dirs := append([]string{"ms", "meta"}, bands...)
		for _, d := range dirs {
			if err := EnsureDir(filepath.Join(l.Root, sat, d)); err != nil {
				return err
			}
		}
	}
	return nil
}

// PlanetLayout addresses the flat output folder of a PlanetScope bulk run.
type PlanetLayout struct {
	Root string
}

func (l PlanetLayout) FailedDir() string   { return filepath.Join(l.Root, "failed_coregistration") }
func (l PlanetLayout) ResultsPath() string { return filepath.Join(l.Root, "coreg_results.json") }
func (l PlanetLayout) CSVPath() string     { return filepath.Join(l.Root, "filtered_files.csv") }
