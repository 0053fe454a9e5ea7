package fsutil

import (
	"regexp"
	"strings"
)

// Satellite identifiers as they appear in scene filenames.
const (
	SatL5 = "L5"
	SatL7 = "L7"
	SatL8 = "L8"
	SatL9 = "L9"
	SatS2 = "S2"
)

// Satellites lists every recognized identifier in processing order.
var Satellites = []string{SatL5, SatL7, SatL8, SatL9, SatS2}

// Scene filenames look like
// 2024-05-28-22-18-07_S2_ID_1_datetime11-04-24__04_30_52_ms.tif: a capture
// date prefix, then the satellite delimited by underscores or periods.
var (
	satRe  = regexp.MustCompile(`(?i)(?:^|[_.])(l5|l7|l8|l9|s2)(?:[_.]|$)`)
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}`)
)

// DetectSatellite extracts the satellite identifier from a filename, or ""
// when none is present.
func DetectSatellite(filename string) string {
	m := satRe.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// SceneDate extracts the capture date prefix ("YYYY-MM-DD-HH-MM-SS") from a
// filename, or "" when the name does not start with one.
func SceneDate(filename string) string {
	return dateRe.FindString(filename)
}

// CompanionBands lists the sibling band folders that ride along with a
// satellite's ms raster. Every satellite carries a cloud mask; Sentinel-2
// adds a short-wave infrared band and the newer Landsats a panchromatic one.
func CompanionBands(satellite string) []string {
	switch satellite {
	case SatS2:
		return []string{"mask", "swir"}
	case SatL7, SatL8, SatL9:
		return []string{"mask", "pan"}
	case SatL5:
		return []string{"mask"}
	default:
		return nil
	}
}

// CompanionName maps an ms filename to its sibling in another band folder.
// Only the trailing band marker is swapped, so site names containing "ms"
// survive. Returns "" for names that do not follow the ms convention.
func CompanionName(msName, band string) string {
	const suffix = "_ms.tif"
	if !strings.HasSuffix(msName, suffix) {
		return ""
	}
	return strings.TrimSuffix(msName, suffix) + "_" + band + ".tif"
}

// MetaName maps an ms filename to its metadata sidecar.
func MetaName(msName string) string {
	const suffix = "_ms.tif"
	if !strings.HasSuffix(msName, suffix) {
		return ""
	}
	return strings.TrimSuffix(msName, suffix) + ".txt"
}

// PreviewName maps an ms filename to its RGB preview image.
func PreviewName(msName string) string {
	const suffix = "_ms.tif"
	if !strings.HasSuffix(msName, suffix) {
		return ""
	}
	return strings.TrimSuffix(msName, suffix) + ".jpg"
}

// PlanetPrimaryPattern is the substring PlanetScope analytic rasters carry.
const PlanetPrimaryPattern = "AnalyticMS_toar_clip"

// PlanetCompanionName maps a PlanetScope analytic raster to its usable-data
// mask. Returns "" for names that do not follow the PlanetScope convention.
func PlanetCompanionName(name string) string {
	if !strings.Contains(name, PlanetPrimaryPattern) {
		return ""
	}
	return strings.Replace(name, PlanetPrimaryPattern, "udm2_clip", 1)
}
