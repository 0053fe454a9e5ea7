package raster

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
)

// Info summarizes the georeferencing of one raster file.
type Info struct {
	Path         string
	Width        int
	Height       int
	BandCount    int
	GeoTransform GeoTransform
	// CRS is the authority code ("EPSG:32618") when one can be identified,
	// empty otherwise.
	CRS         string
	Compression string
	DataType    string
	NoData      *float64
}

// parseInfo decodes the JSON emitted by gdalinfo -json.
func parseInfo(path string, data []byte) (*Info, error) {
	var raw struct {
		Size             []int     `json:"size"`
		GeoTransform     []float64 `json:"geoTransform"`
		CoordinateSystem struct {
			WKT string `json:"wkt"`
		} `json:"coordinateSystem"`
		Metadata map[string]map[string]string `json:"metadata"`
		Bands    []struct {
			Type        string   `json:"type"`
			NoDataValue *float64 `json:"noDataValue"`
		} `json:"bands"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse gdalinfo output for %s: %w", filepath.Base(path), err)
	}
	if len(raw.Size) != 2 {
		return nil, fmt.Errorf("gdalinfo reported no raster size for %s", filepath.Base(path))
	}
	if len(raw.GeoTransform) != 6 {
		return nil, fmt.Errorf("%s has no geotransform", filepath.Base(path))
	}

	info := &Info{
		Path:      path,
		Width:     raw.Size[0],
		Height:    raw.Size[1],
		BandCount: len(raw.Bands),
		CRS:       epsgFromWKT(raw.CoordinateSystem.WKT),
	}
	copy(info.GeoTransform[:], raw.GeoTransform)
	if structure, ok := raw.Metadata["IMAGE_STRUCTURE"]; ok {
		info.Compression = structure["COMPRESSION"]
	}
	if len(raw.Bands) > 0 {
		info.DataType = raw.Bands[0].Type
		info.NoData = raw.Bands[0].NoDataValue
	}
	return info, nil
}

var epsgRe = regexp.MustCompile(`(?:ID\["EPSG",(\d+)\]|AUTHORITY\["EPSG","(\d+)"\])`)

// epsgFromWKT pulls the authority code out of a WKT blob. The last ID in a
// WKT2 string names the CRS itself; earlier ones belong to datums and axes.
func epsgFromWKT(wkt string) string {
	matches := epsgRe.FindAllStringSubmatch(wkt, -1)
	if len(matches) == 0 {
		return ""
	}
	last := matches[len(matches)-1]
	code := last[1]
	if code == "" {
		code = last[2]
	}
	return "EPSG:" + code
}
