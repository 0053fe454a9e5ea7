package raster

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Ops is the raster surface the shift propagation pipeline works against.
// The GDAL implementation shells out to command line utilities; tests
// substitute a stub.
type Ops interface {
	// ReadInfo returns georeferencing for one raster.
	ReadInfo(ctx context.Context, path string) (*Info, error)
	// ApplyShift writes a copy of src to dst whose origin moved by dx, dy
	// pixels. src is never modified.
	ApplyShift(ctx context.Context, src, dst string, dx, dy float64) error
	// Reproject writes a copy of src to dst warped into the given CRS,
	// keeping the source resolution.
	Reproject(ctx context.Context, src, dst, crs string) error
}

// GDAL implements Ops on top of gdalinfo, gdal_translate and gdalwarp.
type GDAL struct{}

// NewGDAL returns the command line backed implementation.
func NewGDAL() *GDAL { return &GDAL{} }

// ReadInfo runs gdalinfo -json on path.
func (g *GDAL) ReadInfo(ctx context.Context, path string) (*Info, error) {
	cmd := exec.CommandContext(ctx, "gdalinfo", "-json", path)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("gdalinfo failed for %s: %v: %s",
			filepath.Base(path), err, strings.TrimSpace(errBuf.String()))
	}
	return parseInfo(path, out.Bytes())
}

// ApplyShift rewrites the corner coordinates of src into dst. The pixel data
// is copied untouched, with the source compression (or LZW when the source
// reports none) and nodata carried over.
func (g *GDAL) ApplyShift(ctx context.Context, src, dst string, dx, dy float64) error {
	info, err := g.ReadInfo(ctx, src)
	if err != nil {
		return err
	}
	if info.GeoTransform.Rotated() {
		return fmt.Errorf("%s has a rotated geotransform, corner coordinates cannot express the shift", filepath.Base(src))
	}
	shifted := info.GeoTransform.Shift(dx, dy)
	ulx, uly, lrx, lry := shifted.Bounds(info.Width, info.Height)

	args := []string{
		"-q", "-of", "GTiff",
		"-co", "COMPRESS=" + compressionOf(info),
		"-a_ullr", coord(ulx), coord(uly), coord(lrx), coord(lry),
		src, dst,
	}
	return runTool(ctx, "gdal_translate", args)
}

// Reproject warps src into the target CRS with bilinear resampling, keeping
// the source pixel size so band math against sibling rasters stays valid.
func (g *GDAL) Reproject(ctx context.Context, src, dst, crs string) error {
	info, err := g.ReadInfo(ctx, src)
	if err != nil {
		return err
	}
	args := []string{
		"-q", "-of", "GTiff",
		"-t_srs", crs,
		"-tr", coord(math.Abs(info.GeoTransform.XRes())), coord(math.Abs(info.GeoTransform.YRes())),
		"-r", "bilinear",
		"-co", "COMPRESS=" + compressionOf(info),
		"-overwrite",
		src, dst,
	}
	return runTool(ctx, "gdalwarp", args)
}

func compressionOf(info *Info) string {
	if info.Compression == "" {
		return "LZW"
	}
	return info.Compression
}

func runTool(ctx context.Context, tool string, args []string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %v: %s", tool, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// coord formats a map coordinate without exponent notation, which some GDAL
// builds mishandle in argument lists.
func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
