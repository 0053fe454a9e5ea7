// Package raster reads GeoTIFF georeferencing and rewrites it to apply
// measured shifts, shelling out to the GDAL command line utilities. Pixel
// data is never resampled by a shift; only the mapping from pixels to world
// coordinates changes.
package raster

// GeoTransform holds the six affine coefficients GDAL reports:
//
//	x = GT[0] + col*GT[1] + row*GT[2]
//	y = GT[3] + col*GT[4] + row*GT[5]
type GeoTransform [6]float64

// OriginX returns the x coordinate of the raster's upper-left corner.
func (gt GeoTransform) OriginX() float64 { return gt[0] }

// OriginY returns the y coordinate of the raster's upper-left corner.
func (gt GeoTransform) OriginY() float64 { return gt[3] }

// XRes returns the signed pixel width in map units.
func (gt GeoTransform) XRes() float64 { return gt[1] }

// YRes returns the signed pixel height in map units, negative for the usual
// north-up rasters.
func (gt GeoTransform) YRes() float64 { return gt[5] }

// Rotated reports whether the transform carries rotation or shear terms.
func (gt GeoTransform) Rotated() bool { return gt[2] != 0 || gt[4] != 0 }

// Shift returns the transform after translating the origin by dx, dy pixels.
func (gt GeoTransform) Shift(dx, dy float64) GeoTransform {
	out := gt
	out[0] = gt[0] + gt[1]*dx + gt[2]*dy
	out[3] = gt[3] + gt[4]*dx + gt[5]*dy
	return out
}

// Bounds returns the corner coordinates of a raster w by h pixels in size.
func (gt GeoTransform) Bounds(w, h int) (ulx, uly, lrx, lry float64) {
	ulx = gt[0]
	uly = gt[3]
	lrx = gt[0] + gt[1]*float64(w) + gt[2]*float64(h)
	lry = gt[3] + gt[4]*float64(w) + gt[5]*float64(h)
	return ulx, uly, lrx, lry
}
