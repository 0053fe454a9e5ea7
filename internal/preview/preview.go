// Package preview renders browseable JPG previews of multispectral rasters.
// The previews land in the jpg_files tree of a coregistered session, where
// downstream shoreline tooling picks them up by satellite and date.
package preview

import (
	"context"
	"fmt"
	"path/filepath"

	"gopkg.in/gographics/imagick.v3/imagick"

	"georeg/internal/fsutil"
)

// Generator renders one raster into an RGB preview image.
type Generator interface {
	Name() string
	Generate(ctx context.Context, rasterPath, jpgPath string) error
}

// Magick renders previews with the ImageMagick wand bindings.
type Magick struct {
	quality uint
}

// NewMagick returns a generator writing JPGs at the given quality.
// Quality 0 selects the default of 90.
func NewMagick(quality uint) *Magick {
	if quality == 0 {
		quality = 90
	}
	return &Magick{quality: quality}
}

func (m *Magick) Name() string { return "imagemagick" }

// Generate reads the raster and writes an 8 bit JPG. The source is never
// modified. Landsat and Sentinel scenes are 16 bit, so the levels are
// stretched to the displayable range first.
func (m *Magick) Generate(ctx context.Context, rasterPath, jpgPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !fsutil.Exists(rasterPath) {
		return fmt.Errorf("raster does not exist: %s", rasterPath)
	}
	if err := fsutil.EnsureDir(filepath.Dir(jpgPath)); err != nil {
		return fmt.Errorf("failed to create preview directory: %w", err)
	}

	imagick.Initialize()
	defer imagick.Terminate()

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImage(rasterPath); err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(rasterPath), err)
	}
	if err := mw.AutoLevelImage(); err != nil {
		return fmt.Errorf("failed to stretch levels of %s: %w", filepath.Base(rasterPath), err)
	}
	if err := mw.SetImageFormat("JPEG"); err != nil {
		return fmt.Errorf("failed to set output format: %w", err)
	}
	if err := mw.SetImageCompressionQuality(m.quality); err != nil {
		return fmt.Errorf("failed to set quality: %w", err)
	}
	if err := mw.WriteImage(jpgPath); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(jpgPath), err)
	}
	return nil
}
