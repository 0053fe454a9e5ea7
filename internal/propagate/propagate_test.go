package propagate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"georeg/internal/coreg"
	"georeg/internal/fsutil"
	"georeg/internal/raster"
)

func fp(v float64) *float64 { return &v }

func sp(v string) *string { return &v }

type shiftCall struct {
	src, dst string
	dx, dy   float64
}

type stubOps struct {
	shifts     []shiftCall
	reprojects []shiftCall
	failShift  map[string]error
}

func (s *stubOps) ReadInfo(ctx context.Context, path string) (*raster.Info, error) {
	return nil, fmt.Errorf("not used")
}

func (s *stubOps) ApplyShift(ctx context.Context, src, dst string, dx, dy float64) error {
	if err := s.failShift[filepath.Base(src)]; err != nil {
		return err
	}
	s.shifts = append(s.shifts, shiftCall{src: src, dst: dst, dx: dx, dy: dy})
	return os.WriteFile(dst, []byte("tif"), 0o644)
}

func (s *stubOps) Reproject(ctx context.Context, src, dst, crs string) error {
	s.reprojects = append(s.reprojects, shiftCall{src: src, dst: dst})
	return os.WriteFile(dst, []byte("tif"), 0o644)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touchCompanion(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte("tif"), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestSceneShiftsAllCompanions(t *testing.T) {
	sess := fsutil.SessionLayout{Root: t.TempDir()}
	out := fsutil.NewCoregLayout(sess.Root)

	filename := "2023-12-09-18-40-32_S2_site1_ms.tif"
	touchCompanion(t, sess.BandDir("S2", "mask"), "2023-12-09-18-40-32_S2_site1_mask.tif")
	touchCompanion(t, sess.BandDir("S2", "swir"), "2023-12-09-18-40-32_S2_site1_swir.tif")

	ops := &stubOps{}
	prop := New(ops, discardLogger())
	rec := coreg.ShiftRecord{Filename: filename, Satellite: "S2", Success: true, ShiftX: fp(1.25), ShiftY: fp(-0.5)}

	res, err := prop.Scene(context.Background(), sess, out, rec)
	if err != nil {
		t.Fatalf("scene propagation failed: %v", err)
	}
	shifted, missing, failed := res.Counts()
	if shifted != 2 || missing != 0 || failed != 0 {
		t.Fatalf("expected 2 shifted bands, got %d/%d/%d", shifted, missing, failed)
	}
	if len(ops.shifts) != 2 {
		t.Fatalf("expected 2 shift calls, got %d", len(ops.shifts))
	}
	for _, call := range ops.shifts {
		if call.dx != 1.25 || call.dy != -0.5 {
			t.Fatalf("unexpected shift %v", call)
		}
	}
	want := filepath.Join(out.BandDir("S2", "mask"), "2023-12-09-18-40-32_S2_site1_mask.tif")
	if !fsutil.Exists(want) {
		t.Fatalf("expected shifted mask at %s", want)
	}
	if len(ops.reprojects) != 0 {
		t.Fatal("expected no reprojection without a target CRS")
	}
}

func TestSceneReportsMissingCompanion(t *testing.T) {
	sess := fsutil.SessionLayout{Root: t.TempDir()}
	out := fsutil.NewCoregLayout(sess.Root)

	filename := "2022-04-01-21-56-37_L9_site1_ms.tif"
	touchCompanion(t, sess.BandDir("L9", "mask"), "2022-04-01-21-56-37_L9_site1_mask.tif")
	// no pan raster for this scene

	ops := &stubOps{}
	prop := New(ops, discardLogger())
	rec := coreg.ShiftRecord{Filename: filename, Satellite: "L9", Success: true, ShiftX: fp(0.5), ShiftY: fp(0.5)}

	res, err := prop.Scene(context.Background(), sess, out, rec)
	if err != nil {
		t.Fatalf("scene propagation failed: %v", err)
	}
	shifted, missing, failed := res.Counts()
	if shifted != 1 || missing != 1 || failed != 0 {
		t.Fatalf("expected 1 shifted and 1 missing, got %d/%d/%d", shifted, missing, failed)
	}
	if res.Failed() {
		t.Fatal("missing companion must not count as a failure")
	}
}

func TestSceneReprojectsBeforeShifting(t *testing.T) {
	sess := fsutil.SessionLayout{Root: t.TempDir()}
	out := fsutil.NewCoregLayout(sess.Root)

	filename := "2022-05-17-22-08-11_L8_site1_ms.tif"
	maskName := "2022-05-17-22-08-11_L8_site1_mask.tif"
	touchCompanion(t, sess.BandDir("L8", "mask"), maskName)

	ops := &stubOps{}
	prop := New(ops, discardLogger())
	rec := coreg.ShiftRecord{
		Filename: filename, Satellite: "L8", Success: true,
		ShiftX: fp(2), ShiftY: fp(3),
		CRS: sp("EPSG:32618"), CRSConverted: true,
	}

	res, err := prop.Scene(context.Background(), sess, out, rec)
	if err != nil {
		t.Fatalf("scene propagation failed: %v", err)
	}
	if len(ops.reprojects) != 1 {
		t.Fatalf("expected 1 reprojection, got %d", len(ops.reprojects))
	}
	intermediate := filepath.Join(out.NewCRSDir("L8", "mask"), maskName)
	if ops.reprojects[0].dst != intermediate {
		t.Fatalf("expected intermediate %s, got %s", intermediate, ops.reprojects[0].dst)
	}
	// the shift must read the reprojected raster, not the source
	if len(ops.shifts) != 1 || ops.shifts[0].src != intermediate {
		t.Fatalf("expected shift from %s, got %+v", intermediate, ops.shifts)
	}
	shifted, _, _ := res.Counts()
	// mask shifted, pan missing
	if shifted != 1 {
		t.Fatalf("expected 1 shifted band, got %d", shifted)
	}
}

func TestSceneToolFailureIsPerBand(t *testing.T) {
	sess := fsutil.SessionLayout{Root: t.TempDir()}
	out := fsutil.NewCoregLayout(sess.Root)

	filename := "2023-12-09-18-40-32_S2_site1_ms.tif"
	swirName := "2023-12-09-18-40-32_S2_site1_swir.tif"
	touchCompanion(t, sess.BandDir("S2", "mask"), "2023-12-09-18-40-32_S2_site1_mask.tif")
	touchCompanion(t, sess.BandDir("S2", "swir"), swirName)

	ops := &stubOps{failShift: map[string]error{swirName: errors.New("gdal_translate failed")}}
	prop := New(ops, discardLogger())
	rec := coreg.ShiftRecord{Filename: filename, Satellite: "S2", Success: true, ShiftX: fp(1), ShiftY: fp(1)}

	res, err := prop.Scene(context.Background(), sess, out, rec)
	if err != nil {
		t.Fatalf("scene propagation failed: %v", err)
	}
	shifted, _, failed := res.Counts()
	if shifted != 1 || failed != 1 {
		t.Fatalf("expected 1 shifted and 1 failed, got %d shifted %d failed", shifted, failed)
	}
	if !res.Failed() {
		t.Fatal("expected Failed to report the rejected band")
	}
	for _, b := range res.Bands {
		if b.Band == "swir" && b.Err == nil {
			t.Fatal("expected error on the swir band")
		}
	}
}

func TestSceneRequiresShift(t *testing.T) {
	sess := fsutil.SessionLayout{Root: t.TempDir()}
	out := fsutil.NewCoregLayout(sess.Root)
	prop := New(&stubOps{}, discardLogger())

	rec := coreg.ShiftRecord{Filename: "2023-12-09-18-40-32_S2_site1_ms.tif", Satellite: "S2", Success: true}
	if _, err := prop.Scene(context.Background(), sess, out, rec); err == nil {
		t.Fatal("expected error for record without shifts")
	}
}

func TestPlanetSceneShiftsUsableDataMask(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := filepath.Join(t.TempDir(), "out")

	filename := "20200603_203636_82_1068_3B_AnalyticMS_toar_clip.tif"
	udmName := "20200603_203636_82_1068_3B_udm2_clip.tif"
	touchCompanion(t, srcDir, udmName)

	ops := &stubOps{}
	prop := New(ops, discardLogger())
	rec := coreg.ShiftRecord{Filename: filename, Success: true, ShiftX: fp(-0.75), ShiftY: fp(0.25)}

	res, err := prop.PlanetScene(context.Background(), srcDir, dstDir, rec)
	if err != nil {
		t.Fatalf("planet propagation failed: %v", err)
	}
	shifted, _, _ := res.Counts()
	if shifted != 1 {
		t.Fatalf("expected the mask to be shifted, got %+v", res.Bands)
	}
	if !fsutil.Exists(filepath.Join(dstDir, udmName)) {
		t.Fatal("expected shifted mask in the output directory")
	}
}

func TestPlanetSceneMissingMask(t *testing.T) {
	ops := &stubOps{}
	prop := New(ops, discardLogger())
	rec := coreg.ShiftRecord{
		Filename: "20200603_203636_82_1068_3B_AnalyticMS_toar_clip.tif",
		Success:  true, ShiftX: fp(1), ShiftY: fp(1),
	}

	res, err := prop.PlanetScene(context.Background(), t.TempDir(), t.TempDir(), rec)
	if err != nil {
		t.Fatalf("planet propagation failed: %v", err)
	}
	_, missing, _ := res.Counts()
	if missing != 1 {
		t.Fatalf("expected a missing mask, got %+v", res.Bands)
	}

	rec.Filename = "random.tif"
	if _, err := prop.PlanetScene(context.Background(), t.TempDir(), t.TempDir(), rec); err == nil {
		t.Fatal("expected error for a filename without the analytic suffix")
	}
}
