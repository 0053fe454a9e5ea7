package filter

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// csvHeader lists the verdict report columns, one row per record in batch
// order. Absent numeric fields become empty cells.
var csvHeader = []string{
	"filename", "satellite", "success",
	"original_ssim", "coregistered_ssim", "change_ssim",
	"shift_x", "shift_y", "shift_x_meters", "shift_y_meters",
	"shift_reliability", "window_size_x", "window_size_y",
	"z_score", "filter_passed", "failure_reason",
}

// WriteCSV saves the verdict report next to the result document so a batch
// can be audited without re-running the filter.
func (v *Verdict) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create verdict report: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, o := range v.Outcomes {
		rec := o.Record
		row := []string{
			o.Filename,
			o.Satellite,
			strconv.FormatBool(rec.Success),
			formatFloat(rec.OriginalSSIM),
			formatFloat(rec.CoregisteredSSIM),
			formatFloat(rec.ChangeSSIM),
			formatFloat(rec.ShiftX),
			formatFloat(rec.ShiftY),
			formatFloat(rec.ShiftXMeters),
			formatFloat(rec.ShiftYMeters),
			formatFloat(rec.ShiftReliability),
			strconv.Itoa(rec.WindowSize[0]),
			strconv.Itoa(rec.WindowSize[1]),
			formatFloat(o.ZScore),
			strconv.FormatBool(o.Passed),
			string(o.Reason),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush verdict report: %w", err)
	}
	return f.Close()
}

func formatFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}
