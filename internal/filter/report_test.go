package filter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"georeg/internal/coreg"
)

func TestWriteCSVReport(t *testing.T) {
	batch := []coreg.ShiftRecord{
		goodRecord("pass_ms.tif", "L8"),
		coreg.FailedRecord("fail_ms.tif", "L9", nil, false),
	}
	v := Apply(batch, strictSettings())

	path := filepath.Join(t.TempDir(), "filtered_files.csv")
	if err := v.WriteCSV(path); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	header := rows[0]
	if header[0] != "filename" || header[len(header)-1] != "failure_reason" {
		t.Fatalf("unexpected header %v", header)
	}

	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("missing column %q", name)
		return -1
	}

	if rows[1][col("filename")] != "pass_ms.tif" || rows[2][col("filename")] != "fail_ms.tif" {
		t.Fatalf("rows out of batch order: %v", rows)
	}
	if rows[1][col("filter_passed")] != "true" {
		t.Fatalf("expected pass row, got %v", rows[1])
	}
	if rows[2][col("filter_passed")] != "false" || rows[2][col("failure_reason")] != "success" {
		t.Fatalf("expected success-stage failure, got %v", rows[2])
	}
	if rows[2][col("shift_x")] != "" {
		t.Fatalf("absent numerics must be empty cells, got %q", rows[2][col("shift_x")])
	}
	if rows[1][col("z_score")] != "" {
		t.Fatalf("disabled z-score stage must leave the column empty")
	}
}
