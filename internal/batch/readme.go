package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"georeg/internal/coreg"
	"georeg/internal/filter"
)

// writeReadme drops a plain text summary beside the results so a person
// browsing the output tree sees how the run went without any tooling.
func writeReadme(path string, records []coreg.ShiftRecord, verdict *filter.Verdict, settings coreg.RunSettings) error {
	successes := 0
	improvement := 0.0
	improved := 0
	for _, rec := range records {
		if !rec.Success {
			continue
		}
		successes++
		if rec.ChangeSSIM != nil {
			improvement += *rec.ChangeSSIM
			improved++
		}
	}
	if improved > 0 {
		improvement /= float64(improved)
	}
	passed, failed := verdict.Counts()

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Number of successful coregistrations: %d\n", successes)
	fmt.Fprintf(&b, "Total number of coregistrations: %d\n", len(records))
	fmt.Fprintf(&b, "Number of coregistrations that passed filtering: %d\n", passed)
	fmt.Fprintf(&b, "Number of coregistrations that failed filtering: %d\n", failed)
	fmt.Fprintf(&b, "Average improvement in SSIM score: %g\n", improvement)
	fmt.Fprintf(&b, "Settings: %s\n", settingsJSON)
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
