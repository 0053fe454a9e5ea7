package filter

import (
	"fmt"
	"math"

	"georeg/internal/coreg"
)

// applyZScoreStage runs the population-relative outlier stage. It is an
// explicit two-pass computation: first gather the population and its
// statistics, then classify every member against them. The verdicts of
// records rejected by earlier stages never change here; their shift values
// may still feed the population when the stage is not scoped to passed
// records.
//
// Degenerate statistics never reject anything. A population below two
// members skips the stage entirely, and a zero-variance axis contributes
// nothing to the combined score. Both conditions are reported as warnings.
func applyZScoreStage(records []coreg.ShiftRecord, outcomes []Outcome, settings coreg.FilterSettings) []string {
	passedOnly := settings.FilterZScorePassedOnly

	var selected []int
	for i, rec := range records {
		if rec.ShiftX == nil || rec.ShiftY == nil {
			continue
		}
		if passedOnly && !outcomes[i].Passed {
			continue
		}
		selected = append(selected, i)
	}
	if len(selected) < 2 {
		return []string{fmt.Sprintf("z-score stage skipped: population of %d is too small", len(selected))}
	}

	xs := make([]float64, len(selected))
	ys := make([]float64, len(selected))
	for n, i := range selected {
		xs[n] = *records[i].ShiftX
		ys[n] = *records[i].ShiftY
	}
	muX, sigmaX := meanStd(xs)
	muY, sigmaY := meanStd(ys)

	var warnings []string
	if sigmaX == 0 {
		warnings = append(warnings, "zero variance in x shifts, axis excluded from z-scores")
	}
	if sigmaY == 0 {
		warnings = append(warnings, "zero variance in y shifts, axis excluded from z-scores")
	}

	for _, i := range selected {
		var zx, zy float64
		if sigmaX != 0 {
			zx = (*records[i].ShiftX - muX) / sigmaX
		}
		if sigmaY != 0 {
			zy = (*records[i].ShiftY - muY) / sigmaY
		}
		z := math.Sqrt(zx*zx + zy*zy)
		outcomes[i].ZScore = &z
		if outcomes[i].Passed && z > settings.ZScoreThreshold {
			outcomes[i].Passed = false
			outcomes[i].Reason = ReasonZScore
		}
	}
	return warnings
}

// meanStd returns the mean and population standard deviation of vals.
func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(vals)))
	return mean, std
}
