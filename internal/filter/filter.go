// Package filter rejects unreliable shift measurements before they are
// applied to imagery. Stages run in a fixed order and the first stage that
// rejects a record names its failure reason, so every verdict is explainable
// after the fact.
package filter

import (
	"georeg/internal/coreg"
)

// Reason identifies the filter stage that rejected a record.
type Reason string

const (
	ReasonNone        Reason = "none"
	ReasonSuccess     Reason = "success"
	ReasonReliability Reason = "reliability"
	ReasonWindowSize  Reason = "window_size"
	ReasonMaxShift    Reason = "max_shift"
	ReasonZScore      Reason = "z_score"
)

// Outcome is the verdict for a single record.
type Outcome struct {
	Filename  string
	Satellite string
	Passed    bool
	Reason    Reason
	// ZScore is set for every record the z-score stage evaluated, including
	// records already rejected by an earlier stage.
	ZScore *float64
	Record coreg.ShiftRecord
}

// Verdict is the result of filtering one batch. Outcomes preserve the input
// batch order. Warnings surface degenerate statistics conditions that made
// the z-score stage skip part of its work.
type Verdict struct {
	Outcomes []Outcome
	Warnings []string
}

// stage pairs a rejection predicate with the reason it assigns. Keeping the
// stages as an ordered slice keeps the set of rejection reasons closed.
type stage struct {
	reason Reason
	reject func(coreg.ShiftRecord) bool
}

// buildStages assembles the per-record stages for the given settings. A zero
// threshold disables its stage, matching how preset files switch stages off.
// The success gate is always on and always first.
func buildStages(s coreg.FilterSettings) []stage {
	stages := []stage{{
		reason: ReasonSuccess,
		reject: func(r coreg.ShiftRecord) bool { return !r.Success },
	}}
	if s.ShiftReliabilityMin > 0 {
		threshold := s.ShiftReliabilityMin
		stages = append(stages, stage{
			reason: ReasonReliability,
			reject: func(r coreg.ShiftRecord) bool {
				return r.ShiftReliability == nil || *r.ShiftReliability < threshold
			},
		})
	}
	if s.WindowSizeMin > 0 {
		threshold := s.WindowSizeMin
		stages = append(stages, stage{
			reason: ReasonWindowSize,
			reject: func(r coreg.ShiftRecord) bool {
				return r.WindowSize[0] < threshold || r.WindowSize[1] < threshold
			},
		})
	}
	if s.MaxShiftMeters > 0 {
		threshold := s.MaxShiftMeters
		stages = append(stages, stage{
			reason: ReasonMaxShift,
			reject: func(r coreg.ShiftRecord) bool {
				// A record whose shift magnitude cannot be verified is
				// rejected rather than waved through.
				if r.ShiftXMeters == nil || r.ShiftYMeters == nil {
					return true
				}
				return maxAbs(*r.ShiftXMeters, *r.ShiftYMeters) > threshold
			},
		})
	}
	return stages
}

// Apply runs the filter pipeline over a batch. It is a pure function of
// (records, settings): re-running it on the same inputs yields identical
// verdicts.
func Apply(records []coreg.ShiftRecord, settings coreg.FilterSettings) *Verdict {
	stages := buildStages(settings)
	outcomes := make([]Outcome, len(records))
	for i, rec := range records {
		out := Outcome{
			Filename:  rec.Filename,
			Satellite: rec.Satellite,
			Passed:    true,
			Reason:    ReasonNone,
			Record:    rec,
		}
		for _, st := range stages {
			if st.reject(rec) {
				out.Passed = false
				out.Reason = st.reason
				break
			}
		}
		outcomes[i] = out
	}

	var warnings []string
	if settings.FilterZScore {
		warnings = applyZScoreStage(records, outcomes, settings)
	}
	return &Verdict{Outcomes: outcomes, Warnings: warnings}
}

// PassedFiles returns the filenames that passed every stage, in batch order.
func (v *Verdict) PassedFiles() []string {
	var out []string
	for _, o := range v.Outcomes {
		if o.Passed {
			out = append(out, o.Filename)
		}
	}
	return out
}

// FailedFiles returns the filenames rejected by any stage, in batch order.
func (v *Verdict) FailedFiles() []string {
	var out []string
	for _, o := range v.Outcomes {
		if !o.Passed {
			out = append(out, o.Filename)
		}
	}
	return out
}

// Outcome looks up the verdict for a filename.
func (v *Verdict) Outcome(filename string) (Outcome, bool) {
	for _, o := range v.Outcomes {
		if o.Filename == filename {
			return o, true
		}
	}
	return Outcome{}, false
}

// Counts returns how many records passed and failed.
func (v *Verdict) Counts() (passed, failed int) {
	for _, o := range v.Outcomes {
		if o.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

func maxAbs(a, b float64) float64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a > b {
		return a
	}
	return b
}
