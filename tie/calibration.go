package tie

import (
	"fmt"
	"math"
)

// DefaultBracketGap is the largest distance, in counts, between a reading and
// the bracket below it for the reading to count as inside the table.
const DefaultBracketGap = 100.0

// CalibrationTable converts land meter counts to milligals. Row i applies
// from Brackets[i] upward with offset BaseValues[i] and Slopes[i] mGal/count.
type CalibrationTable struct {
	Brackets   []float64
	BaseValues []float64
	Slopes     []float64
}

// NewCalibrationTable builds a table from its three columns, which must have
// the same length.
func NewCalibrationTable(brackets, baseValues, slopes []float64) (CalibrationTable, error) {
	if len(brackets) != len(baseValues) || len(brackets) != len(slopes) {
		return CalibrationTable{}, fmt.Errorf("calibration table columns differ in length: %d brackets, %d values, %d slopes",
			len(brackets), len(baseValues), len(slopes))
	}
	return CalibrationTable{Brackets: brackets, BaseValues: baseValues, Slopes: slopes}, nil
}

func (t CalibrationTable) Len() int { return len(t.Brackets) }

// Bracket returns the row used for counts c: the nearest bracket not
// exceeding c. The table is scanned in full so unsorted rows are handled.
// Readings below every bracket clamp to the smallest bracket and extrapolate
// downward from it.
func (t CalibrationTable) Bracket(c float64) int {
	if t.Len() == 0 {
		panic("tie: calibration table is empty")
	}
	best, lowest := -1, 0
	for i, b := range t.Brackets {
		if b < t.Brackets[lowest] {
			lowest = i
		}
		if b > c {
			continue
		}
		if best < 0 || c-b < c-t.Brackets[best] {
			best = i
		}
	}
	if best < 0 {
		return lowest
	}
	return best
}

// Covers reports whether c falls inside the table: some bracket lies at or
// below c, no further than maxGap counts away.
func (t CalibrationTable) Covers(c, maxGap float64) bool {
	if t.Len() == 0 {
		return false
	}
	i := t.Bracket(c)
	b := t.Brackets[i]
	return b <= c && math.Abs(c-b) <= maxGap
}

// ConvertCountsToMilligals calibrates a raw land meter reading. The table must
// not be empty.
func ConvertCountsToMilligals(c float64, t CalibrationTable) float64 {
	i := t.Bracket(c)
	residual := c - t.Brackets[i]
	return residual*t.Slopes[i] + t.BaseValues[i]
}
