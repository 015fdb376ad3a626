package tie

import (
	"fmt"
	"time"
)

// OccupationLabel names the three land tie occupations in visiting order.
type OccupationLabel int

const (
	A1 OccupationLabel = iota // reference point, first visit
	B                         // new site
	A2                        // reference point, second visit
)

var occupationNames = [...]string{"A1", "B", "A2"}

func (l OccupationLabel) String() string {
	if l < A1 || l > A2 {
		return fmt.Sprintf("OccupationLabel(%d)", int(l))
	}
	return occupationNames[l]
}

// ParseOccupationLabel accepts A1, B and A2 (B1 is taken as B).
func ParseOccupationLabel(s string) (OccupationLabel, error) {
	switch s {
	case "A1", "a1", "a":
		return A1, nil
	case "B", "B1", "b", "b1":
		return B, nil
	case "A2", "a2", "c":
		return A2, nil
	}
	return A1, fmt.Errorf("unknown occupation %q", s)
}

// Occupations holds the raw count readings of a land tie, up to MaxReadings
// per occupation.
type Occupations [3][MaxReadings]Sample

// NewOccupations returns occupations with every reading unset.
func NewOccupations() Occupations {
	var o Occupations
	for g := range o {
		for i := range o[g] {
			o[g][i] = UnsetSample()
		}
	}
	return o
}

// MeanSeconds returns the mean Unix time of the readings of g that a land
// tie would use, and how many there are.
func (o Occupations) MeanSeconds(g OccupationLabel) (float64, int) {
	var sum float64
	n := 0
	for _, s := range o[g] {
		if !usableCount(s) {
			continue
		}
		sum += s.Seconds()
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func usableCount(s Sample) bool { return s.Valid() && s.Value > 0 }

// GroupAverage is the mean calibrated value and mean time of one occupation.
type GroupAverage struct {
	Milligals float64
	Seconds   float64 // Unix seconds
	Readings  int
}

func (g GroupAverage) Time() time.Time { return fromUnixSeconds(g.Seconds) }

// LandTieResult is the output of one land tie: the transferred gravity, the
// drift model terms and the per-reading values behind them.
type LandTieResult struct {
	AbsoluteGravity float64
	Drift           float64 // mGal/s
	DriftCorrectedB float64
	AAInterval      float64 // seconds
	ABInterval      float64 // seconds
	Averages        [3]GroupAverage
	// Milligals holds the calibrated value of every reading, Unset where the
	// reading was not used.
	Milligals [3][MaxReadings]float64
}

// AveragedMgal returns the per-occupation averages in A1, B, A2 order.
func (r LandTieResult) AveragedMgal() [3]float64 {
	return [3]float64{r.Averages[A1].Milligals, r.Averages[B].Milligals, r.Averages[A2].Milligals}
}

// AveragedTime returns the per-occupation mean times in A1, B, A2 order.
func (r LandTieResult) AveragedTime() [3]time.Time {
	return [3]time.Time{r.Averages[A1].Time(), r.Averages[B].Time(), r.Averages[A2].Time()}
}

// Drift applies the linear drift model between the two reference occupations
// and transfers the reference gravity to the new site. a1 and a2 must have
// different times.
func Drift(a1, b, a2 GroupAverage, referenceGravity float64) LandTieResult {
	aa := a2.Seconds - a1.Seconds
	if aa == 0 {
		panic("tie: A1 and A2 occupations share the same mean time")
	}
	ab := b.Seconds - a1.Seconds
	drift := (a2.Milligals - a1.Milligals) / aa
	correctedB := b.Milligals - ab*drift
	return LandTieResult{
		AbsoluteGravity: referenceGravity + (a1.Milligals - correctedB),
		Drift:           drift,
		DriftCorrectedB: correctedB,
		AAInterval:      aa,
		ABInterval:      ab,
		Averages:        [3]GroupAverage{a1, b, a2},
	}
}

// ComputeLandTie calibrates and averages each occupation and runs the drift
// model. It returns ErrNotReady when the reference gravity is unknown or an
// occupation has no usable reading. The calibration table must not be empty.
func ComputeLandTie(occ Occupations, table CalibrationTable, referenceGravity float64) (LandTieResult, error) {
	if table.Len() == 0 {
		panic("tie: land tie needs a loaded calibration table")
	}
	if !(referenceGravity > 0) {
		return LandTieResult{}, fmt.Errorf("%w: no reference station gravity", ErrNotReady)
	}
	var (
		avgs [3]GroupAverage
		mgal [3][MaxReadings]float64
	)
	for g := A1; g <= A2; g++ {
		var sumMgal, sumSec float64
		n := 0
		for i, s := range occ[g] {
			mgal[g][i] = Unset
			if !usableCount(s) {
				continue
			}
			m := ConvertCountsToMilligals(s.Value, table)
			mgal[g][i] = m
			sumMgal += m
			sumSec += s.Seconds()
			n++
		}
		if n == 0 {
			return LandTieResult{}, fmt.Errorf("%w: no %s counts recorded", ErrNotReady, g)
		}
		avgs[g] = GroupAverage{Milligals: sumMgal / float64(n), Seconds: sumSec / float64(n), Readings: n}
	}
	res := Drift(avgs[A1], avgs[B], avgs[A2], referenceGravity)
	res.Milligals = mgal
	return res, nil
}
