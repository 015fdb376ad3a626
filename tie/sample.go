package tie

import (
	"math"
	"sort"
	"time"
)

// Unset marks a reading that has not been recorded yet. It is also the value
// written to tie files for empty fields, so it must never be a plausible
// physical reading.
const Unset = -999.0

// MaxReadings is the number of repeated entries kept per height set or
// occupation group.
const MaxReadings = 3

// Sample is one timestamped value: a gravity reading, a height or a count.
type Sample struct {
	Time  time.Time
	Value float64
}

// UnsetSample returns a Sample carrying the Unset sentinel.
func UnsetSample() Sample { return Sample{Value: Unset} }

// Valid reports whether both the value and the timestamp were recorded.
func (s Sample) Valid() bool {
	if s.Value == Unset || math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return false
	}
	return !s.Time.IsZero()
}

// Seconds returns the sample time as fractional Unix seconds.
func (s Sample) Seconds() float64 { return unixSeconds(s.Time) }

// Series is a gravity time series. Ingested series may arrive in any order;
// the engine sorts a copy before use.
type Series []Sample

// SortSeries returns a copy of s sorted ascending by time. Samples sharing a
// timestamp keep their relative order.
func SortSeries(s Series) Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Values extracts the readings of s in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v.Value
	}
	return out
}

// TimeWindow is a closed interval [Start, End].
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// WindowOf returns the span of the valid samples. ok is false when none of the
// samples is valid.
func WindowOf(samples ...Sample) (w TimeWindow, ok bool) {
	for _, s := range samples {
		if !s.Valid() {
			continue
		}
		if !ok {
			w = TimeWindow{Start: s.Time, End: s.Time}
			ok = true
			continue
		}
		if s.Time.Before(w.Start) {
			w.Start = s.Time
		}
		if s.Time.After(w.End) {
			w.End = s.Time
		}
	}
	return w, ok
}

// coveredBy reports whether the sorted series fully brackets w.
func (w TimeWindow) coveredBy(sorted Series) bool {
	if len(sorted) == 0 {
		return false
	}
	first, last := sorted[0].Time, sorted[len(sorted)-1].Time
	return !first.After(w.Start) && !last.Before(w.End)
}

// indices returns [lower, upper) of the sorted samples falling inside w.
func (w TimeWindow) indices(sorted Series) (lower, upper int) {
	lower = sort.Search(len(sorted), func(i int) bool { return !sorted[i].Time.Before(w.Start) })
	upper = sort.Search(len(sorted), func(i int) bool { return sorted[i].Time.After(w.End) })
	return lower, upper
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func fromUnixSeconds(sec float64) time.Time {
	whole := math.Floor(sec)
	return time.Unix(int64(whole), int64(math.Round((sec-whole)*1e9))).UTC()
}
