package tie

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FilterMode selects how the smoothing kernel is run over a series.
type FilterMode int

const (
	// ZeroPhase runs the kernel forward, then over the time-reversed result,
	// and reverses back. Output sample i stays aligned with input sample i.
	ZeroPhase FilterMode = iota
	// LegacyDoublePass runs the kernel forward twice and reverses only the
	// final output. Kept to reproduce reports made by the older tooling.
	LegacyDoublePass
)

func (m FilterMode) String() string {
	switch m {
	case ZeroPhase:
		return "zerophase"
	case LegacyDoublePass:
		return "legacy"
	}
	return fmt.Sprintf("FilterMode(%d)", int(m))
}

// ParseFilterMode accepts the names produced by FilterMode.String.
func ParseFilterMode(s string) (FilterMode, error) {
	switch s {
	case "", "zerophase", "zero-phase":
		return ZeroPhase, nil
	case "legacy":
		return LegacyDoublePass, nil
	}
	return ZeroPhase, fmt.Errorf("unknown filter mode %q", s)
}

// Filter is a low-pass FIR kernel with unit DC gain.
type Filter struct {
	kernel []float64
}

// DesignBlackmanLowPass builds a Blackman-windowed sinc kernel of ntaps
// coefficients with its cutoff at 1/ntaps cycles per sample. Kernels shorter
// than three taps have no usable Blackman support and fall back to a moving
// average.
func DesignBlackmanLowPass(ntaps int) Filter {
	if ntaps < 1 {
		panic(fmt.Sprintf("tie: filter needs at least one tap, got %d", ntaps))
	}
	h := make([]float64, ntaps)
	if ntaps < 3 {
		for i := range h {
			h[i] = 1 / float64(ntaps)
		}
		return Filter{kernel: h}
	}
	// cutoff relative to Nyquist
	wn := math.Min(2/float64(ntaps), 1)
	center := float64(ntaps-1) / 2
	for i := range h {
		h[i] = wn * sinc(wn*(float64(i)-center))
	}
	window.Blackman(h)
	floats.Scale(1/floats.Sum(h), h)
	return Filter{kernel: h}
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// Kernel returns a copy of the filter coefficients.
func (f Filter) Kernel() []float64 {
	out := make([]float64, len(f.kernel))
	copy(out, f.kernel)
	return out
}

func (f Filter) Taps() int { return len(f.kernel) }

// pass zero-pads x by Taps() samples on both ends, convolves causally and
// trims the padding back off.
func (f Filter) pass(x []float64) []float64 {
	n := f.Taps()
	padded := make([]float64, len(x)+2*n)
	copy(padded[n:], x)
	out := make([]float64, len(x))
	for i := range out {
		j := i + n
		var acc float64
		for k, h := range f.kernel {
			acc += h * padded[j-k]
		}
		out[i] = acc
	}
	return out
}

// Apply filters x twice according to mode and returns a new slice of the same
// length.
func (f Filter) Apply(x []float64, mode FilterMode) []float64 {
	first := f.pass(x)
	switch mode {
	case LegacyDoublePass:
		second := f.pass(first)
		floats.Reverse(second)
		return second
	default:
		floats.Reverse(first)
		second := f.pass(first)
		floats.Reverse(second)
		return second
	}
}

// TapsForWindow derives the kernel length from the number of raw samples
// inside the averaging window.
func TapsForWindow(count int) int {
	n := int(math.Round(float64(count) / 10))
	if n < 1 {
		return 1
	}
	return n
}

// Smoothing describes one SmoothAndAverage run.
type Smoothing struct {
	Mean    float64
	Taps    int
	Samples int // raw samples inside the window
	Window  TimeWindow
}

// SmoothAndAverage filters the whole series and averages the filtered values
// whose source samples fall inside w. The series must span w on both ends.
func SmoothAndAverage(series Series, w TimeWindow, mode FilterMode) (Smoothing, error) {
	if len(series) == 0 {
		return Smoothing{}, fmt.Errorf("%w: gravity series is empty", ErrInsufficientCoverage)
	}
	sorted := SortSeries(series)
	if !w.coveredBy(sorted) {
		return Smoothing{}, fmt.Errorf("%w: series spans %s to %s, window %s to %s", ErrInsufficientCoverage,
			sorted[0].Time.Format(timeLayout), sorted[len(sorted)-1].Time.Format(timeLayout),
			w.Start.Format(timeLayout), w.End.Format(timeLayout))
	}
	lower, upper := w.indices(sorted)
	if upper <= lower {
		return Smoothing{}, fmt.Errorf("%w: no samples between %s and %s", ErrInsufficientCoverage,
			w.Start.Format(timeLayout), w.End.Format(timeLayout))
	}
	ntaps := TapsForWindow(upper - lower)
	smoothed := DesignBlackmanLowPass(ntaps).Apply(sorted.Values(), mode)
	return Smoothing{
		Mean:    stat.Mean(smoothed[lower:upper], nil),
		Taps:    ntaps,
		Samples: upper - lower,
		Window:  w,
	}, nil
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
