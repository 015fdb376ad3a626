package tie

import (
	"fmt"
	"math"
)

// FAAFactor is the free-air gradient in mGal per meter.
const FAAFactor = 0.3086

// WaterHeights are the pier-to-water distances in meters, up to MaxReadings.
type WaterHeights [MaxReadings]Sample

// NewWaterHeights returns a height set with every reading unset.
func NewWaterHeights() WaterHeights {
	var h WaterHeights
	for i := range h {
		h[i] = UnsetSample()
	}
	return h
}

// recorded returns the heights with a timestamp and a non-zero distance.
func (h WaterHeights) recorded() []Sample {
	out := make([]Sample, 0, len(h))
	for _, s := range h {
		if s.Valid() && s.Value != 0 {
			out = append(out, s)
		}
	}
	return out
}

// Window returns the span of the recorded heights.
func (h WaterHeights) Window() (TimeWindow, bool) { return WindowOf(h.recorded()...) }

// Average returns the mean of the recorded heights, each taken as a depth
// below the pier (non-positive). A zero distance counts as not recorded. n
// is the number of readings used.
func (h WaterHeights) Average() (avg float64, n int) {
	var sum float64
	for _, s := range h.recorded() {
		sum += -math.Abs(s.Value)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

type PierSource int

const (
	PierFromStation PierSource = iota
	PierFromLandTie
)

func (p PierSource) String() string {
	if p == PierFromLandTie {
		return "land tie"
	}
	return "station"
}

// SelectPierGravity picks the gravity used at the pier: the land tie value
// when a land tie is in use and has produced a value, else the station value.
func SelectPierGravity(stationGravity, landTieGravity float64, landTie bool) (float64, PierSource) {
	if landTie && landTieGravity > 0 {
		return landTieGravity, PierFromLandTie
	}
	return stationGravity, PierFromStation
}

// Result is the outcome of one bias computation.
type Result struct {
	Bias                 float64
	WaterLineGravity     float64
	AveragedMeterGravity float64
	AverageHeight        float64
	Smoothing            Smoothing
}

type biasConfig struct {
	mode FilterMode
	faa  float64
}

type BiasOption func(*biasConfig)

func WithFilterMode(m FilterMode) BiasOption {
	return func(c *biasConfig) { c.mode = m }
}

func WithFAAFactor(f float64) BiasOption {
	return func(c *biasConfig) { c.faa = f }
}

// ComputeBias derives the meter bias from the pier gravity, the water heights
// and the meter's gravity series. Missing entries give ErrNotReady; a series
// that does not span the height readings gives ErrInsufficientCoverage.
func ComputeBias(pierGravity float64, heights WaterHeights, series Series, opts ...BiasOption) (Result, error) {
	cfg := biasConfig{mode: ZeroPhase, faa: FAAFactor}
	for _, o := range opts {
		o(&cfg)
	}
	avgHeight, n := heights.Average()
	if n == 0 {
		return Result{}, fmt.Errorf("%w: no water heights recorded", ErrNotReady)
	}
	if !(pierGravity > 0) {
		return Result{}, fmt.Errorf("%w: no pier gravity", ErrNotReady)
	}
	if len(series) == 0 {
		return Result{}, fmt.Errorf("%w: no meter gravity loaded", ErrNotReady)
	}
	w, _ := heights.Window()
	sm, err := SmoothAndAverage(series, w, cfg.mode)
	if err != nil {
		return Result{}, err
	}
	waterLine := pierGravity + cfg.faa*avgHeight
	return Result{
		Bias:                 waterLine - sm.Mean,
		WaterLineGravity:     waterLine,
		AveragedMeterGravity: sm.Mean,
		AverageHeight:        avgHeight,
		Smoothing:            sm,
	}, nil
}
