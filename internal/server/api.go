package server

import (
	"time"

	"github.com/CK6170/gravtie-go/models"
	"github.com/CK6170/gravtie-go/tie"
)

type APIError struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
	Ties      int       `json:"ties"`
}

type CreateTieRequest struct {
	Ship       string `json:"ship"`
	AltShip    string `json:"altShip"`
	Personnel  string `json:"personnel"`
	Station    string `json:"station"`
	AltStation string `json:"altStation"`
	LandTie    bool   `json:"landTie"`
}

type TieResponse struct {
	ID      string     `json:"id"`
	Created time.Time  `json:"created"`
	Samples int        `json:"samples"`
	Tie     models.Tie `json:"tie"`
}

// HeightRequest records water height Index (1..3). Text accepts feet and
// inches ("7ft 8in") and is used when Meters is absent.
type HeightRequest struct {
	Index  int      `json:"index"`
	Meters *float64 `json:"meters"`
	Text   string   `json:"text"`
	Reset  bool     `json:"reset"`
}

type CountRequest struct {
	Occupation string  `json:"occupation"`
	Index      int     `json:"index"`
	Counts     float64 `json:"counts"`
	Reset      bool    `json:"reset"`
}

type StationRequest struct {
	Name    string   `json:"name"`
	AltName string   `json:"altName"`
	Gravity *float64 `json:"gravity"`
}

// LandTieRequest toggles the land tie and optionally sets the meter and
// ship position. Meter is looked up in the database; CalFile names a
// calibration table on the server instead.
type LandTieRequest struct {
	Enabled   bool     `json:"enabled"`
	Meter     string   `json:"meter"`
	AltMeter  string   `json:"altMeter"`
	CalFile   string   `json:"calFile"`
	Lon       *float64 `json:"lon"`
	Lat       *float64 `json:"lat"`
	Elevation *float64 `json:"elevation"`
	MeterTemp *float64 `json:"meterTemp"`
}

type DGSResponse struct {
	Format  string   `json:"format"`
	Files   []string `json:"files"`
	Samples int      `json:"samples"`
}

type LandTieResponse struct {
	AbsoluteGravity float64      `json:"absoluteGravity"`
	Drift           float64      `json:"drift"`
	DriftCorrectedB float64      `json:"driftCorrectedB"`
	AAInterval      float64      `json:"aaInterval"`
	ABInterval      float64      `json:"abInterval"`
	AveragedMgal    [3]float64   `json:"averagedMgal"`
	AveragedTime    [3]time.Time `json:"averagedTime"`
	Uncovered       []string     `json:"uncovered,omitempty"`
}

func landTieResponse(r tie.LandTieResult) LandTieResponse {
	return LandTieResponse{
		AbsoluteGravity: r.AbsoluteGravity,
		Drift:           r.Drift,
		DriftCorrectedB: r.DriftCorrectedB,
		AAInterval:      r.AAInterval,
		ABInterval:      r.ABInterval,
		AveragedMgal:    r.AveragedMgal(),
		AveragedTime:    r.AveragedTime(),
	}
}

type BiasResponse struct {
	Bias                 float64   `json:"bias"`
	WaterLineGravity     float64   `json:"waterLineGravity"`
	AveragedMeterGravity float64   `json:"averagedMeterGravity"`
	AverageHeight        float64   `json:"averageHeight"`
	FilterMode           string    `json:"filterMode"`
	Taps                 int       `json:"taps"`
	Samples              int       `json:"samples"`
	WindowStart          time.Time `json:"windowStart"`
	WindowEnd            time.Time `json:"windowEnd"`
}

func biasResponse(r tie.Result, mode tie.FilterMode) BiasResponse {
	return BiasResponse{
		Bias:                 r.Bias,
		WaterLineGravity:     r.WaterLineGravity,
		AveragedMeterGravity: r.AveragedMeterGravity,
		AverageHeight:        r.AverageHeight,
		FilterMode:           mode.String(),
		Taps:                 r.Smoothing.Taps,
		Samples:              r.Smoothing.Samples,
		WindowStart:          r.Smoothing.Window.Start,
		WindowEnd:            r.Smoothing.Window.End,
	}
}
