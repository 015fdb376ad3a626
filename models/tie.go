package models

import (
	"time"

	"github.com/CK6170/gravtie-go/tie"
)

// Other is the database entry used when a ship, station or meter is not
// listed and the operator typed a name instead.
const Other = "Other"

// legacyUnsetTime is how older tie files spell an unset timestamp
// (the -999 sentinel formatted as seconds since the epoch).
var legacyUnsetTime = time.Unix(-999, 0).UTC()

// Tie is everything recorded for one gravity tie. The TOML layout follows
// the tie files written by the earlier tooling so those can be reopened.
type Tie struct {
	Ship      Ship      `toml:"SHIP" json:"ship"`
	Station   Station   `toml:"STATION" json:"station"`
	LandMeter LandMeter `toml:"LANDMETER" json:"landMeter"`
	Tie       TieInfo   `toml:"TIE" json:"tie"`
}

type Ship struct {
	Name    string `toml:"ship_name" json:"name"`
	AltName string `toml:"alt_ship_name" json:"altName"`
}

// DisplayName returns the typed name when the ship was entered as Other.
func (s Ship) DisplayName() string { return displayName(s.Name, s.AltName) }

type Station struct {
	Name    string  `toml:"station_name" json:"name"`
	AltName string  `toml:"alt_station_name" json:"altName"`
	Number  string  `toml:"station_number,omitempty" json:"number,omitempty"`
	Gravity float64 `toml:"station_gravity" json:"gravity"`
}

func (s Station) DisplayName() string { return displayName(s.Name, s.AltName) }

// Reading is one timestamped land meter count and its calibrated value.
type Reading struct {
	Counts    float64   `toml:"c" json:"counts"`
	Time      time.Time `toml:"t" json:"time"`
	Milligals float64   `toml:"m" json:"milligals"`
}

func unsetReading() Reading { return Reading{Counts: tie.Unset, Milligals: tie.Unset} }

// Average is the per-occupation mean written after a land tie.
type Average struct {
	Time      time.Time `toml:"t_avg" json:"time"`
	Milligals float64   `toml:"m_avg" json:"milligals"`
}

type LandMeter struct {
	Enabled      bool    `toml:"landtie" json:"enabled"`
	Meter        string  `toml:"meter" json:"meter"`
	AltMeter     string  `toml:"alt_meter" json:"altMeter"`
	CalFilePath  string  `toml:"cal_file_path" json:"calFilePath"`
	ShipLon      float64 `toml:"ship_lon" json:"shipLon"`
	ShipLat      float64 `toml:"ship_lat" json:"shipLat"`
	ShipElev     float64 `toml:"ship_elev" json:"shipElev"`
	MeterTemp    float64 `toml:"meter_temp" json:"meterTemp"`
	LandTieValue float64 `toml:"land_tie_value" json:"landTieValue"`
	Drift        float64 `toml:"drift" json:"drift"`

	// A1 occupation
	A1 Reading `toml:"a1" json:"a1"`
	A2 Reading `toml:"a2" json:"a2"`
	A3 Reading `toml:"a3" json:"a3"`
	AA Average `toml:"aa" json:"aa"`
	// B occupation
	B1 Reading `toml:"b1" json:"b1"`
	B2 Reading `toml:"b2" json:"b2"`
	B3 Reading `toml:"b3" json:"b3"`
	BB Average `toml:"bb" json:"bb"`
	// A2 occupation
	C1 Reading `toml:"c1" json:"c1"`
	C2 Reading `toml:"c2" json:"c2"`
	C3 Reading `toml:"c3" json:"c3"`
	CC Average `toml:"cc" json:"cc"`
}

func (l LandMeter) DisplayName() string { return displayName(l.Meter, l.AltMeter) }

// Group returns pointers to the readings of one occupation.
func (l *LandMeter) Group(g tie.OccupationLabel) [tie.MaxReadings]*Reading {
	switch g {
	case tie.B:
		return [tie.MaxReadings]*Reading{&l.B1, &l.B2, &l.B3}
	case tie.A2:
		return [tie.MaxReadings]*Reading{&l.C1, &l.C2, &l.C3}
	}
	return [tie.MaxReadings]*Reading{&l.A1, &l.A2, &l.A3}
}

// Average returns a pointer to the stored mean of one occupation.
func (l *LandMeter) Average(g tie.OccupationLabel) *Average {
	switch g {
	case tie.B:
		return &l.BB
	case tie.A2:
		return &l.CC
	}
	return &l.AA
}

// Occupations extracts the raw counts for the land tie calculator.
func (l *LandMeter) Occupations() tie.Occupations {
	occ := tie.NewOccupations()
	for g := tie.A1; g <= tie.A2; g++ {
		for i, r := range l.Group(g) {
			occ[g][i] = tie.Sample{Time: r.Time, Value: r.Counts}
		}
	}
	return occ
}

// ApplyLandTie stores a land tie result.
func (l *LandMeter) ApplyLandTie(res tie.LandTieResult) {
	l.LandTieValue = res.AbsoluteGravity
	l.Drift = res.Drift
	for g := tie.A1; g <= tie.A2; g++ {
		for i, r := range l.Group(g) {
			r.Milligals = res.Milligals[g][i]
		}
		avg := res.Averages[g]
		*l.Average(g) = Average{Time: avg.Time(), Milligals: avg.Milligals}
	}
}

type Height struct {
	Meters float64   `toml:"h" json:"meters"`
	Time   time.Time `toml:"t" json:"time"`
}

type TieInfo struct {
	Personnel  string   `toml:"personnel" json:"personnel"`
	Bias       float64  `toml:"bias" json:"bias"`
	WaterGrav  float64  `toml:"water_grav" json:"waterGrav"`
	AvgDGSGrav float64  `toml:"avg_dgs_grav" json:"avgDgsGrav"`
	AvgHeight  float64  `toml:"avg_height" json:"avgHeight"`
	FilterMode string   `toml:"filter_mode,omitempty" json:"filterMode,omitempty"`
	FilterTaps int      `toml:"filter_taps,omitempty" json:"filterTaps,omitempty"`
	DGSFormat  string   `toml:"dgs_format,omitempty" json:"dgsFormat,omitempty"`
	DGSFiles   []string `toml:"dgs_files,omitempty" json:"dgsFiles,omitempty"`

	H1 Height `toml:"h1" json:"h1"`
	H2 Height `toml:"h2" json:"h2"`
	H3 Height `toml:"h3" json:"h3"`
}

// Heights returns pointers to the three height entries.
func (t *TieInfo) Heights() [tie.MaxReadings]*Height {
	return [tie.MaxReadings]*Height{&t.H1, &t.H2, &t.H3}
}

// WaterHeights extracts the heights for the bias calculator.
func (t *TieInfo) WaterHeights() tie.WaterHeights {
	wh := tie.NewWaterHeights()
	for i, h := range t.Heights() {
		wh[i] = tie.Sample{Time: h.Time, Value: h.Meters}
	}
	return wh
}

// ApplyBias stores a bias result.
func (t *TieInfo) ApplyBias(res tie.Result, mode tie.FilterMode) {
	t.Bias = res.Bias
	t.WaterGrav = res.WaterLineGravity
	t.AvgDGSGrav = res.AveragedMeterGravity
	t.AvgHeight = res.AverageHeight
	t.FilterMode = mode.String()
	t.FilterTaps = res.Smoothing.Taps
}

// NewTie returns a tie with every numeric field unset.
func NewTie() Tie {
	t := Tie{
		Station: Station{Gravity: tie.Unset},
		LandMeter: LandMeter{
			ShipLon:      tie.Unset,
			ShipLat:      tie.Unset,
			ShipElev:     tie.Unset,
			MeterTemp:    tie.Unset,
			LandTieValue: tie.Unset,
			Drift:        tie.Unset,
		},
		Tie: TieInfo{
			Bias:       tie.Unset,
			WaterGrav:  tie.Unset,
			AvgDGSGrav: tie.Unset,
			AvgHeight:  tie.Unset,
		},
	}
	for g := tie.A1; g <= tie.A2; g++ {
		for _, r := range t.LandMeter.Group(g) {
			*r = unsetReading()
		}
		*t.LandMeter.Average(g) = Average{Milligals: tie.Unset}
	}
	for _, h := range t.Tie.Heights() {
		*h = Height{Meters: tie.Unset}
	}
	return t
}

// Normalize clears legacy unset timestamps so that Valid checks work on
// values read from older files.
func (t *Tie) Normalize() {
	fix := func(ts *time.Time) {
		if ts.Equal(legacyUnsetTime) {
			*ts = time.Time{}
		}
	}
	for g := tie.A1; g <= tie.A2; g++ {
		for _, r := range t.LandMeter.Group(g) {
			fix(&r.Time)
		}
		fix(&t.LandMeter.Average(g).Time)
	}
	for _, h := range t.Tie.Heights() {
		fix(&h.Time)
	}
}

func displayName(name, alt string) string {
	if name == Other && alt != "" {
		return alt
	}
	return name
}
