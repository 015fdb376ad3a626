// Package session holds one tie while it is being entered. It stamps
// readings with a TimeSource, hands the relevant parts of the tie to the
// engine and stores the results back. It is shared by the terminal UI and
// the HTTP server.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/CK6170/gravtie-go/database"
	"github.com/CK6170/gravtie-go/dgs"
	"github.com/CK6170/gravtie-go/models"
	"github.com/CK6170/gravtie-go/tie"
)

var (
	ErrIndex         = errors.New("reading index out of range")
	ErrNoCalibration = errors.New("no calibration table loaded")
	ErrNoDatabase    = errors.New("no station database")
)

type Session struct {
	mu     sync.Mutex
	clock  TimeSource
	replay *SeriesClock
	db     *database.DB
	mode   tie.FilterMode
	faa    float64
	t      models.Tie
	table  tie.CalibrationTable
	series tie.Series
}

type Option func(*Session)

func WithClock(c TimeSource) Option { return func(s *Session) { s.clock = c } }

// WithHeightReplay stamps water heights from c, height i taking slot i,
// while counts keep the regular clock.
func WithHeightReplay(c *SeriesClock) Option { return func(s *Session) { s.replay = c } }

func WithDatabase(db *database.DB) Option { return func(s *Session) { s.db = db } }

func WithFilterMode(m tie.FilterMode) Option { return func(s *Session) { s.mode = m } }

func WithFAAFactor(f float64) Option { return func(s *Session) { s.faa = f } }

func New(t models.Tie, opts ...Option) *Session {
	s := &Session{clock: SystemClock{}, faa: tie.FAAFactor, t: t}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Tie returns a copy of the current tie.
func (s *Session) Tie() models.Tie {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.t
	t.Tie.DGSFiles = slices.Clone(s.t.Tie.DGSFiles)
	return t
}

func (s *Session) FAAFactor() float64 { return s.faa }

func (s *Session) FilterMode() tie.FilterMode { return s.mode }

// SeriesLen is the number of meter samples loaded.
func (s *Session) SeriesLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.series)
}

func checkIndex(i int) error {
	if i < 0 || i >= tie.MaxReadings {
		return fmt.Errorf("%w: %d", ErrIndex, i+1)
	}
	return nil
}

// RecordHeight stores water height i (0-based) in meters, stamped now.
// The magnitude is kept; the bias calculation applies the sign.
func (s *Session) RecordHeight(i int, meters float64) (models.Height, error) {
	if err := checkIndex(i); err != nil {
		return models.Height{}, err
	}
	now := s.clock.Now()
	if s.replay != nil {
		now = s.replay.At(i)
	}
	h := models.Height{Meters: math.Abs(meters), Time: now}
	s.mu.Lock()
	*s.t.Tie.Heights()[i] = h
	s.mu.Unlock()
	return h, nil
}

func (s *Session) ResetHeight(i int) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	s.mu.Lock()
	*s.t.Tie.Heights()[i] = models.Height{Meters: tie.Unset}
	s.mu.Unlock()
	return nil
}

// RecordCount stores land meter reading i of occupation g, stamped now.
func (s *Session) RecordCount(g tie.OccupationLabel, i int, counts float64) (models.Reading, error) {
	if err := checkIndex(i); err != nil {
		return models.Reading{}, err
	}
	r := models.Reading{Counts: math.Abs(counts), Time: s.clock.Now(), Milligals: tie.Unset}
	s.mu.Lock()
	*s.t.LandMeter.Group(g)[i] = r
	s.mu.Unlock()
	return r, nil
}

func (s *Session) ResetCount(g tie.OccupationLabel, i int) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	s.mu.Lock()
	*s.t.LandMeter.Group(g)[i] = models.Reading{Counts: tie.Unset, Milligals: tie.Unset}
	s.mu.Unlock()
	return nil
}

func (s *Session) SetShip(name, alt string) {
	s.mu.Lock()
	s.t.Ship = models.Ship{Name: name, AltName: alt}
	s.mu.Unlock()
}

func (s *Session) SetPersonnel(p string) {
	s.mu.Lock()
	s.t.Tie.Personnel = p
	s.mu.Unlock()
}

// SetStation selects the base station. When the database lists it, its
// number and absolute gravity are copied; otherwise gravity stays unset
// until SetStationGravity.
func (s *Session) SetStation(name, alt string) {
	st := models.Station{Name: name, AltName: alt, Gravity: tie.Unset}
	if s.db != nil {
		if rec, ok := s.db.Station(name); ok {
			st.Number = rec.Number
			st.Gravity = rec.Gravity
		}
	}
	s.mu.Lock()
	s.t.Station = st
	s.mu.Unlock()
}

func (s *Session) SetStationGravity(g float64) {
	s.mu.Lock()
	s.t.Station.Gravity = g
	s.mu.Unlock()
}

func (s *Session) SetLandTie(enabled bool) {
	s.mu.Lock()
	s.t.LandMeter.Enabled = enabled
	s.mu.Unlock()
}

// SetMeter records the land meter and the calibration table to use.
func (s *Session) SetMeter(name, alt string, table tie.CalibrationTable, calPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.LandMeter.Meter = name
	s.t.LandMeter.AltMeter = alt
	s.t.LandMeter.CalFilePath = calPath
	s.table = table
}

// SetMeterName records the meter without changing the loaded table.
func (s *Session) SetMeterName(name, alt string) {
	s.mu.Lock()
	s.t.LandMeter.Meter = name
	s.t.LandMeter.AltMeter = alt
	s.mu.Unlock()
}

// SelectMeter looks a meter up in the database and loads its table.
func (s *Session) SelectMeter(serial string) error {
	if s.db == nil {
		return ErrNoDatabase
	}
	table, path, err := s.db.CalibrationFor(serial)
	if err != nil {
		return err
	}
	s.SetMeter(serial, "", table, path)
	return nil
}

// LoadCalibration reads a calibration table from a file chosen by hand.
func (s *Session) LoadCalibration(path string) error {
	table, err := database.ReadCalibrationTable(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.t.LandMeter.CalFilePath = path
	s.table = table
	s.mu.Unlock()
	return nil
}

func (s *Session) SetCoordinates(lon, lat, elev, meterTemp float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.LandMeter.ShipLon = lon
	s.t.LandMeter.ShipLat = lat
	s.t.LandMeter.ShipElev = elev
	s.t.LandMeter.MeterTemp = meterTemp
}

// LoadSeries replaces the meter series.
func (s *Session) LoadSeries(series tie.Series, format dgs.Format, files []string) {
	sorted := tie.SortSeries(series)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = sorted
	s.t.Tie.DGSFormat = format.String()
	s.t.Tie.DGSFiles = slices.Clone(files)
}

// LoadDGSFiles reads meter files and replaces the series with them.
func (s *Session) LoadDGSFiles(ctx context.Context, format dgs.Format, paths []string) (int, error) {
	series, err := dgs.ReadFiles(ctx, paths, format)
	if err != nil {
		return 0, err
	}
	s.LoadSeries(series, format, paths)
	return len(series), nil
}

// ReloadDGSFiles reads back the files recorded in a resumed tie, if any.
func (s *Session) ReloadDGSFiles(ctx context.Context) (int, error) {
	t := s.Tie()
	if len(t.Tie.DGSFiles) == 0 {
		return 0, nil
	}
	format, err := dgs.ParseFormat(t.Tie.DGSFormat)
	if err != nil {
		return 0, err
	}
	return s.LoadDGSFiles(ctx, format, t.Tie.DGSFiles)
}

// ComputeLandTie runs the land tie over the recorded counts and stores
// the per-reading values, averages, drift and tie value.
func (s *Session) ComputeLandTie() (tie.LandTieResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.t.LandMeter.Enabled {
		return tie.LandTieResult{}, fmt.Errorf("land tie not enabled: %w", tie.ErrNotReady)
	}
	if s.table.Len() == 0 {
		return tie.LandTieResult{}, fmt.Errorf("%w: %w", ErrNoCalibration, tie.ErrNotReady)
	}
	occ := s.t.LandMeter.Occupations()
	a1, n1 := occ.MeanSeconds(tie.A1)
	a2, n2 := occ.MeanSeconds(tie.A2)
	if n1 > 0 && n2 > 0 && a1 == a2 {
		return tie.LandTieResult{}, fmt.Errorf("%w: A1 and A2 share a time", tie.ErrNotReady)
	}
	res, err := tie.ComputeLandTie(occ, s.table, s.t.Station.Gravity)
	if err != nil {
		return res, fmt.Errorf("land tie: %w", err)
	}
	s.t.LandMeter.ApplyLandTie(res)
	return res, nil
}

// ComputeBias averages the meter series over the water height window and
// stores the bias. The pier gravity comes from the land tie when one was
// made, else from the station.
func (s *Session) ComputeBias() (tie.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lm := s.t.LandMeter
	pier, _ := tie.SelectPierGravity(s.t.Station.Gravity, lm.LandTieValue, lm.Enabled)
	res, err := tie.ComputeBias(pier, s.t.Tie.WaterHeights(), s.series,
		tie.WithFilterMode(s.mode), tie.WithFAAFactor(s.faa))
	if err != nil {
		return res, fmt.Errorf("bias: %w", err)
	}
	s.t.Tie.ApplyBias(res, s.mode)
	return res, nil
}

// UncoveredCounts names the recorded readings (e.g. "B-2") that fall more
// than tie.DefaultBracketGap counts above the nearest table bracket, or below
// the table. Such values are extrapolated and should be checked.
func (s *Session) UncoveredCounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table.Len() == 0 || !s.t.LandMeter.Enabled {
		return nil
	}
	var out []string
	for g := tie.A1; g <= tie.A2; g++ {
		for i, r := range s.t.LandMeter.Group(g) {
			if r.Counts == tie.Unset || s.table.Covers(r.Counts, tie.DefaultBracketGap) {
				continue
			}
			out = append(out, fmt.Sprintf("%s-%d", g, i+1))
		}
	}
	return out
}
