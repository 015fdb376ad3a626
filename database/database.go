// Package database reads the station, land meter and ship lists kept next
// to the tie tooling, plus land meter calibration tables.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/CK6170/gravtie-go/tie"
)

const (
	StationsFile = "stations.db"
	MetersFile   = "landmeters.db"
	ShipsFile    = "ships.db"
	CalDir       = "land-cal"

	stationPrefix = "STATION_"
	meterPrefix   = "LAND_METER_"
)

var ErrNotFound = errors.New("not found")

type Station struct {
	Number  string
	Name    string
	Gravity float64
	Extra   map[string]string
}

// HasGravity reports whether the database lists an absolute gravity value.
func (s Station) HasGravity() bool { return s.Gravity != tie.Unset }

type Meter struct {
	Number string
	Serial string
	Table  string
}

func load(path string) (*ini.File, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		AllowShadows:            true,
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return f, nil
}

// ReadStations returns every [STATION_n] section in file order.
func ReadStations(path string) ([]Station, error) {
	f, err := load(path)
	if err != nil {
		return nil, err
	}
	var out []Station
	for _, sec := range f.Sections() {
		num, ok := strings.CutPrefix(sec.Name(), stationPrefix)
		if !ok {
			continue
		}
		st := Station{Number: num, Gravity: tie.Unset, Extra: map[string]string{}}
		for _, k := range sec.Keys() {
			v := strings.TrimSpace(k.String())
			switch k.Name() {
			case "NAME":
				st.Name = v
			case "NUMBER":
				if v != "" {
					st.Number = v
				}
			case "GRAVITY":
				if v == "" {
					continue
				}
				g, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("%s [%s] GRAVITY %q: %w", path, sec.Name(), v, err)
				}
				st.Gravity = g
			default:
				st.Extra[k.Name()] = v
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// ReadMeters returns every [LAND_METER_n] section in file order.
func ReadMeters(path string) ([]Meter, error) {
	f, err := load(path)
	if err != nil {
		return nil, err
	}
	var out []Meter
	for _, sec := range f.Sections() {
		num, ok := strings.CutPrefix(sec.Name(), meterPrefix)
		if !ok {
			continue
		}
		out = append(out, Meter{
			Number: num,
			Serial: strings.TrimSpace(sec.Key("SN").String()),
			Table:  strings.TrimSpace(sec.Key("TABLE").String()),
		})
	}
	return out, nil
}

// ReadShips returns the values of every SHIP* key.
func ReadShips(path string) ([]string, error) {
	f, err := load(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, sec := range f.Sections() {
		for _, k := range sec.Keys() {
			if !strings.HasPrefix(k.Name(), "SHIP") {
				continue
			}
			for _, v := range k.ValueWithShadows() {
				if v = strings.TrimSpace(v); v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out, nil
}

// DB holds the lists read from one database directory.
type DB struct {
	Dir      string
	Stations []Station
	Meters   []Meter
	Ships    []string
}

// Open loads all three lists. A missing ships or meters file is not an
// error; a missing station list is.
func Open(dir string) (*DB, error) {
	db := &DB{Dir: dir}
	var err error
	if db.Stations, err = ReadStations(filepath.Join(dir, StationsFile)); err != nil {
		return nil, err
	}
	if db.Meters, err = readOptional(filepath.Join(dir, MetersFile), ReadMeters); err != nil {
		return nil, err
	}
	if db.Ships, err = readOptional(filepath.Join(dir, ShipsFile), ReadShips); err != nil {
		return nil, err
	}
	return db, nil
}

func readOptional[T any](path string, read func(string) ([]T, error)) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return read(path)
}

func (db *DB) Station(name string) (Station, bool) {
	i := slices.IndexFunc(db.Stations, func(s Station) bool { return s.Name == name })
	if i < 0 {
		return Station{}, false
	}
	return db.Stations[i], true
}

// StationGravity returns the listed absolute gravity of a station, or false
// when the station is unknown or has no value.
func (db *DB) StationGravity(name string) (float64, bool) {
	st, ok := db.Station(name)
	if !ok || !st.HasGravity() {
		return tie.Unset, false
	}
	return st.Gravity, true
}

func (db *DB) Meter(serial string) (Meter, bool) {
	i := slices.IndexFunc(db.Meters, func(m Meter) bool { return m.Serial == serial })
	if i < 0 {
		return Meter{}, false
	}
	return db.Meters[i], true
}

// CalibrationPath returns where the calibration table for a meter lives:
// the TABLE entry when listed, otherwise <serial>.CAL in the land-cal dir.
func (db *DB) CalibrationPath(serial string) string {
	name := serial + ".CAL"
	if m, ok := db.Meter(serial); ok && m.Table != "" {
		name = m.Table
	}
	return filepath.Join(db.Dir, CalDir, name)
}

// CalibrationFor reads the calibration table of a listed meter.
func (db *DB) CalibrationFor(serial string) (tie.CalibrationTable, string, error) {
	if _, ok := db.Meter(serial); !ok {
		return tie.CalibrationTable{}, "", fmt.Errorf("meter %q: %w", serial, ErrNotFound)
	}
	path := db.CalibrationPath(serial)
	t, err := ReadCalibrationTable(path)
	return t, path, err
}
