package database

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CK6170/gravtie-go/tie"
)

const stationsDB = `# reference stations
[STATION_1]
NAME="Seattle Pier 91"
NUMBER="US-0091"
GRAVITY="980744.06"
LAT="47.63"

[STATION_2]
NAME="Honolulu #3"
GRAVITY=

[OTHER]
NAME="not a station"
`

const metersDB = `[LAND_METER_1]
SN="G-1234"
TABLE="G1234.CAL"

[LAND_METER_2]
SN="G-77"
`

const shipsDB = `SHIP1="R/V Thompson"
SHIP2="R/V Revelle"
PORT="ignored"
`

const calFile = `bracket  mgal  factor
0    0.00   1.00000
100  100.00 1.01000
200  201.00 1.02000
`

func writeDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		StationsFile:                       stationsDB,
		MetersFile:                         metersDB,
		ShipsFile:                          shipsDB,
		filepath.Join(CalDir, "G1234.CAL"): calFile,
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestReadStations(t *testing.T) {
	dir := writeDB(t)
	got, err := ReadStations(filepath.Join(dir, StationsFile))
	if err != nil {
		t.Fatalf("ReadStations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(got))
	}
	if got[0].Name != "Seattle Pier 91" || got[0].Number != "US-0091" || got[0].Gravity != 980744.06 {
		t.Fatalf("unexpected first station %+v", got[0])
	}
	if got[0].Extra["LAT"] != "47.63" {
		t.Fatalf("expected LAT kept in Extra, got %v", got[0].Extra)
	}
	if got[1].Name != "Honolulu #3" {
		t.Fatalf("inline # must not start a comment, got %q", got[1].Name)
	}
	if got[1].Number != "2" || got[1].HasGravity() {
		t.Fatalf("expected number from section and no gravity, got %+v", got[1])
	}
}

func TestReadMetersAndShips(t *testing.T) {
	dir := writeDB(t)
	meters, err := ReadMeters(filepath.Join(dir, MetersFile))
	if err != nil {
		t.Fatalf("ReadMeters: %v", err)
	}
	if len(meters) != 2 || meters[0].Serial != "G-1234" || meters[0].Table != "G1234.CAL" || meters[1].Table != "" {
		t.Fatalf("unexpected meters %+v", meters)
	}
	ships, err := ReadShips(filepath.Join(dir, ShipsFile))
	if err != nil {
		t.Fatalf("ReadShips: %v", err)
	}
	if strings.Join(ships, ",") != "R/V Thompson,R/V Revelle" {
		t.Fatalf("unexpected ships %v", ships)
	}
}

func TestDBLookups(t *testing.T) {
	db, err := Open(writeDB(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if g, ok := db.StationGravity("Seattle Pier 91"); !ok || g != 980744.06 {
		t.Fatalf("StationGravity = %v, %v", g, ok)
	}
	if _, ok := db.StationGravity("Honolulu #3"); ok {
		t.Fatalf("station without gravity must report false")
	}
	if _, ok := db.StationGravity("nowhere"); ok {
		t.Fatalf("unknown station must report false")
	}

	table, path, err := db.CalibrationFor("G-1234")
	if err != nil {
		t.Fatalf("CalibrationFor: %v", err)
	}
	if filepath.Base(path) != "G1234.CAL" || table.Len() != 3 {
		t.Fatalf("unexpected table %s len %d", path, table.Len())
	}
	if got := tie.ConvertCountsToMilligals(150, table); got != 150.5 {
		t.Fatalf("expected 150.5 mGal, got %v", got)
	}

	if filepath.Base(db.CalibrationPath("G-77")) != "G-77.CAL" {
		t.Fatalf("meter without TABLE should fall back to serial name")
	}
	if _, _, err := db.CalibrationFor("G-77"); err == nil {
		t.Fatalf("expected error for missing calibration file")
	}
	if _, _, err := db.CalibrationFor("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenWithoutOptionalFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StationsFile), []byte(stationsDB), 0o644); err != nil {
		t.Fatal(err)
	}
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(db.Meters) != 0 || len(db.Ships) != 0 {
		t.Fatalf("expected empty optional lists")
	}
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatalf("expected error without stations file")
	}
}

func TestParseCalibrationTable(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		rows    int
		wantErr bool
	}{
		{"header skipped", calFile, 3, false},
		{"four numbers skipped", "1 2 3 4\n5 6 7\n", 1, false},
		{"two numbers skipped", "1 2\n5 6 7\n", 1, false},
		{"blank lines", "\n\n5 6 7\n\n", 1, false},
		{"empty", "title only\n", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			table, err := ParseCalibrationTable(strings.NewReader(tc.in))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if table.Len() != tc.rows {
				t.Fatalf("expected %d rows, got %d", tc.rows, table.Len())
			}
		})
	}
}
