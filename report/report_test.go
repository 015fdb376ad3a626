package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/CK6170/gravtie-go/models"
	"github.com/CK6170/gravtie-go/tie"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func stationTie() models.Tie {
	t := models.NewTie()
	t.Ship.Name = models.Other
	t.Ship.AltName = "R/V Test"
	t.Tie.Personnel = "J. Doe"
	t.Station = models.Station{Name: "Pier 91", Number: "US-0091", Gravity: 980000}
	t.Tie.H1 = models.Height{Meters: 2, Time: t0}
	t.Tie.H2 = models.Height{Meters: 3, Time: t0.Add(10 * time.Minute)}
	t.Tie.AvgHeight = -2
	t.Tie.WaterGrav = 980000 + tie.FAAFactor*-2
	t.Tie.AvgDGSGrav = 10000
	t.Tie.Bias = t.Tie.WaterGrav - 10000
	return t
}

func render(t *testing.T, tt models.Tie) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, tt, tie.FAAFactor); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.String()
}

func TestWriteStationOnly(t *testing.T) {
	out := render(t, stationTie())
	for _, want := range []string{
		"Ship: R/V Test\n",
		"Personnel: J. Doe\n",
		"Number: US-0091\n",
		"Known absolute gravity (mGal): 980000.000\n",
		"------------------- Land tie ----------------\n\nN/A\n",
		"Gravity at pier (mGal): 980000.000\n",
		"UTC time and water height to pier (m) 1: 2024/05/01 12:00:00 2.000\n",
		"UTC time and water height to pier (m) 2: 2024/05/01 12:10:00 3.000\n",
		"UTC time and water height to pier (m) 3: \n",
		"Gravity at water line (mGal): 980000.000 + 0.3086 * -2.0000 = 979999.383\n",
		"DgS meter bias (mGal): 979999.383 - 10000.0000 = 969999.3828\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteLandTie(t *testing.T) {
	tt := stationTie()
	lm := &tt.LandMeter
	lm.Enabled = true
	lm.Meter = "G-1234"
	lm.Drift = 0.0025
	lm.LandTieValue = 980100
	lm.AA = models.Average{Time: t0, Milligals: 2500}
	lm.BB = models.Average{Time: t0.Add(30 * time.Minute), Milligals: 2400}
	lm.CC = models.Average{Time: t0.Add(time.Hour), Milligals: 2509}
	out := render(t, tt)
	for _, want := range []string{
		"Land meter #: G-1234\n",
		"UTC time and meter gravity (mGal) at A1: 2024/05/01 12:00:00 2500.000\n",
		"UTC time and meter gravity (mGal) at B: 2024/05/01 12:30:00 2400.000\n",
		"Delta_T_ab (s): 1800.000\n",
		"Delta_T_aa (s): 3600.000\n",
		"Drift corrected meter gravity at B (mGal): 2400.000 - 1800.000 * 0.0025 = 2395.500\n",
		"Gravity at pier (mGal): 980100.000\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "N/A") {
		t.Fatalf("land tie report must not print N/A")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteReportsWriterError(t *testing.T) {
	if err := Write(failingWriter{}, stationTie(), tie.FAAFactor); err == nil {
		t.Fatalf("expected write error")
	}
}
