// Package report renders a finished tie as the plain-text sheet kept
// with the ship's gravity records.
package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/CK6170/gravtie-go/models"
	"github.com/CK6170/gravtie-go/tie"
)

const stampLayout = "2006/01/02 15:04:05"

// sheet collects the first write error so the layout code stays flat.
type sheet struct {
	w   io.Writer
	err error
}

func (s *sheet) line(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, format+"\n", args...)
}

// Write renders t. faa is the free-air factor the bias was computed with.
func Write(w io.Writer, t models.Tie, faa float64) error {
	s := &sheet{w: w}
	st := t.Station
	lm := &t.LandMeter

	s.line("")
	s.line("Ship: %s", t.Ship.DisplayName())
	s.line("Personnel: %s", t.Tie.Personnel)
	s.line("")
	s.line("#Base Station:")
	s.line("Name: %s", st.DisplayName())
	s.line("Number: %s", st.Number)
	s.line("Known absolute gravity (mGal): %.3f", st.Gravity)
	s.line("")
	s.line("------------------- Land tie ----------------")
	s.line("")
	if lm.Enabled {
		writeLandTie(s, t)
	} else {
		s.line("N/A")
	}
	s.line("")
	s.line("------------------- End of land tie ----------------")
	s.line("")

	pier, _ := tie.SelectPierGravity(st.Gravity, lm.LandTieValue, lm.Enabled)
	s.line("Gravity at pier (mGal): %.3f", pier)
	for i, h := range t.Tie.Heights() {
		if h.Meters == tie.Unset || h.Time.IsZero() {
			s.line("UTC time and water height to pier (m) %d: ", i+1)
			continue
		}
		s.line("UTC time and water height to pier (m) %d: %s %.3f", i+1, h.Time.UTC().Format(stampLayout), math.Abs(h.Meters))
	}
	s.line("")
	s.line("DgS meter gravity (mGal): %.4f", t.Tie.AvgDGSGrav)
	s.line("Average water height to pier (m): %.4f", t.Tie.AvgHeight)
	s.line("Gravity at water line (mGal): %.3f + %.4f * %.4f = %.3f", pier, faa, t.Tie.AvgHeight, t.Tie.WaterGrav)
	s.line("DgS meter bias (mGal): %.3f - %.4f = %.4f", t.Tie.WaterGrav, t.Tie.AvgDGSGrav, t.Tie.Bias)
	return s.err
}

func writeLandTie(s *sheet, t models.Tie) {
	lm := &t.LandMeter
	s.line("Land meter #: %s", lm.DisplayName())
	s.line("Meter temperature: %.3f", lm.MeterTemp)
	s.line("")
	s.line("#New station A:")
	s.line("Name: %s", t.Ship.DisplayName())
	s.line("Latitude (deg): %.3f", lm.ShipLat)
	s.line("Longitude (deg): %.3f", lm.ShipLon)
	s.line("Elevation (m): %.3f", lm.ShipElev)

	var avg [3]models.Average
	for g := tie.A1; g <= tie.A2; g++ {
		avg[g] = *lm.Average(g)
		s.line("UTC time and meter gravity (mGal) at %s: %s %.3f", g, stamp(avg[g].Time), avg[g].Milligals)
	}
	aa := avg[tie.A2].Time.Sub(avg[tie.A1].Time).Seconds()
	ab := avg[tie.B].Time.Sub(avg[tie.A1].Time).Seconds()
	correctedB := avg[tie.B].Milligals - ab*lm.Drift

	s.line("Delta_T_ab (s): %.3f", ab)
	s.line("Delta_T_aa (s): %.3f", aa)
	s.line("Drift (mGal): (%.3f - %.3f)/%.3f = %.3g", avg[tie.A2].Milligals, avg[tie.A1].Milligals, aa, lm.Drift)
	s.line("Drift corrected meter gravity at B (mGal): %.3f - %.3f * %.3g = %.3f", avg[tie.B].Milligals, ab, lm.Drift, correctedB)
	s.line("Gravity at pier (mGal): %.3f + %.3f - %.3f = %.3f", t.Station.Gravity, avg[tie.A1].Milligals, correctedB, lm.LandTieValue)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(stampLayout)
}
