package models

import (
	"testing"
	"time"

	"github.com/CK6170/gravtie-go/tie"
)

func TestNewTieUnset(t *testing.T) {
	tt := NewTie()
	if tt.Station.Gravity != tie.Unset || tt.Tie.Bias != tie.Unset || tt.LandMeter.LandTieValue != tie.Unset {
		t.Fatalf("expected unset numeric fields")
	}
	for g := tie.A1; g <= tie.A2; g++ {
		for i, s := range tt.LandMeter.Occupations()[g] {
			if s.Valid() {
				t.Fatalf("%s reading %d should be unset", g, i+1)
			}
		}
	}
	if n := countValid(tt.Tie.WaterHeights()); n != 0 {
		t.Fatalf("expected no valid heights, got %d", n)
	}
}

func countValid(h tie.WaterHeights) int {
	_, n := h.Average()
	return n
}

func TestNormalizeClearsLegacyTimes(t *testing.T) {
	tt := NewTie()
	tt.Tie.H1 = Height{Meters: tie.Unset, Time: legacyUnsetTime}
	tt.LandMeter.B2.Time = legacyUnsetTime
	tt.LandMeter.CC.Time = legacyUnsetTime
	tt.Normalize()
	if !tt.Tie.H1.Time.IsZero() || !tt.LandMeter.B2.Time.IsZero() || !tt.LandMeter.CC.Time.IsZero() {
		t.Fatalf("legacy unset times should be cleared")
	}
}

func TestApplyLandTieFillsGroups(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tt := NewTie()
	lm := &tt.LandMeter
	lm.A1 = Reading{Counts: 100, Time: t0}
	lm.B1 = Reading{Counts: 90, Time: t0.Add(30 * time.Minute)}
	lm.C1 = Reading{Counts: 100, Time: t0.Add(time.Hour)}
	table, err := tie.NewCalibrationTable([]float64{0}, []float64{0}, []float64{2})
	if err != nil {
		t.Fatal(err)
	}
	res, err := tie.ComputeLandTie(lm.Occupations(), table, 980000)
	if err != nil {
		t.Fatalf("ComputeLandTie: %v", err)
	}
	lm.ApplyLandTie(res)
	if lm.A1.Milligals != 200 || lm.B1.Milligals != 180 || lm.A2.Milligals != tie.Unset {
		t.Fatalf("unexpected per-reading values %v %v %v", lm.A1.Milligals, lm.B1.Milligals, lm.A2.Milligals)
	}
	if lm.BB.Milligals != 180 || !lm.BB.Time.Equal(t0.Add(30*time.Minute)) {
		t.Fatalf("unexpected B average %+v", lm.BB)
	}
	if lm.LandTieValue != 980020 || lm.Drift != 0 {
		t.Fatalf("unexpected tie %v drift %v", lm.LandTieValue, lm.Drift)
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct{ name, alt, want string }{
		{"R/V Ride", "", "R/V Ride"},
		{Other, "Launch 3", "Launch 3"},
		{Other, "", Other},
		{"R/V Ride", "ignored", "R/V Ride"},
	}
	for _, tc := range cases {
		if got := (Ship{Name: tc.name, AltName: tc.alt}).DisplayName(); got != tc.want {
			t.Fatalf("DisplayName(%q, %q) = %q", tc.name, tc.alt, got)
		}
	}
}
