package session

import (
	"fmt"

	"github.com/CK6170/gravtie-go/models"
	"github.com/CK6170/gravtie-go/tie"
)

type StepKind string

const (
	StepShip           StepKind = "ship"
	StepPersonnel      StepKind = "personnel"
	StepStation        StepKind = "station"
	StepStationGravity StepKind = "station-gravity"
	StepLandTie        StepKind = "landtie"
	StepMeter          StepKind = "meter"
	StepCoordinates    StepKind = "coordinates"
	StepCount          StepKind = "count"
	StepComputeLandTie StepKind = "compute-landtie"
	StepHeight         StepKind = "height"
	StepDGS            StepKind = "dgs"
	StepComputeBias    StepKind = "compute-bias"
)

type Step struct {
	Kind   StepKind
	Group  tie.OccupationLabel // count steps
	Index  int                 // count and height steps: 0..2
	Label  string              // e.g. [SHIP] or [A1-2]
	Prompt string
	Done   bool
}

// BuildPlan lists the entry steps for t in order. Steps that depend on
// earlier answers (station gravity, the land tie block) appear only when
// they apply, so the plan should be rebuilt after each answer.
func BuildPlan(t models.Tie, seriesLoaded bool) []Step {
	steps := []Step{
		{Kind: StepShip, Label: "[SHIP]", Prompt: "Ship name.", Done: t.Ship.Name != ""},
		{Kind: StepPersonnel, Label: "[CREW]", Prompt: "Personnel making the tie.", Done: t.Tie.Personnel != ""},
		{Kind: StepStation, Label: "[STATION]", Prompt: "Base station name.", Done: t.Station.Name != ""},
	}
	if t.Station.Name != "" && t.Station.Gravity == tie.Unset {
		steps = append(steps, Step{
			Kind:   StepStationGravity,
			Label:  "[ABS]",
			Prompt: "Station has no absolute gravity on file. Enter it in mGal.",
		})
	}
	steps = append(steps, Step{
		Kind:   StepLandTie,
		Label:  "[LAND]",
		Prompt: "Is a land tie being made? (y/n)",
		Done:   t.LandMeter.Enabled,
	})
	if t.LandMeter.Enabled {
		lm := t.LandMeter
		steps = append(steps,
			Step{Kind: StepMeter, Label: "[METER]", Prompt: "Land meter serial, or a path to a .CAL file.", Done: lm.Meter != "" || lm.CalFilePath != ""},
			Step{Kind: StepCoordinates, Label: "[POS]", Prompt: "Ship lon lat elevation(m) meter-temperature, space separated.", Done: lm.ShipLat != tie.Unset},
		)
		for g := tie.A1; g <= tie.A2; g++ {
			for i, r := range lm.Group(g) {
				steps = append(steps, Step{
					Kind:   StepCount,
					Group:  g,
					Index:  i,
					Label:  fmt.Sprintf("[%s-%d]", g, i+1),
					Prompt: fmt.Sprintf("Land meter counts, occupation %s reading %d.", g, i+1),
					Done:   r.Counts != tie.Unset,
				})
			}
		}
		steps = append(steps, Step{
			Kind:   StepComputeLandTie,
			Label:  "[TIE]",
			Prompt: "Press Enter to compute the land tie.",
			Done:   lm.LandTieValue != tie.Unset,
		})
	}
	for i, h := range t.Tie.Heights() {
		steps = append(steps, Step{
			Kind:   StepHeight,
			Index:  i,
			Label:  fmt.Sprintf("[H%d]", i+1),
			Prompt: fmt.Sprintf("Water height to pier %d (meters, or e.g. 7ft 8in).", i+1),
			Done:   h.Meters != tie.Unset,
		})
	}
	steps = append(steps,
		Step{Kind: StepDGS, Label: "[DGS]", Prompt: "DGS file paths, space separated. Prefix raw: for raw serial logs.", Done: seriesLoaded},
		Step{Kind: StepComputeBias, Label: "[BIAS]", Prompt: "Press Enter to compute the bias, then save the tie and report.", Done: t.Tie.Bias != tie.Unset},
	)
	return steps
}

// NextStep returns the index of the first step not done, or len(steps).
func NextStep(steps []Step) int {
	for i, st := range steps {
		if !st.Done {
			return i
		}
	}
	return len(steps)
}
