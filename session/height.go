package session

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const feetPerMeter = 3.281

// FeetInchesToMeters converts an imperial tape reading.
func FeetInchesToMeters(feet, inches float64) float64 {
	return (feet + inches/12) / feetPerMeter
}

var imperialHeight = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*(?:ft|')\s*(?:(\d+(?:\.\d+)?)\s*(?:in|")?)?\s*$`)

// ParseHeight reads a water height in meters ("2.35") or feet and
// inches ("7ft 8in", `7'8"`).
func ParseHeight(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if m := imperialHeight.FindStringSubmatch(s); m != nil {
		ft, _ := strconv.ParseFloat(m[1], 64)
		var in float64
		if m[2] != "" {
			in, _ = strconv.ParseFloat(m[2], 64)
		}
		return FeetInchesToMeters(ft, in), nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "m")), 64)
	if err != nil {
		return 0, fmt.Errorf("height %q: expected meters or feet and inches", s)
	}
	return v, nil
}
