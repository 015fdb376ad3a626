package database

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/CK6170/gravtie-go/tie"
)

// ReadCalibrationTable reads a .CAL file. Lines made of exactly three
// numbers are table rows (bracket, mGal value, factor); anything else,
// such as the header, is skipped.
func ReadCalibrationTable(path string) (tie.CalibrationTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return tie.CalibrationTable{}, fmt.Errorf("open calibration table: %w", err)
	}
	defer f.Close()
	t, err := ParseCalibrationTable(f)
	if err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func ParseCalibrationTable(r io.Reader) (tie.CalibrationTable, error) {
	var brackets, values, factors []float64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		row, ok := parseRow(sc.Text())
		if !ok {
			continue
		}
		brackets = append(brackets, row[0])
		values = append(values, row[1])
		factors = append(factors, row[2])
	}
	if err := sc.Err(); err != nil {
		return tie.CalibrationTable{}, err
	}
	if len(brackets) == 0 {
		return tie.CalibrationTable{}, fmt.Errorf("no calibration rows")
	}
	return tie.NewCalibrationTable(brackets, values, factors)
}

func parseRow(line string) ([3]float64, bool) {
	var row [3]float64
	n := 0
	for _, tok := range strings.Fields(line) {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		if n == len(row) {
			return row, false
		}
		row[n] = v
		n++
	}
	return row, n == len(row)
}
