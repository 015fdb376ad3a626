package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/CK6170/gravtie-go/models"
	"github.com/CK6170/gravtie-go/report"
)

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

func writeReport(path string, t models.Tie, faa float64) error {
	var buf bytes.Buffer
	if err := report.Write(&buf, t, faa); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
