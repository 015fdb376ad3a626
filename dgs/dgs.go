// Package dgs reads gravity time series logged by DGS AT1M marine
// gravimeters, either the laptop .dat export or the raw serial strings.
package dgs

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CK6170/gravtie-go/tie"
)

// Raw count to mGal conversion used by the AT1M serial output.
const (
	GravCal     = 414125.0
	OtherFactor = 8388607.0
	G0          = 10000.0
)

type Format int

const (
	// FormatStandard: gravity in column 1, date and time split over
	// columns 19..24 (year, month, day, hour, minute, second).
	FormatStandard Format = iota
	// FormatThompson: MM/DD/YYYY in column 0, HH:MM:SS in column 1,
	// gravity in column 3.
	FormatThompson
	// FormatRaw: raw serial strings, counts in column 1 and a
	// YYYYMMDDhhmmss stamp in column 18.
	FormatRaw
)

var formatNames = map[Format]string{
	FormatStandard: "standard",
	FormatThompson: "thompson",
	FormatRaw:      "raw",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown DGS file format %q", s)
}

var ErrUnsupportedShip = errors.New("ship has no known DGS laptop file layout")

var shipFormats = map[string]Format{
	"R/V Atlantis": FormatStandard,
	"R/V Revelle":  FormatStandard,
	"R/V Palmer":   FormatStandard,
	"R/V Ride":     FormatStandard,
	"R/V Thompson": FormatThompson,
}

// FormatForShip returns the laptop file layout used aboard a ship.
func FormatForShip(ship string) (Format, error) {
	f, ok := shipFormats[ship]
	if !ok {
		return 0, fmt.Errorf("%q: %w", ship, ErrUnsupportedShip)
	}
	return f, nil
}

// Read parses one file in the given format, handing raw serial logs to
// ReadRawFile and laptop files to ReadLaptopFile.
func Read(r io.Reader, format Format) (tie.Series, error) {
	if format == FormatRaw {
		return ReadRawFile(r)
	}
	return ReadLaptopFile(r, format)
}

// ReadLaptopFile parses a file written by the DGS laptop software in the
// standard or Thompson layout.
func ReadLaptopFile(r io.Reader, format Format) (tie.Series, error) {
	switch format {
	case FormatStandard:
		return readLines(r, parseStandard)
	case FormatThompson:
		return readLines(r, parseThompson)
	case FormatRaw:
		return nil, fmt.Errorf("raw format is not a laptop file")
	}
	return nil, fmt.Errorf("unknown format %v", format)
}

// ReadRawFile parses logged AT1M serial strings.
func ReadRawFile(r io.Reader) (tie.Series, error) { return readLines(r, parseRaw) }

// readLines skips blank lines; any malformed line fails the whole file
// with its line number.
func readLines(r io.Reader, parse func([]string) (tie.Sample, error)) (tie.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var out tie.Series
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		s, err := parse(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadFiles parses files concurrently and returns their samples sorted
// by time.
func ReadFiles(ctx context.Context, paths []string, format Format) (tie.Series, error) {
	parts := make([]tie.Series, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			s, err := Read(f, format)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			parts[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all tie.Series
	for _, s := range parts {
		all = append(all, s...)
	}
	return tie.SortSeries(all), nil
}

func field(rec []string, i int) (string, error) {
	if i >= len(rec) {
		return "", fmt.Errorf("expected at least %d columns, got %d", i+1, len(rec))
	}
	return strings.TrimSpace(rec[i]), nil
}

func floatField(rec []string, i int) (float64, error) {
	s, err := field(rec, i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %d: %w", i, err)
	}
	return v, nil
}

func parseStandard(rec []string) (tie.Sample, error) {
	g, err := floatField(rec, 1)
	if err != nil {
		return tie.Sample{}, err
	}
	var parts [6]int
	for k := range parts {
		s, err := field(rec, 19+k)
		if err != nil {
			return tie.Sample{}, err
		}
		if parts[k], err = strconv.Atoi(s); err != nil {
			return tie.Sample{}, fmt.Errorf("column %d: %w", 19+k, err)
		}
	}
	ts := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC)
	return tie.Sample{Time: ts, Value: g}, nil
}

func parseThompson(rec []string) (tie.Sample, error) {
	d, err := field(rec, 0)
	if err != nil {
		return tie.Sample{}, err
	}
	clock, err := field(rec, 1)
	if err != nil {
		return tie.Sample{}, err
	}
	ts, err := time.Parse("01/02/2006-15:04:05", d+"-"+clock)
	if err != nil {
		return tie.Sample{}, err
	}
	g, err := floatField(rec, 3)
	if err != nil {
		return tie.Sample{}, err
	}
	return tie.Sample{Time: ts, Value: g}, nil
}

// parseRaw reads the stamp from column 18. Some loggers write a seconds
// counter there and carry an ISO time at the start of column 0 instead.
func parseRaw(rec []string) (tie.Sample, error) {
	counts, err := floatField(rec, 1)
	if err != nil {
		return tie.Sample{}, err
	}
	stamp, err := field(rec, 18)
	if err != nil {
		return tie.Sample{}, err
	}
	ts, err := time.Parse("20060102150405", stamp)
	if err != nil {
		head, _, _ := strings.Cut(strings.TrimSpace(rec[0]), " ")
		var isoErr error
		if ts, isoErr = time.Parse("2006-01-02T15:04:05", head); isoErr != nil {
			return tie.Sample{}, fmt.Errorf("no timestamp in column 18 (%q) or column 0", stamp)
		}
	}
	return tie.Sample{Time: ts, Value: CountsToMilligals(counts)}, nil
}

func CountsToMilligals(counts float64) float64 {
	return counts*GravCal/OtherFactor + G0
}
