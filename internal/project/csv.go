package project

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	pointsFile = "wspolrzedne.csv"
	reportFile = "raport.txt"
)

var csvHeader = []string{"ID", "Nazwa", "X_PL2000", "Y_PL2000", "H_EVRF2007", "Lat_WGS84", "Lon_WGS84", "H_elips"}

func newCSVWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	return cw
}

func fmtOpt(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func recordRow(r Record) []string {
	return []string{
		strconv.Itoa(r.ID),
		r.Name,
		fmtOpt(r.X, 3),
		fmtOpt(r.Y, 3),
		fmtOpt(r.HNormal, 3),
		strconv.FormatFloat(r.Lat, 'f', 8, 64),
		strconv.FormatFloat(r.Lon, 'f', 8, 64),
		fmtOpt(r.HEll, 3),
	}
}

func ensureCSV(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	cw := newCSVWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		_ = f.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func appendCSV(path string, r Record) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	cw := newCSVWriter(f)
	if err := cw.Write(recordRow(r)); err != nil {
		_ = f.Close()
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// countPoints is the number of data rows; a missing file has none.
func countPoints(path string) int {
	pts, err := readPoints(path)
	if err != nil {
		return 0
	}
	return len(pts)
}

// readPoints parses a coordinates file. The header row is detected by its
// first cell and skipped; columns beyond the first two are optional.
func readPoints(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parsePoints(f)
}

func parsePoints(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []Point
	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("parse csv: %w", err)
		}
		line++
		if line == 1 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "ID") {
			continue
		}
		if len(row) < 2 {
			continue
		}
		col := func(i int) *float64 {
			if i >= len(row) {
				return nil
			}
			s := strings.TrimSpace(strings.ReplaceAll(row[i], ",", "."))
			if s == "" {
				return nil
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil
			}
			return &v
		}
		out = append(out, Point{
			ID:   strings.TrimSpace(row[0]),
			Name: strings.TrimSpace(row[1]),
			X:    col(2),
			Y:    col(3),
			H:    col(4),
			Lat:  col(5),
			Lon:  col(6),
			HEll: col(7),
		})
	}
}
