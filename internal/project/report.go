package project

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ReportInfo describes the coordinate systems named in the report header.
type ReportInfo struct {
	Horizontal   string
	HeightMethod string
}

var rule = strings.Repeat("=", 70)
var thinRule = strings.Repeat("-", 70)

func ensureReport(path, projectName string, info ReportInfo, now time.Time) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("  RAPORT POMIAROWY\n")
	fmt.Fprintf(&b, "  Projekt: %s\n", projectName)
	fmt.Fprintf(&b, "  Utworzony: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "  Uklad poziomy: %s\n", info.Horizontal)
	fmt.Fprintf(&b, "  Uklad wysokosciowy: PL-EVRF2007-NH (%s)\n", info.HeightMethod)
	b.WriteString(rule + "\n\n")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func optOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func reportBlock(r Record) string {
	var b strings.Builder
	b.WriteString(thinRule + "\n")
	fmt.Fprintf(&b, "  Punkt #%d: %s\n", r.ID, r.Name)
	b.WriteString(thinRule + "\n")
	fmt.Fprintf(&b, "  Czas pomiaru:  %s -> %s\n", r.StartedAt.Format("2006-01-02T15:04:05"), r.FinishedAt.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, "  Czas trwania:  %.1f s\n", r.DurationS)
	fmt.Fprintf(&b, "  Probki:        %d uzytych / %d odrzuconych\n", r.Samples, r.Rejected)
	b.WriteString("\n")
	b.WriteString("  --- Wspolrzedne PL-2000 ---\n")
	if r.X != nil && r.Y != nil {
		fmt.Fprintf(&b, "  X (northing):  %.3f m\n", *r.X)
		fmt.Fprintf(&b, "  Y (easting):   %.3f m\n", *r.Y)
	} else {
		b.WriteString("  X, Y:          BLAD KONWERSJI\n")
	}
	b.WriteString("\n")
	b.WriteString("  --- Wysokosc ---\n")
	if r.HNormal != nil {
		fmt.Fprintf(&b, "  H normalna:    %.3f m (EVRF2007-NH, metoda: %s)\n", *r.HNormal, r.HeightMethod)
	}
	fmt.Fprintf(&b, "  h elipsoid.:   %.3f m (WGS84)\n", optOrZero(r.HEll))
	b.WriteString("\n")
	b.WriteString("  --- WGS84 ---\n")
	fmt.Fprintf(&b, "  Szerokosc:     %.8f\n", r.Lat)
	fmt.Fprintf(&b, "  Dlugosc:       %.8f\n", r.Lon)
	b.WriteString("\n")
	b.WriteString("  --- Dokladnosc ---\n")
	fmt.Fprintf(&b, "  Std poziom:    %.4f m\n", r.StdHorizontalM)
	if r.StdAltM != nil {
		fmt.Fprintf(&b, "  Std wysokosc:  %.4f m\n", *r.StdAltM)
	}
	fmt.Fprintf(&b, "  Sr. HDOP:      %.2f\n", optOrZero(r.AvgHDOP))
	fmt.Fprintf(&b, "  Sr. PDOP:      %.2f\n", optOrZero(r.AvgPDOP))
	b.WriteString("\n\n")
	return b.String()
}

func appendReport(path string, r Record) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(reportBlock(r)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
