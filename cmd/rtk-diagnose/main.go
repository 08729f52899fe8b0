// Command rtk-diagnose checks the serial link to the GNSS receiver step by
// step: port detection, NMEA reception, command replies and the TX path used
// for RTCM corrections.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/MarcinM22/rtk-monitor/internal/gps"
)

const testBytes = 100

var rule = strings.Repeat("=", 60)

type options struct {
	Device      string
	Baud        int
	ReadWindow  time.Duration
	ReplyWindow time.Duration
}

// report collects what the checks observed.
type report struct {
	GGACount    int
	Sentences   int
	BytesRead   uint64
	LastGGA     *nmea.GGA
	Quality     gps.FixQuality
	PairReply   string
	CommandErr  error
	BinaryErr   error
	DiffAge     float64
	DiffStation string
}

func main() {
	var opts options
	flag.StringVar(&opts.Device, "device", "", "Serial device (empty = auto-detect)")
	flag.IntVar(&opts.Baud, "baud", 115200, "Serial baud rate")
	flag.DurationVar(&opts.ReadWindow, "read", 5*time.Second, "How long to read NMEA")
	flag.DurationVar(&opts.ReplyWindow, "reply", 3*time.Second, "How long to wait for a command reply")
	flag.Parse()

	log.SetLevel(log.WarnLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Stdout, opts))
}

func run(ctx context.Context, w io.Writer, opts options) int {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "  LC29H Diagnostyka")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[1] Szukam portu GPS...")
	device := opts.Device
	if device == "" {
		p, ok := gps.FindDevice(ctx, opts.Baud)
		if !ok {
			fmt.Fprintln(w, "  BLAD: Nie znaleziono modulu GPS!")
			fmt.Fprintln(w, "  Sprawdz: jumper B, UART wlaczony, antena podlaczona")
			return 1
		}
		device = p
	}
	fmt.Fprintf(w, "  OK: %s\n", device)
	if real, err := filepath.EvalSymlinks(device); err == nil && real != device {
		fmt.Fprintf(w, "  (realpath: %s)\n", real)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[2] Otwieram port...")
	port, err := gps.OpenPort(device, opts.Baud)
	if err != nil {
		fmt.Fprintf(w, "  BLAD: %v\n", err)
		return 1
	}
	defer port.Close()
	fmt.Fprintf(w, "  OK: otwarty (%d baud)\n", opts.Baud)
	fmt.Fprintln(w)

	rep := diagnose(ctx, w, port, opts)
	printSummary(w, device, rep)
	if rep.CommandErr != nil {
		return 1
	}
	return 0
}

// diagnose runs the checks that need an open port (steps 3 to 6).
func diagnose(ctx context.Context, w io.Writer, port io.ReadWriter, opts options) report {
	var rep report

	fmt.Fprintf(w, "[3] Odczyt NMEA (%s)...\n", opts.ReadWindow)
	rep.BytesRead += readSentences(ctx, port, opts.ReadWindow, func(s string) bool {
		rep.Sentences++
		m, err := nmea.Parse(s)
		if err != nil {
			return false
		}
		gga, ok := m.(nmea.GGA)
		if !ok {
			return false
		}
		rep.GGACount++
		rep.LastGGA = &gga
		if q, err := strconv.Atoi(gga.FixQuality); err == nil {
			rep.Quality = gps.FixQuality(q)
		}
		if rep.GGACount <= 3 {
			fmt.Fprintf(w, "  GGA: %s\n", truncate(s, 80))
		}
		return false
	})
	fmt.Fprintf(w, "  Odebrano %d zdan GGA (%d zdan, %s)\n", rep.GGACount, rep.Sentences, humanize.Bytes(rep.BytesRead))
	fmt.Fprintf(w, "  Fix quality: %d\n", int(rep.Quality))
	fmt.Fprintf(w, "  Typ: %s\n", rep.Quality)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[4] Test zapisu do portu (TX)...")
	cmd := gps.FormatCommand(gps.CmdQueryFirmware)
	if _, err := port.Write(cmd); err != nil {
		rep.CommandErr = err
		fmt.Fprintf(w, "  BLAD ZAPISU: %v\n", err)
		fmt.Fprintln(w, "  >>> To jest prawdopodobnie przyczyna braku RTK! <<<")
		fmt.Fprintln(w)
		return rep
	}
	fmt.Fprintf(w, "  Wyslano %d bajtow: %s\n", len(cmd), strings.TrimSpace(string(cmd)))
	rep.BytesRead += readSentences(ctx, port, opts.ReplyWindow, func(s string) bool {
		if strings.HasPrefix(s, "$PAIR") {
			rep.PairReply = s
			return true
		}
		return false
	})
	if rep.PairReply != "" {
		fmt.Fprintf(w, "  Odpowiedz: %s\n", truncate(rep.PairReply, 80))
		fmt.Fprintln(w, "  OK: Modul odpowiada na komendy - TX dziala!")
	} else {
		fmt.Fprintln(w, "  UWAGA: Brak odpowiedzi na komende PAIR")
		fmt.Fprintln(w, "  To moze oznaczac:")
		fmt.Fprintln(w, "    - TX (zapis) nie dziala -> brak RTK")
		fmt.Fprintln(w, "    - Modul nie obsluguje tej komendy (mniej prawdopodobne)")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[5] Test zapisu danych binarnych (symulacja RTCM)...")
	data := make([]byte, testBytes)
	for i := range data {
		data[i] = byte(i)
	}
	if n, err := port.Write(data); err != nil {
		rep.BinaryErr = err
		fmt.Fprintf(w, "  BLAD: %v\n", err)
	} else {
		fmt.Fprintf(w, "  Wyslano %d bajtow binarnych\n", n)
		fmt.Fprintln(w, "  OK: Zapis binarny dziala")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[6] Sprawdzam pola roznicowe w GGA...")
	if rep.LastGGA == nil {
		fmt.Fprintln(w, "  Brak zdania GGA do analizy")
		fmt.Fprintln(w)
		return rep
	}
	g := rep.LastGGA
	rep.DiffStation = g.DGPSId
	fmt.Fprintf(w, "  Fix quality: %s\n", g.FixQuality)
	fmt.Fprintf(w, "  Diff age: '%s'\n", g.DGPSAge)
	fmt.Fprintf(w, "  Diff station: '%s'\n", g.DGPSId)
	if age, err := strconv.ParseFloat(g.DGPSAge, 64); err == nil && age > 0 {
		rep.DiffAge = age
		fmt.Fprintln(w, "  -> Modul OTRZYMUJE korekcje roznicowe!")
	} else {
		fmt.Fprintln(w, "  -> Modul NIE otrzymuje korekcji (puste pole diff_age)")
	}
	fmt.Fprintln(w)
	return rep
}

func printSummary(w io.Writer, device string, rep report) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "  PODSUMOWANIE")
	fmt.Fprintln(w, rule)
	tx := "OK"
	if rep.CommandErr != nil || rep.BinaryErr != nil {
		tx = "BLAD"
	}
	nmeaState := "BRAK"
	if rep.GGACount > 0 {
		nmeaState = "OK"
	}
	fmt.Fprintf(w, "  Port: %s (TX %s)\n", device, tx)
	fmt.Fprintf(w, "  NMEA: %s\n", nmeaState)
	fmt.Fprintf(w, "  Fix: %s (quality=%d)\n", rep.Quality, int(rep.Quality))
	fmt.Fprintln(w)

	if rep.Quality <= gps.FixGPS {
		fmt.Fprintln(w, "  SUGESTIE:")
		fmt.Fprintln(w, "  1. Uruchom rtk-monitor z NTRIP, poczekaj 2-5 minut")
		fmt.Fprintln(w, "  2. Sprawdz czy antena GNSS ma otwarty widok nieba")
		fmt.Fprintln(w, "  3. Sprawdz login/haslo ASG-EUPOS")
		fmt.Fprintln(w, "  4. Jesli diff_age jest puste - problem z TX (zapis do modulu)")
		fmt.Fprintln(w, "     Sprawdz polaczenie fizyczne HAT z RPi")
	}
	fmt.Fprintln(w)
}

// readSentences feeds r through the extractor for at most window and calls fn
// for every sentence until fn returns true. It returns the bytes read.
func readSentences(ctx context.Context, r io.Reader, window time.Duration, fn func(string) bool) uint64 {
	deadline := time.Now().Add(window)
	var ext gps.Extractor
	var total uint64
	done := false
	buf := make([]byte, 1024)
	for !done && time.Now().Before(deadline) && ctx.Err() == nil {
		n, err := r.Read(buf)
		if n > 0 {
			total += uint64(n)
			ext.Feed(buf[:n], func(s string) {
				if !done && fn(s) {
					done = true
				}
			})
		}
		if err != nil && n == 0 {
			// Idle serial reads surface as (0, io.EOF).
			time.Sleep(20 * time.Millisecond)
		}
	}
	return total
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
