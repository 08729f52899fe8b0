package web

import (
	"context"
	"embed"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"path"
	"time"

	"github.com/MarcinM22/rtk-monitor/internal/gps"
	"github.com/MarcinM22/rtk-monitor/internal/ntrip"
	"github.com/MarcinM22/rtk-monitor/internal/project"
	"github.com/MarcinM22/rtk-monitor/internal/survey"
)

//go:embed assets/*
var embeddedAssets embed.FS

// GPSSource is the receiver as seen by the UI.
type GPSSource interface {
	Snapshot() gps.PositionFix
	Status() gps.Status
}

type CorrectionSource interface {
	Stats() ntrip.Stats
}

type Projects interface {
	Current() (project.Info, bool)
	List() ([]project.Summary, error)
	Create(name string) (project.Info, error)
	Points() ([]project.Point, error)
	ExportXLSX(w io.Writer) error
	StakeoutFiles() ([]string, error)
	LoadStakeoutFile(name string) ([]project.Point, error)
	BaseDir() string
}

type Surveyor interface {
	Start(pointName string, samples int) (survey.MeasurementStatus, error)
	Cancel() survey.MeasurementStatus
	Status() survey.MeasurementStatus
}

type Stakeouter interface {
	Set(t survey.Target) error
	Clear()
	Current(fix gps.PositionFix) survey.StakeoutResult
}

// Deps are the components served by Handler. Nil components disable their
// endpoints, except GPS which is always required.
type Deps struct {
	GPS      GPSSource
	NTRIP    CorrectionSource
	Projects Projects
	Survey   Surveyor
	Stakeout Stakeouter

	Settings    SettingsStore
	Logs        *LogBuffer
	Broadcaster *StatusBroadcaster
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func Handler(status *Status, d Deps) http.Handler {
	mux := http.NewServeMux()

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = nil
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC()))
	})

	mux.Handle("/api/about", aboutHandler())
	mux.Handle("/api/config", d.Settings.configHandler())
	mux.Handle("/api/ntrip", d.Settings.ntripHandler())
	mux.Handle("/api/ntrip/stop", d.Settings.stopHandler())

	if d.Projects != nil {
		registerProjects(mux, d.Projects)
	}
	if d.Survey != nil {
		registerMeasure(mux, d.Survey)
	}
	if d.Stakeout != nil {
		registerStakeout(mux, d.Stakeout, d.Projects)
	}
	if d.Broadcaster != nil {
		mux.Handle("/api/ws", statusSocket(d.Broadcaster))
	}
	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}

	if assetsFS != nil {
		fileServer := http.FileServer(http.FS(assetsFS))
		mux.Handle("/assets/", http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			fileServer.ServeHTTP(w, r)
		})))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			dir := path.Dir(r.URL.Path)
			if dir == "/api" || dir == "/assets" || r.URL.Path == "/index.html" {
				http.NotFound(w, r)
				return
			}
		}
		var page []byte
		if assetsFS != nil {
			page, _ = fs.ReadFile(assetsFS, "index.html")
		}
		if page == nil {
			page = []byte("<!doctype html><html><head><meta charset=\"utf-8\"><title>RTK Monitor</title></head>" +
				"<body><h1>RTK Monitor</h1><p>UI unavailable. Use <a href=\"/api/status\">/api/status</a>.</p></body></html>")
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})

	return mux
}

// Serve runs the HTTP server until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Exports of large projects can take a while.
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// apiResult is the envelope the UI expects from action endpoints.
type apiResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiResult{Status: "error", Message: msg})
}
