package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

var startedAt = time.Now()

// AboutResponse is served by /api/about.
type AboutResponse struct {
	Service   string  `json:"service"`
	NowUTC    string  `json:"now_utc"`
	UptimeSec float64 `json:"uptime_s"`
	GoVersion string  `json:"go_version"`
	Version   string  `json:"version,omitempty"`
	Commit    string  `json:"commit,omitempty"`
	Dirty     bool    `json:"dirty,omitempty"`
	BuildTime string  `json:"build_time,omitempty"`
}

func aboutInfo(now time.Time) AboutResponse {
	resp := AboutResponse{
		Service:   serviceName,
		NowUTC:    now.UTC().Format(time.RFC3339),
		UptimeSec: now.Sub(startedAt).Round(time.Second).Seconds(),
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return resp
	}
	resp.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			resp.Commit = s.Value
		case "vcs.modified":
			resp.Dirty = s.Value == "true"
		case "vcs.time":
			resp.BuildTime = s.Value
		}
	}
	return resp
}

func aboutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, aboutInfo(time.Now()))
	})
}
