package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcinM22/rtk-monitor/internal/project"
	"github.com/MarcinM22/rtk-monitor/internal/survey"
)

// optFloat accepts a JSON number, a numeric string (comma or dot decimal)
// or an empty string, which leaves it unset.
type optFloat struct {
	v  float64
	ok bool
}

func (f *optFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = optFloat{}
		return nil
	}
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" || s == "null" {
		*f = optFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = optFloat{v: v, ok: true}
	return nil
}

func (f optFloat) ptr() *float64 {
	if !f.ok {
		return nil
	}
	v := f.v
	return &v
}

type stakeoutStartRequest struct {
	Name string   `json:"name"`
	X    optFloat `json:"x"`
	Y    optFloat `json:"y"`
	H    optFloat `json:"h"`
	Lat  optFloat `json:"lat"`
	Lon  optFloat `json:"lon"`
}

type stakeoutFilesResponse struct {
	Files []string `json:"files"`
}

type stakeoutFileResponse struct {
	Filename string          `json:"filename"`
	Points   []project.Point `json:"points"`
}

func registerStakeout(mux *http.ServeMux, so Stakeouter, p Projects) {
	if p != nil {
		mux.HandleFunc("/api/stakeout/files", func(w http.ResponseWriter, r *http.Request) {
			if !allowMethod(w, r, http.MethodGet) {
				return
			}
			files, err := p.StakeoutFiles()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if files == nil {
				files = []string{}
			}
			writeJSON(w, http.StatusOK, stakeoutFilesResponse{Files: files})
		})

		mux.HandleFunc("/api/stakeout/file/", func(w http.ResponseWriter, r *http.Request) {
			if !allowMethod(w, r, http.MethodGet) {
				return
			}
			name := strings.TrimPrefix(r.URL.Path, "/api/stakeout/file/")
			pts, err := p.LoadStakeoutFile(name)
			switch {
			case errors.Is(err, project.ErrBadFileName):
				writeError(w, http.StatusBadRequest, err.Error())
				return
			case errors.Is(err, fs.ErrNotExist):
				writeError(w, http.StatusNotFound, fmt.Sprintf("file %q not found", name))
				return
			case err != nil:
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if pts == nil {
				pts = []project.Point{}
			}
			writeJSON(w, http.StatusOK, stakeoutFileResponse{Filename: name, Points: pts})
		})
	}

	mux.HandleFunc("/api/stakeout/start", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		var req stakeoutStartRequest
		if err := decodeBody(w, r, []string{"name", "x", "y", "h", "lat", "lon"}, true, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Nieprawidlowe dane: "+err.Error())
			return
		}
		if !req.X.ok || !req.Y.ok {
			writeError(w, http.StatusBadRequest, "Nieprawidlowe dane: x and y are required")
			return
		}
		t := survey.Target{
			Name: strings.TrimSpace(req.Name),
			X:    req.X.v,
			Y:    req.Y.v,
			H:    req.H.ptr(),
			Lat:  req.Lat.ptr(),
			Lon:  req.Lon.ptr(),
		}
		if err := so.Set(t); err != nil {
			writeError(w, http.StatusBadRequest, "Nieprawidlowe dane: "+err.Error())
			return
		}
		name := t.Name
		if name == "" {
			name = "?"
		}
		writeJSON(w, http.StatusOK, apiResult{Status: "ok", Message: "Wytyczanie: " + name})
	})

	mux.HandleFunc("/api/stakeout/stop", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		so.Clear()
		writeJSON(w, http.StatusOK, apiResult{Status: "ok"})
	})
}
