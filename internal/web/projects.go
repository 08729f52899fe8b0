package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MarcinM22/rtk-monitor/internal/project"
)

type projectsResponse struct {
	Projects []project.Summary `json:"projects"`
	Current  *project.Info     `json:"current"`
}

type createProjectRequest struct {
	Name string `json:"name"`
}

type createProjectResponse struct {
	Status  string       `json:"status"`
	Project project.Info `json:"project"`
}

type pointsResponse struct {
	Points []project.Point `json:"points"`
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func registerProjects(mux *http.ServeMux, p Projects) {
	mux.HandleFunc("/api/projects", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		list, err := p.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp := projectsResponse{Projects: list}
		if resp.Projects == nil {
			resp.Projects = []project.Summary{}
		}
		if info, ok := p.Current(); ok {
			resp.Current = &info
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/api/project/create", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		var req createProjectRequest
		if err := decodeBody(w, r, []string{"name"}, false, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "Podaj nazwe projektu")
			return
		}
		info, err := p.Create(req.Name)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, project.ErrEmptyName) {
				code = http.StatusBadRequest
			}
			writeError(w, code, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, createProjectResponse{Status: "ok", Project: info})
	})

	mux.HandleFunc("/api/points", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		pts, err := p.Points()
		if err != nil && !errors.Is(err, project.ErrNoProject) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if pts == nil {
			pts = []project.Point{}
		}
		writeJSON(w, http.StatusOK, pointsResponse{Points: pts})
	})

	mux.HandleFunc("/api/project/export.xlsx", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		info, ok := p.Current()
		if !ok {
			writeError(w, http.StatusConflict, "Nie wybrano projektu")
			return
		}
		// Render fully before writing so a failure can still be reported.
		var buf bytes.Buffer
		if err := p.ExportXLSX(&buf); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Dir+".xlsx"))
		w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
		_, _ = io.Copy(w, &buf)
	})
}

// decodeBody reads a small strict JSON object from a POST.
func decodeBody(w http.ResponseWriter, r *http.Request, keys []string, allowNull bool, out any) error {
	if ct := strings.TrimSpace(r.Header.Get("Content-Type")); !strings.HasPrefix(ct, "application/json") {
		return errors.New("content-type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	return decodeStrict(body, keys, allowNull, out)
}
