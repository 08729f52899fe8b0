package web

import (
	"errors"
	"net/http"

	"github.com/MarcinM22/rtk-monitor/internal/survey"
)

type measureStartRequest struct {
	PointName string `json:"point_name"`
	Samples   int    `json:"samples"`
}

type measureResponse struct {
	Status      string                   `json:"status"`
	Measurement survey.MeasurementStatus `json:"measurement"`
}

func registerMeasure(mux *http.ServeMux, s Surveyor) {
	mux.HandleFunc("/api/measure/start", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		var req measureStartRequest
		if err := decodeBody(w, r, []string{"point_name", "samples"}, false, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Samples < 0 || req.Samples > 10000 {
			writeError(w, http.StatusBadRequest, "samples must be in 1..10000")
			return
		}
		st, err := s.Start(req.PointName, req.Samples)
		switch {
		case errors.Is(err, survey.ErrEmptyPointName):
			writeError(w, http.StatusBadRequest, "Podaj nazwe punktu")
		case errors.Is(err, survey.ErrNoProject):
			writeError(w, http.StatusConflict, "Najpierw wybierz projekt")
		case errors.Is(err, survey.ErrMeasurementRunning):
			writeError(w, http.StatusConflict, "Pomiar juz trwa")
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, measureResponse{Status: "ok", Measurement: st})
		}
	})

	mux.HandleFunc("/api/measure/cancel", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		writeJSON(w, http.StatusOK, measureResponse{Status: "ok", Measurement: s.Cancel()})
	})

	mux.HandleFunc("/api/measure/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, s.Status())
	})
}
