package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/MarcinM22/rtk-monitor/internal/config"
	"github.com/MarcinM22/rtk-monitor/internal/ntrip"
)

const maskedPassword = "***"

// NTRIPSettings is the NTRIP section as shown to the UI.
type NTRIPSettings struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Station    string `json:"station"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Enabled    bool   `json:"enabled"`
	Mountpoint string `json:"mountpoint"`
	SendGGA    bool   `json:"send_gga"`
}

type ConfigResponse struct {
	NTRIP    NTRIPSettings   `json:"ntrip"`
	GPSPort  string          `json:"gps_port"`
	Stations []ntrip.Station `json:"stations"`
}

// NTRIPUpdate is the POST /api/ntrip schema. Absent keys keep their value;
// a password of "***" keeps the stored one.
type NTRIPUpdate struct {
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Station  *string `json:"station"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	Enabled  *bool   `json:"enabled"`
	SendGGA  *bool   `json:"send_gga"`
}

var ntripPostKeys = []string{"host", "port", "station", "username", "password", "enabled", "send_gga"}

// decodeStrict decodes one JSON object into out, rejecting unknown and
// duplicate keys and trailing data. Null values are rejected unless
// allowNull is set.
func decodeStrict(body []byte, keys []string, allowNull bool, out any) error {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	seen := make(map[string]struct{}, len(keys))

	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("invalid json: expected object")
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return fmt.Errorf("invalid json: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return errors.New("invalid json: expected string key")
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid json: unknown key %q", key)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("invalid json: duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("invalid json: %w", err)
		}
		if !allowNull && strings.TrimSpace(string(raw)) == "null" {
			return fmt.Errorf("invalid json: %q cannot be null", key)
		}
	}
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if delim, ok := end.(json.Delim); !ok || delim != '}' {
		return errors.New("invalid json: expected end of object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid json: trailing data")
	}

	dec2 := json.NewDecoder(bytes.NewReader(body))
	dec2.DisallowUnknownFields()
	if err := dec2.Decode(out); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func configToResponse(cfg config.Config) ConfigResponse {
	n := cfg.NTRIP
	pw := ""
	if n.Password != "" {
		pw = maskedPassword
	}
	return ConfigResponse{
		NTRIP: NTRIPSettings{
			Host:       n.Host,
			Port:       n.Port,
			Station:    n.Station,
			Username:   n.Username,
			Password:   pw,
			Enabled:    n.Enabled,
			Mountpoint: n.Mountpoint,
			SendGGA:    n.GGAEnabled(),
		},
		GPSPort:  cfg.Serial.Device,
		Stations: ntrip.Stations(),
	}
}

// applyNTRIPUpdate merges u into cfg. A station or port change rebuilds the
// mountpoint.
func applyNTRIPUpdate(cfg *config.Config, u NTRIPUpdate) error {
	n := &cfg.NTRIP
	rebuild := false
	if u.Host != nil {
		h := strings.TrimSpace(*u.Host)
		if h == "" {
			return errors.New("host must be non-empty")
		}
		n.Host = h
	}
	if u.Port != nil {
		n.Port = *u.Port
		rebuild = true
	}
	if u.Station != nil {
		n.Station = strings.TrimSpace(*u.Station)
		rebuild = true
	}
	if u.Username != nil {
		n.Username = strings.TrimSpace(*u.Username)
	}
	if u.Password != nil && *u.Password != maskedPassword {
		n.Password = *u.Password
	}
	if u.Enabled != nil {
		n.Enabled = *u.Enabled
	}
	if u.SendGGA != nil {
		v := *u.SendGGA
		n.SendGGA = &v
	}
	if rebuild {
		n.Mountpoint = ntrip.BuildMountpoint(n.Station, n.Port)
	}
	return nil
}

// SettingsStore reads and writes the YAML config behind the settings API.
type SettingsStore struct {
	ConfigPath string
	// Apply, when set, is called after validation and before saving. If it
	// fails the config is not saved. Apply makes the config effective
	// immediately.
	Apply func(cfg config.Config) error
}

func (s SettingsStore) available(w http.ResponseWriter) bool {
	if strings.TrimSpace(s.ConfigPath) == "" {
		http.Error(w, "settings not available (no config path)", http.StatusNotImplemented)
		return false
	}
	return true
}

// commit applies and saves next. On failure the previous config is applied
// again so the runtime matches the file.
func (s SettingsStore) commit(prev, next config.Config) (int, error) {
	if s.Apply != nil {
		if err := s.Apply(next); err != nil {
			_ = s.Apply(prev)
			return http.StatusBadRequest, fmt.Errorf("apply failed: %w", err)
		}
	}
	if err := config.Save(s.ConfigPath, next); err != nil {
		if s.Apply != nil {
			_ = s.Apply(prev)
		}
		return http.StatusInternalServerError, fmt.Errorf("save failed: %w", err)
	}
	return http.StatusOK, nil
}

func (s SettingsStore) configHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) || !s.available(w) {
			return
		}
		cfg, err := config.Load(s.ConfigPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, configToResponse(cfg))
	})
}

type ntripResult struct {
	Status     string `json:"status"`
	Mountpoint string `json:"mountpoint"`
	Message    string `json:"message"`
}

func (s SettingsStore) ntripHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) || !s.available(w) {
			return
		}
		if ct := strings.TrimSpace(r.Header.Get("Content-Type")); !strings.HasPrefix(ct, "application/json") {
			http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read failed: %v", err))
			return
		}
		var u NTRIPUpdate
		if err := decodeStrict(body, ntripPostKeys, false, &u); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		prev, err := config.Load(s.ConfigPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("load failed: %v", err))
			return
		}
		next := prev
		if err := applyNTRIPUpdate(&next, u); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid settings: %v", err))
			return
		}
		if err := config.DefaultAndValidate(&next); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid config: %v", err))
			return
		}
		if code, err := s.commit(prev, next); err != nil {
			writeError(w, code, err.Error())
			return
		}

		msg := "Zapisano"
		if next.NTRIP.Enabled {
			msg += " i NTRIP uruchomiony"
		}
		log.Infof("ntrip settings saved host=%s port=%d mountpoint=%s enabled=%v",
			next.NTRIP.Host, next.NTRIP.Port, next.NTRIP.Mountpoint, next.NTRIP.Enabled)
		writeJSON(w, http.StatusOK, ntripResult{Status: "ok", Mountpoint: next.NTRIP.Mountpoint, Message: msg})
	})
}

func (s SettingsStore) stopHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) || !s.available(w) {
			return
		}
		prev, err := config.Load(s.ConfigPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("load failed: %v", err))
			return
		}
		next := prev
		next.NTRIP.Enabled = false
		if code, err := s.commit(prev, next); err != nil {
			writeError(w, code, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, apiResult{Status: "ok", Message: "NTRIP zatrzymany"})
	})
}
