package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/MarcinM22/rtk-monitor/internal/ntrip"
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	NTRIP   NTRIPConfig   `yaml:"ntrip"`
	Survey  SurveyConfig  `yaml:"survey"`
	Geodesy GeodesyConfig `yaml:"geodesy"`
	Web     WebConfig     `yaml:"web"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Log     LogConfig     `yaml:"log"`
}

type SerialConfig struct {
	// Device empty means auto-detect.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// StartupCommands absent sends the receiver defaults; an explicit [] in
	// the file sends nothing.
	StartupCommands []string `yaml:"startup_commands,omitempty"`
}

type NTRIPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Station    string `yaml:"station"`
	Mountpoint string `yaml:"mountpoint"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	// SendGGA defaults to true when absent.
	SendGGA         *bool         `yaml:"send_gga"`
	GGAInterval     time.Duration `yaml:"gga_interval"`
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
}

// GGAEnabled reports the effective send_gga value.
func (c NTRIPConfig) GGAEnabled() bool {
	return c.SendGGA == nil || *c.SendGGA
}

type SurveyConfig struct {
	ProjectsDir     string        `yaml:"projects_dir"`
	RequiredSamples int           `yaml:"required_samples"`
	MinFixQuality   int           `yaml:"min_fix_quality"`
	SampleInterval  time.Duration `yaml:"sample_interval"`
}

type GeodesyConfig struct {
	// Zone is the PL-2000 zone (5..8).
	Zone int `yaml:"zone"`
	// GeoidGrid is an optional undulation grid file; empty uses the
	// approximate model.
	GeoidGrid string `yaml:"geoid_grid"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type MQTTConfig struct {
	Enable      bool          `yaml:"enable"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Interval    time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	BufferLines int    `yaml:"buffer_lines"`
}

// Load reads path and applies defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warnf("config %s not found, using defaults", path)
	case err != nil:
		return Config{}, err
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills zero values with defaults and rejects values no
// component can run with. Errors name the YAML key.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Serial.Device = strings.TrimSpace(cfg.Serial.Device)
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must be > 0")
	}
	for i, c := range cfg.Serial.StartupCommands {
		c = strings.TrimSpace(c)
		if c == "" {
			return fmt.Errorf("serial.startup_commands[%d] must be non-empty", i)
		}
		cfg.Serial.StartupCommands[i] = c
	}

	n := &cfg.NTRIP
	n.Host = strings.TrimSpace(n.Host)
	if n.Host == "" {
		n.Host = ntrip.DefaultHost
	}
	if n.Port == 0 {
		n.Port = ntrip.DefaultPort
	}
	if n.Port < 1 || n.Port > 65535 {
		return fmt.Errorf("ntrip.port must be in 1..65535")
	}
	n.Station = strings.TrimSpace(n.Station)
	if n.Station == "" {
		n.Station = ntrip.AutoStation
	}
	n.Mountpoint = strings.TrimSpace(n.Mountpoint)
	if n.Mountpoint == "" {
		n.Mountpoint = ntrip.BuildMountpoint(n.Station, n.Port)
	}
	n.Username = strings.TrimSpace(n.Username)
	if n.GGAInterval <= 0 {
		n.GGAInterval = 10 * time.Second
	}
	if n.ReconnectDelay <= 0 {
		n.ReconnectDelay = 5 * time.Second
	}
	if n.ConnectTimeout <= 0 {
		n.ConnectTimeout = 15 * time.Second
	}
	if n.ResponseTimeout <= 0 {
		n.ResponseTimeout = 10 * time.Second
	}
	if n.ReadTimeout <= 0 {
		n.ReadTimeout = 30 * time.Second
	}

	s := &cfg.Survey
	if strings.TrimSpace(s.ProjectsDir) == "" {
		s.ProjectsDir = "./projekty"
	}
	if s.RequiredSamples == 0 {
		s.RequiredSamples = 10
	}
	if s.RequiredSamples < 1 || s.RequiredSamples > 10000 {
		return fmt.Errorf("survey.required_samples must be in 1..10000")
	}
	if s.MinFixQuality == 0 {
		s.MinFixQuality = 4
	}
	if s.MinFixQuality < 1 || s.MinFixQuality > 6 {
		return fmt.Errorf("survey.min_fix_quality must be in 1..6")
	}
	if s.SampleInterval <= 0 {
		s.SampleInterval = time.Second
	}

	if cfg.Geodesy.Zone == 0 {
		cfg.Geodesy.Zone = 6
	}
	if cfg.Geodesy.Zone < 5 || cfg.Geodesy.Zone > 8 {
		return fmt.Errorf("geodesy.zone must be in 5..8")
	}
	cfg.Geodesy.GeoidGrid = strings.TrimSpace(cfg.Geodesy.GeoidGrid)

	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":5000"
	}

	m := &cfg.MQTT
	if m.Enable && strings.TrimSpace(m.Broker) == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	if m.ClientID == "" {
		m.ClientID = "rtk-monitor"
	}
	if m.TopicPrefix == "" {
		m.TopicPrefix = "rtk-monitor"
	}
	if m.Interval <= 0 {
		m.Interval = time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level %q is not a valid level", cfg.Log.Level)
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}
	return nil
}

// Save validates cfg and writes it to path atomically.
func Save(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is empty")
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	// The temp file lives in the same directory so the rename is atomic.
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	// The file holds the caster password.
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
