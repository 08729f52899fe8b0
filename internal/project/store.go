package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNoProject   = errors.New("project: no project selected")
	ErrEmptyName   = errors.New("project: name is required")
	ErrBadFileName = errors.New("project: invalid file name")
)

// Info describes the selected project.
type Info struct {
	Name   string `json:"name"`
	Dir    string `json:"dir"`
	Points int    `json:"points"`
}

// Summary is one entry of List.
type Summary struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type project struct {
	name       string
	safeName   string
	dir        string
	csvPath    string
	reportPath string
}

// Store keeps projects as directories under a base directory, each with a
// coordinates CSV and a text report. One project is selected at a time.
type Store struct {
	baseDir string
	info    ReportInfo
	now     func() time.Time

	mu      sync.Mutex
	current *project
	count   int
}

func NewStore(baseDir string, info ReportInfo) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("project: base dir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("project: create %s: %w", baseDir, err)
	}
	log.Infof("projects dir=%s", baseDir)
	return &Store{baseDir: baseDir, info: info, now: time.Now}, nil
}

// BaseDir returns the directory holding all projects.
func (s *Store) BaseDir() string { return s.baseDir }

// Create opens the named project, creating its directory and files when they
// do not exist, and selects it. Existing points are kept.
func (s *Store) Create(name string) (Info, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Info{}, ErrEmptyName
	}
	now := s.now()
	safe := SafeName(name, now)
	p := &project{
		name:       name,
		safeName:   safe,
		dir:        filepath.Join(s.baseDir, safe),
		csvPath:    filepath.Join(s.baseDir, safe, pointsFile),
		reportPath: filepath.Join(s.baseDir, safe, reportFile),
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("project: create dir: %w", err)
	}
	if err := ensureCSV(p.csvPath); err != nil {
		return Info{}, fmt.Errorf("project: create csv: %w", err)
	}
	if err := ensureReport(p.reportPath, name, s.info, now); err != nil {
		return Info{}, fmt.Errorf("project: create report: %w", err)
	}
	count := countPoints(p.csvPath)

	s.mu.Lock()
	s.current = p
	s.count = count
	s.mu.Unlock()

	log.Infof("project opened name=%q dir=%s points=%d", name, safe, count)
	return Info{Name: name, Dir: safe, Points: count}, nil
}

// Current returns the selected project.
func (s *Store) Current() (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Info{}, false
	}
	return Info{Name: s.current.name, Dir: s.current.safeName, Points: s.count}, true
}

// List returns every project directory with its point count, sorted by name.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("project: list: %w", err)
	}
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, Summary{
			Name:   e.Name(),
			Points: countPoints(filepath.Join(s.baseDir, e.Name(), pointsFile)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Append assigns the next point ID to r and writes it to the CSV and the
// report. The ID is only consumed when the CSV write succeeds.
func (s *Store) Append(r Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return r, ErrNoProject
	}
	r.ID = s.count + 1
	if err := appendCSV(s.current.csvPath, r); err != nil {
		return r, fmt.Errorf("project: write csv: %w", err)
	}
	s.count++
	if err := appendReport(s.current.reportPath, r); err != nil {
		// The CSV is authoritative; a missing report block is logged only.
		log.Errorf("project report write failed point=%d: %v", r.ID, err)
	}
	log.Infof("point saved id=%d name=%q project=%s", r.ID, r.Name, s.current.safeName)
	return r, nil
}

// Points returns the rows of the selected project.
func (s *Store) Points() ([]Point, error) {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if p == nil {
		return nil, ErrNoProject
	}
	pts, err := readPoints(p.csvPath)
	if err != nil {
		return nil, fmt.Errorf("project: read points: %w", err)
	}
	return pts, nil
}

// StakeoutFiles lists files usable as stakeout targets: every project's
// coordinates file (named after the project) and any *.csv placed directly
// in the base directory.
func (s *Store) StakeoutFiles() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("project: list stakeout files: %w", err)
	}
	var out []string
	for _, e := range entries {
		switch {
		case e.IsDir():
			if _, err := os.Stat(filepath.Join(s.baseDir, e.Name(), pointsFile)); err == nil {
				out = append(out, e.Name())
			}
		case strings.EqualFold(filepath.Ext(e.Name()), ".csv"):
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// LoadStakeoutFile reads the points of a name returned by StakeoutFiles.
func (s *Store) LoadStakeoutFile(name string) ([]Point, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, ErrBadFileName
	}
	path := filepath.Join(s.baseDir, name)
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("project: stakeout file: %w", err)
	}
	if st.IsDir() {
		path = filepath.Join(path, pointsFile)
	}
	pts, err := readPoints(path)
	if err != nil {
		return nil, fmt.Errorf("project: stakeout file: %w", err)
	}
	return pts, nil
}

// currentProject returns a copy of the selected project.
func (s *Store) currentProject() (*project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoProject
	}
	cp := *s.current
	return &cp, nil
}

// ReadDir reads the points of the project stored in dir, without selecting
// it.
func ReadDir(dir string) ([]Point, error) {
	pts, err := readPoints(filepath.Join(dir, pointsFile))
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", dir, err)
	}
	return pts, nil
}

// ReportPath is the report file of the project stored in dir.
func ReportPath(dir string) string {
	return filepath.Join(dir, reportFile)
}
