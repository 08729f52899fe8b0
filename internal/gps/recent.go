package gps

import "sync"

// recentLines keeps the last N sentences for the status page and diagnostics.
type recentLines struct {
	mu       sync.Mutex
	maxLines int
	lines    []string
}

func newRecentLines(maxLines int) *recentLines {
	if maxLines < 0 {
		maxLines = 0
	}
	return &recentLines{maxLines: maxLines, lines: make([]string, 0, maxLines)}
}

func (r *recentLines) add(line string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxLines == 0 {
		return
	}
	if len(r.lines) < r.maxLines {
		r.lines = append(r.lines, line)
		return
	}
	copy(r.lines, r.lines[1:])
	r.lines[len(r.lines)-1] = line
}

func (r *recentLines) snapshot() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.lines))
	return append(out, r.lines...)
}
