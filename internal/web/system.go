package web

// SystemSnapshot helps the surveyor find the UI and see whether the card
// holding the projects is filling up.
type SystemSnapshot struct {
	Disk       *DiskSnapshot `json:"disk,omitempty"`
	LocalAddrs []string      `json:"local_addrs,omitempty"`
}

type DiskSnapshot struct {
	Path       string `json:"path"`
	TotalBytes uint64 `json:"total_bytes"`
	AvailBytes uint64 `json:"avail_bytes"`
	Avail      string `json:"avail,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}
