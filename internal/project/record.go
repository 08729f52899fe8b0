package project

import "time"

// Record is one finished survey point as written to the project files.
// Pointer fields are nil when the value is unknown.
type Record struct {
	ID        int    `json:"point_id"`
	Name      string `json:"point_name"`
	SessionID string `json:"session_id,omitempty"`

	X       *float64 `json:"x_pl2000"`
	Y       *float64 `json:"y_pl2000"`
	HNormal *float64 `json:"h_normal"`

	Lat  float64  `json:"lat_wgs84"`
	Lon  float64  `json:"lon_wgs84"`
	HEll *float64 `json:"h_ellipsoidal"`

	StdLatM        float64  `json:"std_lat_m"`
	StdLonM        float64  `json:"std_lon_m"`
	StdHorizontalM float64  `json:"std_horizontal_m"`
	StdAltM        *float64 `json:"std_alt"`

	Samples  int      `json:"samples"`
	Rejected int      `json:"rejected"`
	AvgHDOP  *float64 `json:"avg_hdop"`
	AvgPDOP  *float64 `json:"avg_pdop"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationS  float64   `json:"duration_s"`

	HeightMethod string `json:"height_method"`
}

// Point is one row of a coordinates file.
type Point struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	H    *float64 `json:"h"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	HEll *float64 `json:"h_ell"`
}
