package ntrip

import (
	"sort"
	"strings"
)

// ASG-EUPOS caster defaults.
const (
	DefaultHost = "system.asgeupos.pl"
	DefaultPort = 8086

	// AutoStation selects the network solution instead of a single station.
	AutoStation = "AUTO"
)

// Station is one entry of the ASG-EUPOS reference station catalogue.
type Station struct {
	Code string `json:"code"`
	City string `json:"city"`
}

var stations = map[string]string{
	"AUTO": "Automatycznie najbliższa",
	"BIAL": "Białystok",
	"BYDG": "Bydgoszcz",
	"CZEL": "Częstochowa",
	"ELBL": "Elbląg",
	"GDNS": "Gdańsk",
	"GLOG": "Głogów",
	"GNIE": "Gniezno",
	"GORZ": "Gorzów Wlkp.",
	"JEDR": "Jędrzejów",
	"KALI": "Kalisz",
	"KATO": "Katowice",
	"KIEL": "Kielce",
	"KLOB": "Kłobuck",
	"KOSZ": "Koszalin",
	"KRAK": "Kraków",
	"KROS": "Krosno",
	"LEGN": "Legnica",
	"LELO": "Leżajsk",
	"LODZ": "Łódź",
	"LUBL": "Lublin",
	"OLSZ": "Olsztyn",
	"OPOL": "Opole",
	"OSTA": "Ostrołęka",
	"POZN": "Poznań",
	"PRZM": "Przemyśl",
	"RADC": "Radom",
	"REDZ": "Redzikowo",
	"RZEP": "Rzeszów",
	"SIED": "Siedlce",
	"SKIE": "Skierniewice",
	"SOCH": "Sochaczew",
	"SWIE": "Świnoujście",
	"SZCZ": "Szczecin",
	"TARN": "Tarnów",
	"TORU": "Toruń",
	"WALA": "Wałbrzych",
	"WARZ": "Warszawa",
	"WLOD": "Włodawa",
	"WROC": "Wrocław",
	"ZIEL": "Zielona Góra",
}

// Stations returns the catalogue with AUTO first and the rest sorted by code.
func Stations() []Station {
	out := make([]Station, 0, len(stations))
	for code, city := range stations {
		if code == AutoStation {
			continue
		}
		out = append(out, Station{Code: code, City: city})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return append([]Station{{Code: AutoStation, City: stations[AutoStation]}}, out...)
}

// KnownStation reports whether code is in the catalogue.
func KnownStation(code string) bool {
	_, ok := stations[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// BuildMountpoint derives the caster mountpoint from a station identifier and
// the caster port. Each port carries one RTCM version, so single stations get
// the matching suffix; identifiers that already carry one pass through.
func BuildMountpoint(station string, port int) string {
	s := strings.TrimSpace(station)
	if s == "" || strings.EqualFold(s, AutoStation) {
		switch port {
		case 8082, 8083:
			return "NAWGEO_POJ_3_1"
		default:
			return "RTK4G_MULTI_RTCM32"
		}
	}
	if strings.Contains(strings.ToUpper(s), "_RTCM_") {
		return s
	}
	suffix := "_RTCM_3_2"
	switch port {
	case 8082, 8083:
		suffix = "_RTCM_3_1"
	case 8084, 8085:
		suffix = "_RTCM_2_3"
	}
	return strings.ToUpper(s) + suffix
}
