package ntrip

import "testing"

func TestBuildMountpoint(t *testing.T) {
	cases := []struct {
		station string
		port    int
		want    string
	}{
		{"", 8086, "RTK4G_MULTI_RTCM32"},
		{"AUTO", 8086, "RTK4G_MULTI_RTCM32"},
		{"auto", 8082, "NAWGEO_POJ_3_1"},
		{"AUTO", 8083, "NAWGEO_POJ_3_1"},
		{"AUTO", 2101, "RTK4G_MULTI_RTCM32"},
		{"krak", 8086, "KRAK_RTCM_3_2"},
		{"KRAK", 8082, "KRAK_RTCM_3_1"},
		{"KRAK", 8083, "KRAK_RTCM_3_1"},
		{"KRAK", 8084, "KRAK_RTCM_2_3"},
		{"KRAK", 8085, "KRAK_RTCM_2_3"},
		{"KRAK", 2101, "KRAK_RTCM_3_2"},
		{"KRAK_RTCM_3_1", 8086, "KRAK_RTCM_3_1"},
		{"krak_rtcm_3_1", 8086, "krak_rtcm_3_1"},
		{" WROC ", 8086, "WROC_RTCM_3_2"},
	}
	for _, tc := range cases {
		if got := BuildMountpoint(tc.station, tc.port); got != tc.want {
			t.Fatalf("BuildMountpoint(%q,%d)=%q want %q", tc.station, tc.port, got, tc.want)
		}
	}
}

func TestStations(t *testing.T) {
	list := Stations()
	if len(list) != 41 {
		t.Fatalf("stations=%d want 41", len(list))
	}
	if list[0].Code != AutoStation {
		t.Fatalf("first=%q want AUTO", list[0].Code)
	}
	for i := 2; i < len(list); i++ {
		if list[i-1].Code >= list[i].Code {
			t.Fatalf("not sorted at %d: %q %q", i, list[i-1].Code, list[i].Code)
		}
	}
	if !KnownStation("krak") || KnownStation("XXXX") {
		t.Fatalf("KnownStation mismatch")
	}
}
