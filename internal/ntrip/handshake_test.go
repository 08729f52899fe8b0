package ntrip

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestBuildRequest(t *testing.T) {
	got := string(buildRequest("KRAK_RTCM_3_2", "user", "pass", "$GNGGA,1*00"))
	want := "GET /KRAK_RTCM_3_2 HTTP/1.0\r\n" +
		"User-Agent: NTRIP RTKMonitor/1.0\r\n" +
		"Authorization: Basic dXNlcjpwYXNz\r\n" +
		"Ntrip-GGA: $GNGGA,1*00\r\n" +
		"\r\n"
	if got != want {
		t.Fatalf("request:\n%q\nwant:\n%q", got, want)
	}
	if strings.Contains(string(buildRequest("MP", "u", "p", "")), "Ntrip-GGA") {
		t.Fatalf("GGA header without a sentence")
	}
}

func TestParseResponse_ICY(t *testing.T) {
	raw := append([]byte("ICY 200 OK\r\n\r\n"), 0xD3, 0x00, 0x13)
	resp, err := parseResponse(raw, "MP")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.chunked {
		t.Fatalf("ICY should not be chunked")
	}
	if !bytes.Equal(resp.body, []byte{0xD3, 0x00, 0x13}) {
		t.Fatalf("body=%x", resp.body)
	}
}

func TestParseResponse_HTTPChunked(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Type: gnss/data\r\ntransfer-encoding: Chunked\r\n\r\n")
	resp, err := parseResponse(raw, "MP")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !resp.chunked || resp.statusLine != "HTTP/1.1 200 OK" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestParseResponse_Failures(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"sourcetable", "SOURCETABLE 200 OK\r\nServer: caster\r\n\r\nSTR;KRAK;\r\nENDSOURCETABLE\r\n", ErrMountpointNotFound},
		{"sourcetable in body", "HTTP/1.1 404 Not Found\r\n\r\nSOURCETABLE follows", ErrMountpointNotFound},
		{"unauthorized", "HTTP/1.1 401 Unauthorized\r\nWWW-Authenticate: Basic\r\n\r\n", ErrUnauthorized},
		{"incomplete", "ICY 200 OK\r\n", ErrIncompleteResponse},
	}
	for _, tc := range cases {
		if _, err := parseResponse([]byte(tc.raw), "KRAK"); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}

	_, err := parseResponse([]byte("HTTP/1.1 503 Service Unavailable\r\n\r\n"), "KRAK")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusLine != "HTTP/1.1 503 Service Unavailable" {
		t.Fatalf("err=%v want StatusError", err)
	}
}

func TestReadResponse(t *testing.T) {
	raw, err := readResponse(strings.NewReader("ICY 200 OK\r\n\r\nDATA"))
	if err != nil || string(raw) != "ICY 200 OK\r\n\r\nDATA" {
		t.Fatalf("raw=%q err=%v", raw, err)
	}

	if _, err := readResponse(strings.NewReader("ICY 200 OK\r\n")); !errors.Is(err, ErrIncompleteResponse) {
		t.Fatalf("err=%v want incomplete", err)
	}

	big := strings.Repeat("X", maxResponseBytes+4096)
	if _, err := readResponse(strings.NewReader(big)); !errors.Is(err, ErrIncompleteResponse) {
		t.Fatalf("err=%v want incomplete on overflow", err)
	}
}
