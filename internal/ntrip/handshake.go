package ntrip

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	userAgent        = "NTRIP RTKMonitor/1.0"
	maxResponseBytes = 16 * 1024
	sourcetablePeek  = 200
)

var (
	// ErrUnauthorized is terminal: the client stops retrying until restarted.
	ErrUnauthorized = errors.New("ntrip: bad username or password")
	// ErrMountpointNotFound is returned when the caster answers with its
	// sourcetable instead of a stream.
	ErrMountpointNotFound = errors.New("ntrip: mountpoint not found")
	// ErrMissingCredentials is returned by Start without username or password.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrIncompleteResponse means the caster closed or overflowed before the
	// header terminator.
	ErrIncompleteResponse = errors.New("ntrip: incomplete response")
)

// StatusError is a negotiation failure other than auth or sourcetable.
type StatusError struct {
	StatusLine string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ntrip: caster refused: %s", e.StatusLine)
}

type response struct {
	statusLine string
	headers    string
	chunked    bool
	body       []byte
}

// buildRequest returns an NTRIP 1.0 request. HTTP/1.0 keeps most casters
// from switching to chunked transfer.
func buildRequest(mountpoint, username, password, gga string) []byte {
	auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	var b strings.Builder
	fmt.Fprintf(&b, "GET /%s HTTP/1.0\r\n", mountpoint)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	fmt.Fprintf(&b, "Authorization: Basic %s\r\n", auth)
	if gga != "" {
		fmt.Fprintf(&b, "Ntrip-GGA: %s\r\n", gga)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// readResponse reads until the blank line ending the headers, bounded to
// maxResponseBytes. Bytes after the terminator are returned as part of the
// raw buffer and split off by parseResponse.
func readResponse(r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for !bytes.Contains(buf, []byte("\r\n\r\n")) {
		if len(buf) > maxResponseBytes {
			return buf, fmt.Errorf("%w: no header terminator in %d bytes", ErrIncompleteResponse, len(buf))
		}
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			if bytes.Contains(buf, []byte("\r\n\r\n")) {
				break
			}
			if errors.Is(err, io.EOF) {
				return buf, ErrIncompleteResponse
			}
			return buf, err
		}
	}
	return buf, nil
}

// parseResponse splits raw into status, headers and body and classifies the
// status. The returned response is valid even when err is non-nil.
func parseResponse(raw []byte, mountpoint string) (response, error) {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	if end < 0 {
		return response{}, ErrIncompleteResponse
	}
	resp := response{
		headers: string(raw[:end]),
		body:    raw[end+4:],
	}
	resp.statusLine, _, _ = strings.Cut(resp.headers, "\r\n")
	resp.statusLine = strings.TrimSpace(resp.statusLine)

	// "SOURCETABLE 200 OK" carries a 200 code but no stream.
	if !statusOK(resp.statusLine) || strings.HasPrefix(resp.statusLine, "SOURCETABLE") {
		peek := resp.body
		if len(peek) > sourcetablePeek {
			peek = peek[:sourcetablePeek]
		}
		switch {
		case strings.Contains(resp.headers, "SOURCETABLE") || bytes.Contains(peek, []byte("SOURCETABLE")):
			return resp, fmt.Errorf("%w: %s", ErrMountpointNotFound, mountpoint)
		case statusCode(resp.statusLine) == 401:
			return resp, ErrUnauthorized
		default:
			return resp, &StatusError{StatusLine: resp.statusLine}
		}
	}

	for _, line := range strings.Split(resp.headers, "\r\n")[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Transfer-Encoding") &&
			strings.Contains(strings.ToLower(value), "chunked") {
			resp.chunked = true
		}
	}
	return resp, nil
}

func statusOK(line string) bool {
	return strings.HasPrefix(line, "ICY 200 OK") || statusCode(line) == 200
}

// statusCode returns the numeric code from "HTTP/1.x NNN ..." or
// "SOURCETABLE NNN ...", or 0.
func statusCode(line string) int {
	f := strings.Fields(line)
	if len(f) < 2 {
		return 0
	}
	n, err := strconv.Atoi(f[1])
	if err != nil {
		return 0
	}
	return n
}
