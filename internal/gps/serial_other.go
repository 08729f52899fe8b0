//go:build !linux

package gps

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

func openSerial(path string, baud int) (io.ReadWriteCloser, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
