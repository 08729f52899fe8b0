package gps

import (
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// LC29H(DA) configuration commands sent once the read loop is running.
const (
	// CmdRoverMode selects rover operation (0=rover, 1=base survey-in, 2=base fixed).
	CmdRoverMode = "PAIR432,0"
	// CmdEnableCorrectionInput enables RTCM input on UART1.
	CmdEnableCorrectionInput = "PAIR513,1,5"
	// CmdQueryFirmware asks for the firmware version; used by diagnostics.
	CmdQueryFirmware = "PAIR020"
)

// DefaultStartupCommands is the sequence sent after the port opens.
var DefaultStartupCommands = []string{CmdRoverMode, CmdEnableCorrectionInput}

// FormatCommand frames a command body as "$body*CS\r\n".
// A leading '$' or trailing checksum on cmd is ignored.
func FormatCommand(cmd string) []byte {
	cmd = strings.TrimSpace(cmd)
	cmd = strings.TrimPrefix(cmd, "$")
	if i := strings.IndexByte(cmd, '*'); i >= 0 {
		cmd = cmd[:i]
	}
	return []byte("$" + cmd + "*" + nmea.Checksum(cmd) + "\r\n")
}
