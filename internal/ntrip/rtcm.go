package ntrip

// RTCM 3 framing: 0xD3, 6 reserved zero bits, 10-bit length, payload, CRC-24Q.
const (
	rtcmPreamble  = 0xD3
	rtcmMaxLength = 1024
)

// FindPreamble returns the offset of the first plausible RTCM 3 frame header
// in p, or -1. Only the header is checked; the CRC is not.
func FindPreamble(p []byte) int {
	for i := 0; i+2 < len(p); i++ {
		if p[i] != rtcmPreamble || p[i+1]&0xFC != 0 {
			continue
		}
		n := int(p[i+1]&0x03)<<8 | int(p[i+2])
		if n > 0 && n < rtcmMaxLength {
			return i
		}
	}
	return -1
}

// MessageType returns the 12-bit message number of the frame at off, or -1
// when p is too short to hold it.
func MessageType(p []byte, off int) int {
	if off < 0 || off+4 >= len(p) {
		return -1
	}
	return int(p[off+3])<<4 | int(p[off+4])>>4
}
