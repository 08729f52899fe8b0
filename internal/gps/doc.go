// Package gps talks to a serial GNSS receiver (Quectel LC29H(DA) RTK HAT and
// similar):
//   - extract checksummed NMEA from a stream mixed with binary traffic
//   - decode GGA/RMC/GSA/GSV/VTG into a PositionFix snapshot
//   - write RTCM corrections and configuration commands back to the device
package gps
