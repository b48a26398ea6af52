// Package nmea parses NMEA 0183 sentences from marine instruments.
//
// Only the sentences a boat bridge cares about are decoded:
//   - GGA position fix, VTG track and ground speed
//   - HDT true heading, HDG magnetic heading and variation
//   - ZDA date and time, RSA rudder angle, GSV satellites in view
//   - DPT depth, VHW water speed and heading, MTW water temperature
//
// AIS envelopes (!AIVDM/!AIVDO) are checksum-validated and passed through raw;
// package ais decodes them. Everything else is dropped.
package nmea
