package receiverloc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fix is a single GPS position fix, parsed from a $GPGGA or $GPRMC sentence.
// It supplies the "configured receiver location" used for Local CPR and
// surface-reference-point selection when no location has been set manually.
type Fix struct {
	Latitude    float64
	Longitude   float64
	AltitudeM   float64 // from GGA only; zero if derived from RMC alone
	HasAltitude bool
	Time        time.Time
	Valid       bool
}

// verifyChecksum checks the trailing *HH checksum of a raw NMEA sentence
// (without the leading '$' or '!') against the XOR of its bytes.
func verifyChecksum(sentence string) bool {
	star := strings.LastIndexByte(sentence, '*')
	if star < 0 || star+3 > len(sentence) {
		return false
	}
	want, err := strconv.ParseUint(sentence[star+1:star+3], 16, 8)
	if err != nil {
		return false
	}

	var got byte
	for i := 0; i < star; i++ {
		got ^= sentence[i]
	}
	return got == byte(want)
}

// ParseSentence parses one NMEA line (optionally including the leading '$'
// and trailing CRLF) and returns a Fix if it is a $GPGGA or $GPRMC sentence
// carrying a valid position. Other sentence types return ok=false with a
// nil error: they are not an error, just not position data.
func ParseSentence(line string) (fix Fix, ok bool, err error) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "$")
	if line == "" {
		return Fix{}, false, nil
	}

	if !verifyChecksum(line) {
		return Fix{}, false, fmt.Errorf("nmea: checksum mismatch in %q", line)
	}
	if star := strings.LastIndexByte(line, '*'); star >= 0 {
		line = line[:star]
	}

	fields := strings.Split(line, ",")
	if len(fields) == 0 {
		return Fix{}, false, nil
	}

	// Talker ID (GP, GN, GL, ...) followed by a three-letter sentence type;
	// match on the suffix so any talker ID works.
	sentenceType := fields[0]
	switch {
	case strings.HasSuffix(sentenceType, "GGA"):
		return parseGGA(fields)
	case strings.HasSuffix(sentenceType, "RMC"):
		return parseRMC(fields)
	default:
		return Fix{}, false, nil
	}
}

// parseGGA parses a $--GGA sentence:
// $GPGGA,time,lat,N/S,lon,E/W,quality,numSV,hdop,alt,M,sep,M,diffAge,diffStation*cs
func parseGGA(fields []string) (Fix, bool, error) {
	if len(fields) < 10 {
		return Fix{}, false, fmt.Errorf("nmea: short GGA sentence (%d fields)", len(fields))
	}

	quality, _ := strconv.Atoi(fields[6])
	if quality == 0 {
		// 0 = no fix
		return Fix{}, false, nil
	}

	lat, err := parseLatitude(fields[2], fields[3])
	if err != nil {
		return Fix{}, false, err
	}
	lon, err := parseLongitude(fields[4], fields[5])
	if err != nil {
		return Fix{}, false, err
	}

	alt, err := strconv.ParseFloat(fields[9], 64)
	if err != nil {
		return Fix{}, false, fmt.Errorf("nmea: bad GGA altitude %q: %w", fields[9], err)
	}

	t, _ := parseTimeOfDay(fields[1])

	return Fix{Latitude: lat, Longitude: lon, AltitudeM: alt, HasAltitude: true, Time: t, Valid: true}, true, nil
}

// parseRMC parses a $--RMC sentence:
// $GPRMC,time,status,lat,N/S,lon,E/W,speed,track,date,magvar,E/W*cs
func parseRMC(fields []string) (Fix, bool, error) {
	if len(fields) < 10 {
		return Fix{}, false, fmt.Errorf("nmea: short RMC sentence (%d fields)", len(fields))
	}

	if fields[2] != "A" {
		// status != Active means no fix
		return Fix{}, false, nil
	}

	lat, err := parseLatitude(fields[3], fields[4])
	if err != nil {
		return Fix{}, false, err
	}
	lon, err := parseLongitude(fields[5], fields[6])
	if err != nil {
		return Fix{}, false, err
	}

	t, _ := parseDateTime(fields[9], fields[1])

	return Fix{Latitude: lat, Longitude: lon, Time: t, Valid: true}, true, nil
}

// parseLatitude parses NMEA ddmm.mmmm + hemisphere into signed decimal
// degrees.
func parseLatitude(raw, hemisphere string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("nmea: empty latitude")
	}
	if len(raw) < 4 {
		return 0, fmt.Errorf("nmea: malformed latitude %q", raw)
	}
	deg, err := strconv.Atoi(raw[:2])
	if err != nil {
		return 0, fmt.Errorf("nmea: bad latitude degrees %q: %w", raw, err)
	}
	min, err := strconv.ParseFloat(raw[2:], 64)
	if err != nil {
		return 0, fmt.Errorf("nmea: bad latitude minutes %q: %w", raw, err)
	}
	lat := float64(deg) + min/60
	if hemisphere == "S" {
		lat = -lat
	}
	return lat, nil
}

// parseLongitude parses NMEA dddmm.mmmm + hemisphere into signed decimal
// degrees.
func parseLongitude(raw, hemisphere string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("nmea: empty longitude")
	}
	if len(raw) < 5 {
		return 0, fmt.Errorf("nmea: malformed longitude %q", raw)
	}
	deg, err := strconv.Atoi(raw[:3])
	if err != nil {
		return 0, fmt.Errorf("nmea: bad longitude degrees %q: %w", raw, err)
	}
	min, err := strconv.ParseFloat(raw[3:], 64)
	if err != nil {
		return 0, fmt.Errorf("nmea: bad longitude minutes %q: %w", raw, err)
	}
	lon := float64(deg) + min/60
	if hemisphere == "W" {
		lon = -lon
	}
	return lon, nil
}

// parseTimeOfDay parses an hhmmss[.sss] field against the current date
// (GGA carries no date field of its own).
func parseTimeOfDay(raw string) (time.Time, error) {
	if len(raw) < 6 {
		return time.Time{}, fmt.Errorf("nmea: malformed time %q", raw)
	}
	hh, _ := strconv.Atoi(raw[0:2])
	mm, _ := strconv.Atoi(raw[2:4])
	ss, _ := strconv.Atoi(raw[4:6])
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), hh, mm, ss, 0, time.UTC), nil
}

// parseDateTime parses RMC's ddmmyy date field together with an hhmmss[.sss]
// time field.
func parseDateTime(dateRaw, timeRaw string) (time.Time, error) {
	if len(dateRaw) < 6 || len(timeRaw) < 6 {
		return time.Time{}, fmt.Errorf("nmea: malformed date/time %q %q", dateRaw, timeRaw)
	}
	dd, _ := strconv.Atoi(dateRaw[0:2])
	mo, _ := strconv.Atoi(dateRaw[2:4])
	yy, _ := strconv.Atoi(dateRaw[4:6])
	hh, _ := strconv.Atoi(timeRaw[0:2])
	mi, _ := strconv.Atoi(timeRaw[2:4])
	ss, _ := strconv.Atoi(timeRaw[4:6])
	return time.Date(2000+yy, time.Month(mo), dd, hh, mi, ss, 0, time.UTC), nil
}
