package nmea

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Reject outcomes. These are normal, silently-droppable results of feeding a
// decoder arbitrary line noise; callers log at debug level and move on.
var (
	ErrNotASentence        = errors.New("nmea: line does not start with '$'")
	ErrChecksumMismatch    = errors.New("nmea: checksum mismatch")
	ErrUnsupportedSentence = errors.New("nmea: unsupported sentence type")
)

// Decoder turns raw sentence lines into Readings. Sentences carry only a
// time of day, so the decoder stamps readings onto the current wall-clock
// date; now is injectable for tests.
type Decoder struct {
	now func() time.Time
}

// NewDecoder creates a decoder using the system clock.
func NewDecoder() *Decoder {
	return &Decoder{now: time.Now}
}

// NewDecoderAt creates a decoder with a fixed clock.
func NewDecoderAt(now func() time.Time) *Decoder {
	return &Decoder{now: now}
}

// extractors keyed by the three-character sentence formatter. The two
// leading talker-id characters of the five-character tag vary by device
// (GP, SD, II, ...) and are ignored, so historical spellings of the same
// sentence all reach the same extractor.
var extractors = map[string]func(*Decoder, fields, *Reading){
	"GGA": (*Decoder).extractGGA,
	"RMC": (*Decoder).extractRMC,
	"DBT": (*Decoder).extractDBT,
	"MTW": (*Decoder).extractMTW,
	"MDA": (*Decoder).extractMDA,
	"MWV": (*Decoder).extractMWV,
	"VHW": (*Decoder).extractVHW,
	"VWR": (*Decoder).extractVWR,
	"RPM": (*Decoder).extractRPM,
}

// Decode parses one raw sentence line. A nil Reading is always paired with
// one of the sentinel reject errors above; no other failures occur.
func (d *Decoder) Decode(line string) (*Reading, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, ErrNotASentence
	}

	body := line
	if star := strings.LastIndexByte(line, '*'); star >= 0 {
		want, err := strconv.ParseUint(strings.TrimSpace(line[star+1:]), 16, 8)
		if err != nil || Checksum(line[:star]) != byte(want) {
			return nil, ErrChecksumMismatch
		}
		body = line[:star]
	}

	if len(body) < 6 {
		return nil, ErrUnsupportedSentence
	}
	tag := body[1:6]
	extract, ok := extractors[tag[2:]]
	if !ok {
		return nil, ErrUnsupportedSentence
	}

	r := &Reading{
		CapturedAt: d.now(),
		Raw:        line,
	}
	extract(d, splitFields(body), r)
	return r, nil
}

// Checksum computes the XOR of all character codes strictly between the '$'
// start marker and the '*' delimiter.
func Checksum(sentence string) byte {
	var sum byte
	for i := 1; i < len(sentence); i++ {
		sum ^= sentence[i]
	}
	return sum
}

// Position fix: $--GGA,time,lat,N,lon,E,quality,...
func (d *Decoder) extractGGA(f fields, r *Reading) {
	r.CapturedAt = d.timeOfDay(f.at(1))
	r.Latitude = parseLatitude(f.at(2), f.at(3))
	r.Longitude = parseLongitude(f.at(4), f.at(5))

	// Quality indicator 0 means no GPS fix: discard any coordinates parsed
	// from this sentence.
	if q, ok := f.intVal(6); ok && q == 0 {
		r.Latitude = nil
		r.Longitude = nil
	}
}

// Recommended minimum: $--RMC,time,status,lat,N,lon,E,sog,cog,...
func (d *Decoder) extractRMC(f fields, r *Reading) {
	r.CapturedAt = d.timeOfDay(f.at(1))
	r.Latitude = parseLatitude(f.at(3), f.at(4))
	r.Longitude = parseLongitude(f.at(5), f.at(6))
	r.SpeedOverGround = f.float(7)
	r.HeadingDegrees = f.float(8)
}

// Depth below transducer: $--DBT,feet,f,meters,M,fathoms,F
func (d *Decoder) extractDBT(f fields, r *Reading) {
	r.WaterDepthMeters = f.float(3)
}

// Water temperature: $--MTW,temp,C
func (d *Decoder) extractMTW(f fields, r *Reading) {
	r.WaterTempC = f.float(1)
}

// Composite meteorological: $--MDA,pressure,I,airtemp,C,watertemp,...
func (d *Decoder) extractMDA(f fields, r *Reading) {
	r.PressureHpa = f.float(1)
	r.AirTempC = f.float(3)
	r.WaterTempC = f.float(4)
	r.WindSpeedKnots = f.float(7)
	r.WindDirectionDeg = f.float(8)
}

// Wind speed and angle: $--MWV,angle,R,speed,N,A
func (d *Decoder) extractMWV(f fields, r *Reading) {
	r.WindDirectionDeg = f.float(1)
	r.WindSpeedKnots = f.float(3)
}

// Water speed and heading: $--VHW,heading,T,...
func (d *Decoder) extractVHW(f fields, r *Reading) {
	r.HeadingDegrees = f.float(1)
}

// Relative wind: $--VWR,angle,L/R,speed,N,...
func (d *Decoder) extractVWR(f fields, r *Reading) {
	r.WindDirectionDeg = f.float(1)
	r.WindSpeedKnots = f.float(3)
}

// Engine revolutions: $--RPM,source,engine,rpm,pitch,status
func (d *Decoder) extractRPM(f fields, r *Reading) {
	r.EngineRPM = f.float(3)
}

// timeOfDay projects an HHMMSS field onto the current wall-clock date.
// Sentences carry no calendar date, so these timestamps are only meaningful
// as time-of-day stamped onto "now".
func (d *Decoder) timeOfDay(hhmmss string) time.Time {
	now := d.now()
	if len(hhmmss) < 6 {
		return now
	}
	hh, err1 := strconv.Atoi(hhmmss[0:2])
	mm, err2 := strconv.Atoi(hhmmss[2:4])
	ss, err3 := strconv.Atoi(hhmmss[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return now
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hh, mm, ss, 0, now.Location())
}

// parseLatitude decodes DDMM.MMMM plus a hemisphere letter.
func parseLatitude(val, hemisphere string) *float64 {
	return parseCoordinate(val, hemisphere, 2, "S")
}

// parseLongitude decodes DDDMM.MMMM plus a hemisphere letter.
func parseLongitude(val, hemisphere string) *float64 {
	return parseCoordinate(val, hemisphere, 3, "W")
}

func parseCoordinate(val, hemisphere string, degDigits int, negative string) *float64 {
	if len(val) <= degDigits || hemisphere == "" {
		return nil
	}
	deg, err := strconv.Atoi(val[:degDigits])
	if err != nil {
		return nil
	}
	min, err := strconv.ParseFloat(val[degDigits:], 64)
	if err != nil {
		return nil
	}
	decimal := float64(deg) + min/60
	if hemisphere == negative {
		decimal = -decimal
	}
	return &decimal
}
