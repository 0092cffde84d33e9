package nmea

import (
	"fmt"
	"math"
)

// Sentence construction helpers used by the simulator and by tests that
// need well-formed input.

// AppendChecksum appends "*HH" to a sentence that starts with '$' and has
// no checksum yet.
func AppendChecksum(sentence string) string {
	return fmt.Sprintf("%s*%02X", sentence, Checksum(sentence))
}

// FormatLatitude encodes an absolute latitude as DDMM.MMMM.
func FormatLatitude(lat float64) string {
	abs := math.Abs(lat)
	deg := math.Floor(abs)
	min := (abs - deg) * 60
	return fmt.Sprintf("%02d%07.4f", int(deg), min)
}

// FormatLongitude encodes an absolute longitude as DDDMM.MMMM.
func FormatLongitude(lon float64) string {
	abs := math.Abs(lon)
	deg := math.Floor(abs)
	min := (abs - deg) * 60
	return fmt.Sprintf("%03d%07.4f", int(deg), min)
}
