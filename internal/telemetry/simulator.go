package telemetry

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/karlfish/fishlog/internal/nmea"
)

const simulatorCadence = 2 * time.Second

// Simulator generates a plausible NMEA feed for development without a boat:
// a vessel drifting on a random walk, with depth, water and air temperature,
// wind, and the occasional engine-RPM burst. Values walk between ticks and
// are clamped to sane marine ranges.
type Simulator struct {
	rand *rand.Rand

	lat      float64
	lon      float64
	heading  float64
	speedKn  float64
	depthM   float64
	waterC   float64
	airC     float64
	windKn   float64
	windDeg  float64
	pressure float64
	rpm      float64
}

// NewSimulator creates a simulator anchored off the New England coast.
func NewSimulator() *Simulator {
	return &Simulator{
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		lat:      41.5265,
		lon:      -70.6731,
		heading:  135,
		speedKn:  4.5,
		depthM:   18,
		waterC:   17.5,
		airC:     21,
		windKn:   12,
		windDeg:  250,
		pressure: 1014,
		rpm:      1400,
	}
}

// Stream returns a reader producing newline-separated sentences every two
// seconds until ctx is cancelled or the reader is closed.
func (s *Simulator) Stream(ctx context.Context) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		ticker := time.NewTicker(simulatorCadence)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = pw.Close()
				return
			case <-ticker.C:
			}
			for _, sentence := range s.Tick(time.Now()) {
				if _, err := fmt.Fprintln(pw, sentence); err != nil {
					return
				}
			}
		}
	}()
	return pr
}

// Tick advances the random walk one step and returns the sentence batch for
// this instant, checksummed and ready to feed a decoder.
func (s *Simulator) Tick(now time.Time) []string {
	s.step()

	batch := []string{
		s.ggaSentence(now),
		s.dbtSentence(),
		s.mtwSentence(),
		s.mwvSentence(),
		s.mdaSentence(),
	}
	// Engine RPM shows up intermittently, like a real feed.
	if s.rand.Intn(4) == 0 {
		batch = append(batch, s.rpmSentence())
	}
	return batch
}

func (s *Simulator) step() {
	// Drift along the current heading at the current speed, cadence worth
	// of distance. One degree is roughly 60 nautical miles.
	distanceNm := s.speedKn * simulatorCadence.Hours()
	rad := s.heading * math.Pi / 180
	s.lat += distanceNm / 60 * math.Cos(rad)
	s.lon += distanceNm / 60 * math.Sin(rad)

	s.heading = wrapDegrees(s.heading + s.walk(8))
	s.speedKn = clamp(s.speedKn+s.walk(0.5), 0, 12)
	s.depthM = clamp(s.depthM+s.walk(1.5), 10, 50)
	s.waterC = clamp(s.waterC+s.walk(0.1), 4, 28)
	s.airC = clamp(s.airC+s.walk(0.2), -5, 38)
	s.windKn = clamp(s.windKn+s.walk(1), 5, 25)
	s.windDeg = wrapDegrees(s.windDeg + s.walk(10))
	s.pressure = clamp(s.pressure+s.walk(0.3), 980, 1040)
	s.rpm = clamp(s.rpm+s.walk(120), 600, 3200)
}

// walk returns a uniform step in [-scale, scale].
func (s *Simulator) walk(scale float64) float64 {
	return (s.rand.Float64()*2 - 1) * scale
}

func (s *Simulator) ggaSentence(now time.Time) string {
	latHemi, lonHemi := "N", "E"
	if s.lat < 0 {
		latHemi = "S"
	}
	if s.lon < 0 {
		lonHemi = "W"
	}
	return nmea.AppendChecksum(fmt.Sprintf("$GPGGA,%s,%s,%s,%s,%s,1,08,0.9,5.0,M,,M,,",
		now.Format("150405"),
		nmea.FormatLatitude(s.lat), latHemi,
		nmea.FormatLongitude(s.lon), lonHemi))
}

func (s *Simulator) dbtSentence() string {
	feet := s.depthM * 3.28084
	fathoms := s.depthM * 0.546807
	return nmea.AppendChecksum(fmt.Sprintf("$SDDBT,%.1f,f,%.1f,M,%.1f,F", feet, s.depthM, fathoms))
}

func (s *Simulator) mtwSentence() string {
	return nmea.AppendChecksum(fmt.Sprintf("$SDMTW,%.1f,C", s.waterC))
}

func (s *Simulator) mwvSentence() string {
	return nmea.AppendChecksum(fmt.Sprintf("$WIMWV,%.1f,R,%.1f,N,A", s.windDeg, s.windKn))
}

func (s *Simulator) mdaSentence() string {
	return nmea.AppendChecksum(fmt.Sprintf("$SDMDA,%.1f,I,%.1f,%.1f,C,,%.1f,%.1f,,,,,,",
		s.pressure, s.airC, s.waterC, s.windKn, s.windDeg))
}

func (s *Simulator) rpmSentence() string {
	return nmea.AppendChecksum(fmt.Sprintf("$ERRPM,E,1,%.0f,10.0,A", s.rpm))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func wrapDegrees(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}
