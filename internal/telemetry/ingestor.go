// Package telemetry ingests the boat's NMEA feed: it owns the connection to
// the instrument network (or the built-in simulator), decodes sentences into
// readings, persists them, and patches live measurements onto the fishing
// session in progress.
package telemetry

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/karlfish/fishlog/internal/bus"
	"github.com/karlfish/fishlog/internal/nmea"
	"github.com/karlfish/fishlog/internal/status"
	"github.com/karlfish/fishlog/internal/store"
)

const (
	connectTimeout    = 10 * time.Second
	reconnectAttempts = 5
	reconnectDelay    = 5 * time.Second
)

// dialFunc opens one sentence stream. The real transport dials TCP; the
// simulator returns its generated stream.
type dialFunc func(ctx context.Context) (io.ReadCloser, error)

// Status is a snapshot of the ingestor's connection.
type Status struct {
	State             status.State
	ReconnectAttempts int
}

// Ingestor reads the NMEA feed and turns it into persisted readings. One
// connection at a time; reconnects are bounded and the state machine is the
// single source of truth for where the connection stands.
type Ingestor struct {
	local   *store.Local
	decoder *nmea.Decoder
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	mu           sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
	dial         dialFunc
	attempts     int
	boundSession string

	// reconnectWait is the fixed delay between redial attempts; tests
	// shorten it.
	reconnectWait time.Duration
}

// NewIngestor creates a telemetry ingestor.
func NewIngestor(local *store.Local, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		local:         local,
		decoder:       nmea.NewDecoder(),
		machine:       machine,
		bus:           b,
		logger:        logger,
		reconnectWait: reconnectDelay,
	}
}

// Connect opens the telemetry stream and starts ingesting. With simulated
// set, the built-in simulator feeds the same pipeline instead of a TCP
// connection. Returns an error when already connected or when the first dial
// fails; later stream failures go through the bounded reconnect path instead.
func (in *Ingestor) Connect(address string, port int, simulated bool) error {
	dial := in.tcpDialer(fmt.Sprintf("%s:%d", address, port))
	if simulated {
		dial = simulatorDialer()
	}
	return in.connect(dial)
}

func (in *Ingestor) connect(dial dialFunc) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.machine.Transition(status.Connecting); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	src, err := dial(ctx)
	if err != nil {
		cancel()
		_ = in.machine.Transition(status.Disconnected)
		return fmt.Errorf("connect: %w", err)
	}
	_ = in.machine.Transition(status.Connected)

	done := make(chan struct{})
	in.dial = dial
	in.cancel = cancel
	in.done = done
	in.attempts = 0
	go in.run(ctx, src, done)
	return nil
}

// Disconnect stops ingestion and releases the stream. Safe to call at any
// time, including when already disconnected. The bound session is released so
// a later connection starts unbound.
func (in *Ingestor) Disconnect() {
	in.mu.Lock()
	cancel, done := in.cancel, in.done
	in.cancel, in.done = nil, nil
	in.boundSession = ""
	in.attempts = 0
	in.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	_ = in.machine.Transition(status.Disconnected)
}

// BindSession routes live measurements onto a session: subsequent readings
// patch its location, weather, and water snapshots.
func (in *Ingestor) BindSession(id string) {
	in.mu.Lock()
	in.boundSession = id
	in.mu.Unlock()
}

// UnbindSession stops patching readings onto a session.
func (in *Ingestor) UnbindSession() {
	in.BindSession("")
}

// Status returns the connection state and how many reconnect attempts the
// current outage has consumed.
func (in *Ingestor) Status() Status {
	in.mu.Lock()
	attempts := in.attempts
	in.mu.Unlock()
	return Status{
		State:             in.machine.Current(),
		ReconnectAttempts: attempts,
	}
}

func (in *Ingestor) tcpDialer(addr string) dialFunc {
	return func(ctx context.Context) (io.ReadCloser, error) {
		d := net.Dialer{Timeout: connectTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn, nil
	}
}

func simulatorDialer() dialFunc {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return NewSimulator().Stream(ctx), nil
	}
}

// run owns the stream until disconnect: it drains it line by line and, when
// the stream drops, walks the bounded reconnect ladder. done is passed in
// rather than read from the struct; Disconnect nils the field concurrently.
func (in *Ingestor) run(ctx context.Context, src io.ReadCloser, done chan struct{}) {
	defer close(done)

	for {
		// Close the stream on cancel so a blocked read unblocks.
		stop := context.AfterFunc(ctx, func() { _ = src.Close() })
		in.readLines(ctx, src)
		stop()
		_ = src.Close()
		if ctx.Err() != nil {
			return
		}

		next, ok := in.reconnect(ctx)
		if !ok {
			_ = in.machine.Transition(status.Disconnected)
			return
		}
		src = next
	}
}

// reconnect redials up to reconnectAttempts times with a fixed delay between
// tries. The machine stays in Reconnecting for the whole ladder.
func (in *Ingestor) reconnect(ctx context.Context) (io.ReadCloser, bool) {
	if err := in.machine.Transition(status.Reconnecting); err != nil {
		return nil, false
	}

	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		in.mu.Lock()
		in.attempts = attempt
		dial := in.dial
		in.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(in.reconnectWait):
		}

		src, err := dial(ctx)
		if err != nil {
			in.logger.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		in.mu.Lock()
		in.attempts = 0
		in.mu.Unlock()
		_ = in.machine.Transition(status.Connected)
		return src, true
	}

	in.logger.Warn("reconnect attempts exhausted",
		zap.Int("attempts", reconnectAttempts))
	return nil, false
}

// readLines drains the stream. A sentence that fails to decode is dropped
// and the rest of the stream keeps flowing.
func (in *Ingestor) readLines(ctx context.Context, src io.Reader) {
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		in.handleLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		in.logger.Warn("telemetry stream error", zap.Error(err))
	}
}

func (in *Ingestor) handleLine(line string) {
	reading, err := in.decoder.Decode(line)
	if err != nil {
		in.logger.Debug("dropped sentence", zap.String("line", line), zap.Error(err))
		return
	}

	if err := in.local.AppendReading(toStoreReading(reading)); err != nil {
		in.logger.Warn("failed to persist reading", zap.Error(err))
	}

	if in.bus != nil {
		in.bus.Publish(bus.Event{
			Kind:      "telemetry.reading",
			Timestamp: reading.CapturedAt,
			Payload:   reading,
		})
	}

	in.mu.Lock()
	bound := in.boundSession
	in.mu.Unlock()
	if bound != "" {
		in.patchSession(bound, reading)
	}
}

// patchSession folds a reading into the bound session's snapshots. Only
// fields the reading actually carries are overwritten; everything the user
// entered by hand survives.
func (in *Ingestor) patchSession(id string, r *nmea.Reading) {
	err := in.local.UpdateSession(id, func(s *store.Session) {
		if r.Latitude != nil && r.Longitude != nil {
			s.Location.Latitude = *r.Latitude
			s.Location.Longitude = *r.Longitude
		}
		if r.AirTempC != nil {
			s.Weather.AirTemperatureC = r.AirTempC
		}
		if r.PressureHpa != nil {
			s.Weather.PressureHpa = r.PressureHpa
		}
		if r.WindSpeedKnots != nil {
			s.Weather.WindSpeedKnots = r.WindSpeedKnots
		}
		if r.WindDirectionDeg != nil {
			s.Weather.WindDirectionDeg = r.WindDirectionDeg
		}
		if r.WaterTempC != nil {
			s.Water.TemperatureC = r.WaterTempC
		}
		if r.WaterDepthMeters != nil {
			s.Water.DepthMeters = r.WaterDepthMeters
		}
	})
	if err != nil {
		in.logger.Warn("failed to patch session",
			zap.String("session_id", id), zap.Error(err))
	}
}

func toStoreReading(r *nmea.Reading) *store.Reading {
	return &store.Reading{
		CapturedAt:  r.CapturedAt.UnixMilli(),
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		SpeedKn:     r.SpeedOverGround,
		HeadingDeg:  r.HeadingDegrees,
		DepthM:      r.WaterDepthMeters,
		WaterTempC:  r.WaterTempC,
		AirTempC:    r.AirTempC,
		WindSpeedKn: r.WindSpeedKnots,
		WindDirDeg:  r.WindDirectionDeg,
		PressureHpa: r.PressureHpa,
		EngineRPM:   r.EngineRPM,
		Raw:         r.Raw,
	}
}
