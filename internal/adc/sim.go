// SPDX-License-Identifier: MIT
package adc

import (
	"math"
	"sync"
	"time"
)

// simChannels mirrors the number of transfer channels on the target
// part, so fixed-channel configurations exercise the same claim logic.
const simChannels = 12

// SimConfig describes the synthetic signal the simulated converter
// produces: a single tone in raw counts over a DC bias.
type SimConfig struct {
	Frequency float64 // Tone frequency (Hz).
	Amplitude float64 // Peak amplitude (counts).
	Offset    float64 // DC bias (counts).
	FullScale uint16  // Largest producible count; 0 means no clamping.

	// Realtime paces block transfers at the configured sample clock.
	// Disable only for consumers that tolerate back-to-back buffers.
	Realtime bool
}

// Sim is a deterministic software converter and transfer controller.
// It produces a phase-continuous sine so consecutive buffers join
// without discontinuities, exactly as a free-running converter would.
type Sim struct {
	cfg  SimConfig
	rate float64

	// phase is advanced only from the producing context: the
	// foreground for polled reads, the transfer goroutine chain for
	// programmed blocks. The two are never mixed on one instance.
	phase float64

	mu       sync.Mutex
	claimed  [simChannels]bool
	channel  int
	handler  CompletionHandler
	abort    chan struct{}
	inFlight bool
}

var _ Converter = (*Sim)(nil)
var _ TransferController = (*Sim)(nil)

// NewSim creates a simulated converter. The sample clock defaults to
// 128 kHz until ConfigureClockDivider is called.
func NewSim(cfg SimConfig) *Sim {
	return &Sim{
		cfg:     cfg,
		rate:    128000,
		channel: -1,
	}
}

// ReadSample generates the next sample of the tone at the configured
// clock. Conversion time is treated as negligible.
func (s *Sim) ReadSample() uint16 {
	v := s.cfg.Offset + s.cfg.Amplitude*math.Sin(s.phase)
	s.phase += 2 * math.Pi * s.cfg.Frequency / s.rate
	if s.phase > 2*math.Pi {
		s.phase -= 2 * math.Pi
	}
	return s.clamp(v)
}

// ConfigureClockDivider sets the sample clock.
func (s *Sim) ConfigureClockDivider(sampleRate float64) {
	if sampleRate > 0 {
		s.rate = sampleRate
	}
}

// StartConversion is a no-op for the simulation; samples exist on
// demand.
func (s *Sim) StartConversion(continuous bool) {}

// StopConversion halts nothing but kept for surface parity.
func (s *Sim) StopConversion() {}

// ClaimChannel reserves a simulated transfer channel.
func (s *Sim) ClaimChannel(channel int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel == -1 {
		for i := range s.claimed {
			if !s.claimed[i] {
				s.claimed[i] = true
				s.channel = i
				return i, nil
			}
		}
		return -1, ErrNoChannel
	}

	if channel < 0 || channel >= simChannels || s.claimed[channel] {
		return -1, ErrNoChannel
	}
	s.claimed[channel] = true
	s.channel = channel
	return channel, nil
}

// ReleaseChannel returns the claimed channel.
func (s *Sim) ReleaseChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel >= 0 {
		s.claimed[s.channel] = false
		s.channel = -1
	}
}

// RegisterCompletionHandler installs the transfer-completion handler.
func (s *Sim) RegisterCompletionHandler(fn CompletionHandler) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

// Program arms a block transfer into dest. With autostart the transfer
// goroutine begins immediately: it generates count samples, paced to
// the sample clock in realtime mode, then invokes the completion
// handler in its own context, the simulation's interrupt.
func (s *Sim) Program(dest []uint16, count int, autostart bool) {
	s.mu.Lock()
	handler := s.handler
	abort := make(chan struct{})
	s.abort = abort
	s.inFlight = true
	s.mu.Unlock()

	if !autostart {
		return
	}

	go s.run(dest, count, handler, abort)
}

func (s *Sim) run(dest []uint16, count int, handler CompletionHandler, abort chan struct{}) {
	if s.cfg.Realtime && s.rate > 0 {
		duration := time.Duration(float64(count) / s.rate * float64(time.Second))
		select {
		case <-time.After(duration):
		case <-abort:
			return
		}
	}

	for i := 0; i < count && i < len(dest); i++ {
		dest[i] = s.ReadSample()
	}

	select {
	case <-abort:
		return
	default:
	}

	if handler != nil {
		handler()
	}
}

// Abort cancels the in-flight transfer.
func (s *Sim) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight && s.abort != nil {
		close(s.abort)
		s.abort = nil
		s.inFlight = false
	}
}

func (s *Sim) clamp(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if s.cfg.FullScale > 0 && v > float64(s.cfg.FullScale) {
		return s.cfg.FullScale
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v + 0.5)
}
