// SPDX-License-Identifier: MIT
package acquire

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"specan/internal/adc"
	applog "specan/internal/log"
)

// Mode selects how sample blocks are acquired.
type Mode int

const (
	// ModeDMA fills buffers from the transfer-completion context with
	// no foreground involvement.
	ModeDMA Mode = iota
	// ModePolled reads samples one at a time in the caller's context,
	// pacing each read against the sample clock.
	ModePolled
)

func (m Mode) String() string {
	switch m {
	case ModeDMA:
		return "dma"
	case ModePolled:
		return "polled"
	default:
		return "unknown"
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "dma":
		return ModeDMA, nil
	case "polled":
		return ModePolled, nil
	default:
		return ModeDMA, fmt.Errorf("unknown acquisition mode %q", s)
	}
}

// SampleBuffer is one half of the ping/pong pair. Samples are raw
// converter counts.
type SampleBuffer struct {
	Samples []uint16
}

// Smoothing factor for the polled-mode measured-rate estimate.
const rateSmoothing = 0.1

// Engine owns the double-buffered acquisition loop. In DMA mode the
// transfer-completion handler swaps the filled buffer into a depth-one
// ready slot and immediately re-arms the other buffer, so acquisition
// never pauses for the consumer. In polled mode IsReady performs one
// full block acquisition inline.
type Engine struct {
	mode Mode
	size int
	rate float64

	conv adc.Converter
	xfer adc.TransferController

	channel int

	ping, pong *SampleBuffer
	current    *SampleBuffer

	// ready is the handoff slot. The producer swaps a filled buffer
	// in; the consumer loads it, processes, then releases it back to
	// nil. A non-nil value found during a swap means the consumer
	// never picked up the previous block: that block is reclaimed for
	// refill and the overrun counter advances.
	ready atomic.Pointer[SampleBuffer]

	samples  atomic.Uint64
	overruns atomic.Uint64

	sampling  atomic.Bool
	startTime time.Time

	// lastCompletion holds the previous DMA completion timestamp in
	// UnixNano for the instantaneous rate estimate.
	lastCompletion atomic.Int64

	// measuredRate holds a float64 as bits for lock-free updates from
	// the completion context.
	measuredRate atomic.Uint64
}

// NewEngine allocates both buffers and, in DMA mode, claims a transfer
// channel and installs the completion handler. channel -1 requests any
// free channel.
func NewEngine(mode Mode, size int, sampleRate float64, conv adc.Converter, xfer adc.TransferController, channel int) (*Engine, error) {
	e := &Engine{
		mode:    mode,
		size:    size,
		rate:    sampleRate,
		conv:    conv,
		xfer:    xfer,
		channel: -1,
		ping:    &SampleBuffer{Samples: make([]uint16, size)},
		pong:    &SampleBuffer{Samples: make([]uint16, size)},
	}
	e.current = e.ping
	e.setMeasuredRate(0)

	conv.ConfigureClockDivider(sampleRate)

	if mode == ModeDMA {
		claimed, err := xfer.ClaimChannel(channel)
		if err != nil {
			return nil, fmt.Errorf("failed to claim transfer channel: %w", err)
		}
		e.channel = claimed
		xfer.RegisterCompletionHandler(e.onTransferComplete)
		applog.Debugf("acquire: claimed transfer channel %d", claimed)
	}

	return e, nil
}

// Mode reports the configured acquisition mode.
func (e *Engine) Mode() Mode { return e.mode }

// Start begins acquisition. Calling Start on a running engine is a
// no-op beyond a warning.
func (e *Engine) Start() {
	if !e.sampling.CompareAndSwap(false, true) {
		applog.Warnf("acquire: start requested while already sampling")
		return
	}

	e.samples.Store(0)
	e.overruns.Store(0)
	e.ready.Store(nil)
	e.current = e.ping
	e.startTime = time.Now()
	e.lastCompletion.Store(0)

	switch e.mode {
	case ModeDMA:
		e.conv.StartConversion(true)
		e.xfer.Program(e.current.Samples, e.size, true)
	case ModePolled:
		e.conv.StartConversion(false)
	}
	applog.Infof("acquire: started (%s mode, %d samples/block, %.0f Hz)", e.mode, e.size, e.rate)
}

// Stop halts acquisition, aborting any in-flight transfer. The final
// measured rate is recomputed from the total sample count.
func (e *Engine) Stop() {
	if !e.sampling.CompareAndSwap(true, false) {
		return
	}

	if e.mode == ModeDMA {
		e.xfer.Abort()
	}
	e.conv.StopConversion()

	if elapsed := time.Since(e.startTime).Seconds(); elapsed > 0 {
		e.setMeasuredRate(float64(e.samples.Load()) / elapsed)
	}
	applog.Infof("acquire: stopped after %d samples (%d overruns)", e.samples.Load(), e.overruns.Load())
}

// Close releases the transfer channel.
func (e *Engine) Close() {
	e.Stop()
	if e.mode == ModeDMA && e.channel >= 0 {
		e.xfer.ReleaseChannel()
		e.channel = -1
	}
}

// onTransferComplete runs in the transfer context. It publishes the
// filled buffer, picks the refill target and re-arms the transfer.
func (e *Engine) onTransferComplete() {
	if !e.sampling.Load() {
		return
	}

	e.samples.Add(uint64(e.size))
	e.updateDMARate()

	filled := e.current
	if old := e.ready.Swap(filled); old != nil {
		// Consumer never took the previous block. Reclaim it for the
		// next fill; its contents are overwritten.
		e.overruns.Add(1)
		e.current = old
	} else {
		e.current = e.other(filled)
	}

	e.xfer.Program(e.current.Samples, e.size, true)
}

func (e *Engine) other(b *SampleBuffer) *SampleBuffer {
	if b == e.ping {
		return e.pong
	}
	return e.ping
}

func (e *Engine) updateDMARate() {
	now := time.Now().UnixNano()
	prev := e.lastCompletion.Swap(now)
	if prev == 0 {
		return
	}
	dt := float64(now-prev) / float64(time.Second)
	if dt <= 0 {
		return
	}
	e.setMeasuredRate(float64(e.size) / dt)
}

// IsReady reports whether a full block is available. In polled mode a
// return of true means the block was just acquired inline: each sample
// read is paced against the nominal sample clock, and the measured
// rate is folded into an exponential moving average.
func (e *Engine) IsReady() bool {
	if !e.sampling.Load() {
		return false
	}

	switch e.mode {
	case ModeDMA:
		return e.ready.Load() != nil
	case ModePolled:
		return e.acquirePolled()
	}
	return false
}

func (e *Engine) acquirePolled() bool {
	if e.ready.Load() != nil {
		return true
	}

	interval := time.Duration(float64(time.Second) / e.rate)
	buf := e.current
	start := time.Now()
	for i := 0; i < e.size; i++ {
		buf.Samples[i] = e.conv.ReadSample()
		next := start.Add(time.Duration(i+1) * interval)
		if d := time.Until(next); d > 0 {
			time.Sleep(d)
		}
	}
	elapsed := time.Since(start).Seconds()
	e.samples.Add(uint64(e.size))

	if elapsed > 0 {
		instant := float64(e.size) / elapsed
		prev := e.getMeasuredRate()
		if prev == 0 {
			e.setMeasuredRate(instant)
		} else {
			e.setMeasuredRate(prev*(1-rateSmoothing) + instant*rateSmoothing)
		}
	}

	e.ready.Store(buf)
	e.current = e.other(buf)
	return true
}

// Ready returns the pending block without consuming it, or nil.
func (e *Engine) Ready() *SampleBuffer {
	return e.ready.Load()
}

// Release hands a processed block back to the producer. If the slot
// has already been overwritten by a newer block the release is a no-op
// and that newer block stays pending.
func (e *Engine) Release(buf *SampleBuffer) {
	e.ready.CompareAndSwap(buf, nil)
}

// TotalSamples reports samples acquired since the last Start or
// ResetCounters.
func (e *Engine) TotalSamples() uint64 { return e.samples.Load() }

// Overruns reports blocks overwritten before consumption.
func (e *Engine) Overruns() uint64 { return e.overruns.Load() }

// MeasuredRate reports the estimated delivered sample rate in Hz.
func (e *Engine) MeasuredRate() float64 { return e.getMeasuredRate() }

// ResetCounters zeroes the sample and overrun counters and restarts
// the rate measurement window.
func (e *Engine) ResetCounters() {
	e.samples.Store(0)
	e.overruns.Store(0)
	e.startTime = time.Now()
	e.lastCompletion.Store(0)
}

func (e *Engine) setMeasuredRate(v float64) {
	e.measuredRate.Store(math.Float64bits(v))
}

func (e *Engine) getMeasuredRate() float64 {
	return math.Float64frombits(e.measuredRate.Load())
}
