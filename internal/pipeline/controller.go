// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"specan/internal/acquire"
	"specan/internal/dsp"
	applog "specan/internal/log"
	"specan/internal/transport"
)

// Status describes the controller state.
type Status int32

const (
	StatusIdle Status = iota
	StatusSampling
	StatusDataReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSampling:
		return "sampling"
	case StatusDataReady:
		return "data-ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// How often the run loop reports status, in frames.
const statusInterval = 100

// RawRecorder receives every raw sample block the pipeline processes,
// before any analysis. WriteBlock must not retain the slice.
type RawRecorder interface {
	WriteBlock(samples []uint16) error
}

// Telemetry is a point-in-time snapshot of pipeline counters.
type Telemetry struct {
	Mode             string
	Status           string
	MeasuredRate     float64
	TotalSamples     uint64
	Overruns         uint64
	Frames           uint64
	ProcessingErrors uint64
	ActualFPS        float64
}

// Controller drives the acquire-analyze-publish cycle. One block is in
// flight at a time: Process hands out a frame and holds the source
// block until CompleteProcessing releases it, so a caller that forgets
// to complete sees the pipeline as not ready rather than a torn frame.
type Controller struct {
	engine    *acquire.Engine
	estimator *dsp.Estimator
	targetFPS int

	sinks    []transport.Sink
	recorder RawRecorder

	status atomic.Int32

	// pending is the block backing the frame handed out by Process,
	// held until CompleteProcessing. Accessed from the run loop only.
	pending *acquire.SampleBuffer

	frameMu sync.Mutex
	frame   *dsp.Frame

	frames     atomic.Uint64
	procErrors atomic.Uint64

	// actualFPS holds a float64 as bits, updated by the run loop.
	actualFPS atomic.Uint64
}

// New wires an acquisition engine and estimator into a controller.
// targetFPS <= 0 disables pacing in Run.
func New(engine *acquire.Engine, estimator *dsp.Estimator, targetFPS int) *Controller {
	c := &Controller{
		engine:    engine,
		estimator: estimator,
		targetFPS: targetFPS,
	}
	c.status.Store(int32(StatusIdle))
	return c
}

// AddSink registers a frame consumer. Not safe to call once Run has
// started.
func (c *Controller) AddSink(s transport.Sink) {
	c.sinks = append(c.sinks, s)
}

// SetRecorder installs a raw-block recorder. Not safe to call once Run
// has started.
func (c *Controller) SetRecorder(r RawRecorder) {
	c.recorder = r
}

// Status reports the current controller state.
func (c *Controller) Status() Status {
	return Status(c.status.Load())
}

// Start begins acquisition. No-op when already sampling.
func (c *Controller) Start() {
	if c.Status() != StatusIdle && c.Status() != StatusError {
		return
	}
	c.engine.Start()
	c.frames.Store(0)
	c.procErrors.Store(0)
	c.status.Store(int32(StatusSampling))
}

// Stop halts acquisition and drops any in-flight block.
func (c *Controller) Stop() {
	if c.pending != nil {
		c.engine.Release(c.pending)
		c.pending = nil
	}
	c.engine.Stop()
	c.status.Store(int32(StatusIdle))
}

// IsReady reports whether Process would produce a frame now. A frame
// pending CompleteProcessing blocks readiness.
func (c *Controller) IsReady() bool {
	if c.pending != nil {
		return false
	}
	return c.engine.IsReady()
}

// Process converts the next full sample block into a spectrum frame.
// Returns dsp.ErrNotReady when no block is available or a previous
// frame has not been completed. The returned frame is valid until the
// next Process call.
func (c *Controller) Process() (*dsp.Frame, error) {
	if !c.IsReady() {
		return nil, dsp.ErrNotReady
	}

	buf := c.engine.Ready()
	if buf == nil {
		return nil, dsp.ErrNotReady
	}

	if c.recorder != nil {
		if err := c.recorder.WriteBlock(buf.Samples); err != nil {
			applog.Warnf("pipeline: raw recorder error: %v", err)
		}
	}

	frame, err := c.estimator.Estimate(buf.Samples)
	if err != nil {
		c.procErrors.Add(1)
		c.engine.Release(buf)
		c.status.Store(int32(StatusError))
		return nil, err
	}
	c.pending = buf
	c.frameMu.Lock()
	c.frame = frame
	c.frameMu.Unlock()
	c.frames.Add(1)
	c.status.Store(int32(StatusDataReady))
	return frame, nil
}

// CompleteProcessing releases the block behind the last frame, letting
// acquisition reuse it and re-arming Process.
func (c *Controller) CompleteProcessing() {
	if c.pending == nil {
		return
	}
	c.engine.Release(c.pending)
	c.pending = nil
	if c.Status() == StatusDataReady {
		c.status.Store(int32(StatusSampling))
	}
}

// Frame returns the most recent spectrum frame, or nil before the
// first Process.
func (c *Controller) Frame() *dsp.Frame {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	return c.frame
}

// ResetCounters zeroes frame, error and acquisition counters.
func (c *Controller) ResetCounters() {
	c.frames.Store(0)
	c.procErrors.Store(0)
	c.engine.ResetCounters()
}

// Telemetry snapshots the pipeline counters.
func (c *Controller) Telemetry() Telemetry {
	return Telemetry{
		Mode:             c.engine.Mode().String(),
		Status:           c.Status().String(),
		MeasuredRate:     c.engine.MeasuredRate(),
		TotalSamples:     c.engine.TotalSamples(),
		Overruns:         c.engine.Overruns(),
		Frames:           c.frames.Load(),
		ProcessingErrors: c.procErrors.Load(),
		ActualFPS:        c.getActualFPS(),
	}
}

// Run drives the pipeline until the context is cancelled: start
// acquisition, then process, publish and complete frames at the target
// rate. Blocks the calling goroutine.
func (c *Controller) Run(ctx context.Context) error {
	c.Start()
	defer c.Stop()

	var interval time.Duration
	if c.targetFPS > 0 {
		interval = time.Second / time.Duration(c.targetFPS)
	}

	applog.Infof("pipeline: running (%s mode, target %d fps)", c.engine.Mode(), c.targetFPS)

	start := time.Now()
	var lastOverruns uint64
	next := start

	for {
		select {
		case <-ctx.Done():
			applog.Infof("pipeline: shutting down")
			return ctx.Err()
		default:
		}

		frame, err := c.Process()
		switch err {
		case nil:
			c.publish(frame)
			c.CompleteProcessing()

			n := c.frames.Load()
			if elapsed := time.Since(start).Seconds(); elapsed > 0 {
				c.setActualFPS(float64(n) / elapsed)
			}
			if n%statusInterval == 0 {
				tel := c.Telemetry()
				applog.Infof("pipeline: %d frames, %.1f fps, %.0f Hz delivered, %d overruns",
					tel.Frames, tel.ActualFPS, tel.MeasuredRate, tel.Overruns)
				if tel.Overruns > lastOverruns {
					applog.Warnf("pipeline: %d overruns since last report, consumer too slow",
						tel.Overruns-lastOverruns)
					lastOverruns = tel.Overruns
				}
			}
		case dsp.ErrNotReady:
			// Nothing to do this tick.
		default:
			applog.Errorf("pipeline: processing error: %v", err)
		}

		if interval > 0 {
			next = next.Add(interval)
			if d := time.Until(next); d > 0 {
				time.Sleep(d)
			} else {
				// Fell behind; rebase rather than burst.
				next = time.Now()
			}
		}
	}
}

func (c *Controller) publish(frame *dsp.Frame) {
	for _, sink := range c.sinks {
		if err := sink.Publish(frame); err != nil {
			applog.Warnf("pipeline: sink publish error: %v", err)
		}
	}
}

func (c *Controller) setActualFPS(v float64) {
	c.actualFPS.Store(math.Float64bits(v))
}

func (c *Controller) getActualFPS() float64 {
	return math.Float64frombits(c.actualFPS.Load())
}
