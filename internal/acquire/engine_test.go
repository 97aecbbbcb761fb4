// SPDX-License-Identifier: MIT
package acquire

import (
	"errors"
	"testing"

	"specan/internal/adc"
)

// fakeHardware drives the converter and transfer surfaces by hand so
// completions happen exactly when a test fires them.
type fakeHardware struct {
	nextSample uint16
	rate       float64
	starts     int
	stops      int

	claimErr   error
	claimed    int
	released   bool
	handler    adc.CompletionHandler
	dest       []uint16
	count      int
	programmed int
	aborted    bool
}

var _ adc.Converter = (*fakeHardware)(nil)
var _ adc.TransferController = (*fakeHardware)(nil)

func (f *fakeHardware) ReadSample() uint16 {
	f.nextSample++
	return f.nextSample
}

func (f *fakeHardware) ConfigureClockDivider(rate float64) { f.rate = rate }
func (f *fakeHardware) StartConversion(continuous bool)    { f.starts++ }
func (f *fakeHardware) StopConversion()                    { f.stops++ }

func (f *fakeHardware) ClaimChannel(channel int) (int, error) {
	if f.claimErr != nil {
		return -1, f.claimErr
	}
	if channel >= 0 {
		f.claimed = channel
	} else {
		f.claimed = 0
	}
	return f.claimed, nil
}

func (f *fakeHardware) ReleaseChannel() { f.released = true }

func (f *fakeHardware) RegisterCompletionHandler(fn adc.CompletionHandler) {
	f.handler = fn
}

func (f *fakeHardware) Program(dest []uint16, count int, autostart bool) {
	f.dest = dest
	f.count = count
	f.programmed++
}

func (f *fakeHardware) Abort() { f.aborted = true }

// complete fills the armed buffer with a marker value and fires the
// completion handler, standing in for the transfer interrupt.
func (f *fakeHardware) complete(t *testing.T, marker uint16) {
	t.Helper()
	if f.handler == nil {
		t.Fatal("no completion handler registered")
	}
	for i := range f.dest {
		f.dest[i] = marker
	}
	f.handler()
}

func newDMAEngine(t *testing.T, size int) (*Engine, *fakeHardware) {
	t.Helper()
	hw := &fakeHardware{}
	e, err := NewEngine(ModeDMA, size, 128000, hw, hw, -1)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e, hw
}

func TestDMABlockHandoff(t *testing.T) {
	e, hw := newDMAEngine(t, 8)
	e.Start()
	defer e.Close()

	if e.Ready() != nil {
		t.Fatal("block ready before any transfer completed")
	}

	hw.complete(t, 111)
	buf := e.Ready()
	if buf == nil {
		t.Fatal("no block ready after transfer completion")
	}
	for i, s := range buf.Samples {
		if s != 111 {
			t.Fatalf("Samples[%d] = %d, want 111", i, s)
		}
	}

	// The refill target must be the other buffer.
	if &hw.dest[0] == &buf.Samples[0] {
		t.Fatal("refill programmed into the block still pending consumption")
	}

	e.Release(buf)
	if e.Ready() != nil {
		t.Fatal("block still ready after release")
	}
	if got := e.TotalSamples(); got != 8 {
		t.Errorf("TotalSamples() = %d, want 8", got)
	}
}

func TestDMAOverrunReclaimsBuffer(t *testing.T) {
	e, hw := newDMAEngine(t, 4)
	e.Start()
	defer e.Close()

	hw.complete(t, 1)
	first := e.Ready()

	// Consumer never takes the block; the next completion overwrites
	// the slot and reclaims the stale buffer for refill.
	hw.complete(t, 2)
	if got := e.Overruns(); got != 1 {
		t.Fatalf("Overruns() = %d, want 1", got)
	}
	second := e.Ready()
	if second == nil || second.Samples[0] != 2 {
		t.Fatal("ready slot does not hold the newest block")
	}
	if &hw.dest[0] != &first.Samples[0] {
		t.Fatal("stale block was not reclaimed as the refill target")
	}

	hw.complete(t, 3)
	if got := e.Overruns(); got != 2 {
		t.Errorf("Overruns() = %d, want 2", got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	e, hw := newDMAEngine(t, 4)

	e.Start()
	e.Start()
	if hw.starts != 1 {
		t.Errorf("conversions started %d times, want 1", hw.starts)
	}

	e.Stop()
	e.Stop()
	if hw.stops != 1 {
		t.Errorf("conversions stopped %d times, want 1", hw.stops)
	}
	if !hw.aborted {
		t.Error("in-flight transfer was not aborted on stop")
	}
}

func TestReleaseOfStaleBlockIsNoOp(t *testing.T) {
	e, hw := newDMAEngine(t, 4)
	e.Start()
	defer e.Close()

	hw.complete(t, 1)
	stale := e.Ready()
	hw.complete(t, 2)

	e.Release(stale)
	if e.Ready() == nil {
		t.Fatal("releasing a superseded block must not clear the newer one")
	}
}

func TestChannelClaimFailure(t *testing.T) {
	hw := &fakeHardware{claimErr: adc.ErrNoChannel}
	if _, err := NewEngine(ModeDMA, 4, 128000, hw, hw, -1); !errors.Is(err, adc.ErrNoChannel) {
		t.Fatalf("NewEngine() error = %v, want ErrNoChannel", err)
	}
}

func TestFixedChannelClaim(t *testing.T) {
	hw := &fakeHardware{}
	e, err := NewEngine(ModeDMA, 4, 128000, hw, hw, 3)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if hw.claimed != 3 {
		t.Errorf("claimed channel %d, want 3", hw.claimed)
	}
	e.Close()
	if !hw.released {
		t.Error("channel not released on close")
	}
}

func TestPolledAcquisition(t *testing.T) {
	hw := &fakeHardware{}
	// High nominal rate keeps the pacing sleeps negligible.
	e, err := NewEngine(ModePolled, 32, 1e7, hw, hw, -1)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.Start()
	defer e.Close()

	if !e.IsReady() {
		t.Fatal("polled IsReady() = false, want inline acquisition")
	}
	buf := e.Ready()
	if buf == nil {
		t.Fatal("no block after polled acquisition")
	}
	for i, s := range buf.Samples {
		if s != uint16(i+1) {
			t.Fatalf("Samples[%d] = %d, want %d", i, s, i+1)
		}
	}

	// A pending block must not trigger another inline acquisition.
	if !e.IsReady() {
		t.Fatal("IsReady() = false with a block pending")
	}
	if got := e.TotalSamples(); got != 32 {
		t.Fatalf("TotalSamples() = %d, want 32", got)
	}

	e.Release(buf)
	if !e.IsReady() {
		t.Fatal("second acquisition failed after release")
	}
	if e.Ready() == buf {
		t.Error("second block reused the unreleased half of the pair")
	}
	if e.MeasuredRate() <= 0 {
		t.Error("measured rate not updated by polled acquisition")
	}
}

func TestResetCounters(t *testing.T) {
	e, hw := newDMAEngine(t, 4)
	e.Start()
	defer e.Close()

	hw.complete(t, 1)
	hw.complete(t, 2)
	e.ResetCounters()

	if e.TotalSamples() != 0 || e.Overruns() != 0 {
		t.Errorf("counters = (%d, %d) after reset, want (0, 0)", e.TotalSamples(), e.Overruns())
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"dma", ModeDMA, false},
		{"polled", ModePolled, false},
		{"irq", ModeDMA, true},
		{"", ModeDMA, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
