// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"specan/internal/dsp"
	applog "specan/internal/log"
)

// packetMagic identifies spectrum packets on the wire.
const packetMagic uint32 = 0x53504543 // "SPEC"

// Publisher packs spectrum frames into a binary format and sends them
// over UDP at a fixed interval, decoupled from the analysis rate.
// Publish stores the latest frame; the publisher goroutine picks up
// whatever is current on each tick, so a slow network never stalls the
// pipeline and stale frames are simply re-sent.
type Publisher struct {
	sender   *Sender
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	sequenceNum uint32

	// latest holds a copy of the most recent frame, guarded by frameMu.
	frameMu    sync.Mutex
	latest     []float64
	sampleRate float64
	haveFrame  bool

	// Pre-allocated buffers for packet construction.
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher creates a Publisher sending at the given interval. An
// interval <= 0 defaults to 33ms (~30Hz).
func NewPublisher(interval time.Duration, sender *Sender, bins int) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if bins <= 0 {
		return nil, fmt.Errorf("udp publisher: invalid bin count %d", bins)
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		applog.Warnf("udp publisher: invalid interval, defaulting to %s", interval)
	}

	applog.Infof("udp publisher: initializing (interval %s, %d bins)", interval, bins)

	return &Publisher{
		sender:       sender,
		interval:     interval,
		latest:       make([]float64, bins),
		f32Buffer:    make([]float32, bins),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Publish stores a copy of the frame as the next payload. Implements
// the sink surface used by the pipeline.
func (p *Publisher) Publish(frame *dsp.Frame) error {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()

	if len(frame.MagnitudesDB) != len(p.latest) {
		return fmt.Errorf("udp publisher: frame has %d bins, want %d",
			len(frame.MagnitudesDB), len(p.latest))
	}
	copy(p.latest, frame.MagnitudesDB)
	p.sampleRate = frame.SampleRate
	p.haveFrame = true
	return nil
}

// Start launches the publishing goroutine. Safe to call on a running
// publisher; subsequent calls are no-ops.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("udp publisher: start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("udp publisher: goroutine started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine to terminate and waits for it.
// Safe to call multiple times.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

/*
Packet layout (LittleEndian):

	magic        uint32   0x53504543 ("SPEC")
	sequence     uint32   monotonically increasing
	sample rate  float32  delivered rate in Hz
	bin count    uint16   number of magnitudes (N)
	magnitudes   []float32  N values in dB
*/
func (p *Publisher) buildAndSendPacket() {
	p.frameMu.Lock()
	if !p.haveFrame {
		p.frameMu.Unlock()
		return
	}
	for i, v := range p.latest {
		p.f32Buffer[i] = float32(v)
	}
	rate := float32(p.sampleRate)
	p.frameMu.Unlock()

	p.sequenceNum++

	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.LittleEndian, packetMagic)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.LittleEndian, p.sequenceNum)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.LittleEndian, rate)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.LittleEndian, uint16(len(p.f32Buffer)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.LittleEndian, p.f32Buffer)
	}
	if err != nil {
		applog.Errorf("udp publisher: error packing packet: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		applog.Debugf("udp publisher: sent packet %d (%d bytes)",
			p.sequenceNum, p.packetBuffer.Len())
	}
}

// Close stops the publisher goroutine.
func (p *Publisher) Close() error {
	return p.Stop()
}
