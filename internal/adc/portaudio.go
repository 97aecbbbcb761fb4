// SPDX-License-Identifier: MIT
package adc

import (
	"fmt"
	"sync/atomic"

	applog "specan/internal/log"

	"github.com/gordonklaus/portaudio"
)

// Initialize sets up the PortAudio subsystem. Must be called before any
// capture operations and paired with Terminate.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem. Defer immediately after
// Initialize.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// PortAudio adapts a capture device to the converter surface. The
// stream callback is the transfer context: it fills the programmed
// destination buffer and fires the completion handler when the count is
// reached, with no foreground involvement. This is the same contract a
// hardware transfer engine provides.
type PortAudio struct {
	deviceID int
	bits     int
	rate     float64

	device *portaudio.DeviceInfo
	stream *portaudio.Stream

	// Transfer state. dest/fill are touched only by Program (called
	// before start or from the completion handler, which itself runs
	// in the callback) and by the callback; armed gates the callback.
	armed atomic.Bool
	dest  []uint16
	count int
	fill  int

	handler CompletionHandler

	// latest holds the most recent converted count for polled reads.
	latest atomic.Uint32
}

var _ Converter = (*PortAudio)(nil)
var _ TransferController = (*PortAudio)(nil)

// NewPortAudio resolves the capture device. deviceID -1 selects the
// system default input.
func NewPortAudio(deviceID, resolutionBits int) (*PortAudio, error) {
	var device *portaudio.DeviceInfo
	var err error

	if deviceID == -1 {
		device, err = portaudio.DefaultInputDevice()
	} else {
		var devices []*portaudio.DeviceInfo
		devices, err = portaudio.Devices()
		if err == nil {
			if deviceID < 0 || deviceID >= len(devices) {
				return nil, fmt.Errorf("invalid device ID: %d", deviceID)
			}
			device = devices[deviceID]
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve capture device: %w", err)
	}

	return &PortAudio{
		deviceID: deviceID,
		bits:     resolutionBits,
		rate:     device.DefaultSampleRate,
		device:   device,
	}, nil
}

// ReadSample returns the most recent converted count. The stream must
// be running (StartConversion).
func (p *PortAudio) ReadSample() uint16 {
	return uint16(p.latest.Load())
}

// ConfigureClockDivider sets the capture rate requested at stream open.
func (p *PortAudio) ConfigureClockDivider(sampleRate float64) {
	if sampleRate > 0 {
		p.rate = sampleRate
	}
}

// StartConversion opens and starts the capture stream. The callback
// begins running on PortAudio's thread immediately.
func (p *PortAudio) StartConversion(continuous bool) {
	if p.stream != nil {
		return
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   p.device,
			Latency:  p.device.DefaultLowInputLatency,
		},
		FramesPerBuffer: 0, // let PortAudio choose
		SampleRate:      p.rate,
	}

	stream, err := portaudio.OpenStream(params, p.process)
	if err != nil {
		applog.Errorf("portaudio: failed to open capture stream: %v", err)
		return
	}
	if err := stream.Start(); err != nil {
		applog.Errorf("portaudio: failed to start capture stream: %v", err)
		stream.Close()
		return
	}
	p.stream = stream
}

// StopConversion stops and closes the capture stream.
func (p *PortAudio) StopConversion() {
	if p.stream == nil {
		return
	}
	if err := p.stream.Stop(); err != nil {
		applog.Errorf("portaudio: failed to stop capture stream: %v", err)
	}
	if err := p.stream.Close(); err != nil {
		applog.Errorf("portaudio: failed to close capture stream: %v", err)
	}
	p.stream = nil
}

// process is the capture callback, the transfer context. Converts each
// int32 frame to an unsigned count of the configured width and fills
// the armed destination buffer.
func (p *PortAudio) process(in []int32) {
	shift := uint(32 - p.bits)
	for _, v := range in {
		// Signed full-scale to unsigned count: offset binary, then
		// truncate to the converter width.
		count := uint32(int64(v)+1<<31) >> shift
		p.latest.Store(count)

		if !p.armed.Load() {
			continue
		}
		p.dest[p.fill] = uint16(count)
		p.fill++
		if p.fill >= p.count {
			p.armed.Store(false)
			if p.handler != nil {
				p.handler()
			}
		}
	}
}

// ClaimChannel emulates a single-channel transfer engine. Channel 0 is
// the only channel; claiming it twice fails.
func (p *PortAudio) ClaimChannel(channel int) (int, error) {
	if channel > 0 {
		return -1, ErrNoChannel
	}
	return 0, nil
}

// ReleaseChannel is a no-op for the single emulated channel.
func (p *PortAudio) ReleaseChannel() {}

// RegisterCompletionHandler installs the transfer-completion handler.
func (p *PortAudio) RegisterCompletionHandler(fn CompletionHandler) {
	p.handler = fn
}

// Program arms the next block transfer. Safe to call from the
// completion handler: the callback is past the armed check for the
// current frame batch by the time the handler runs.
func (p *PortAudio) Program(dest []uint16, count int, autostart bool) {
	p.dest = dest
	p.count = count
	p.fill = 0
	if autostart {
		p.armed.Store(true)
	}
}

// Abort disarms the in-flight transfer.
func (p *PortAudio) Abort() {
	p.armed.Store(false)
}
