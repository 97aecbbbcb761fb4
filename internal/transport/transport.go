package transport

import (
	applog "specan/internal/log"

	"specan/internal/dsp"
)

// Sink receives finished spectrum frames. Implementations must be
// safe for use from the pipeline loop and must not retain the frame
// past the Publish call; the underlying storage is reused.
type Sink interface {
	Publish(frame *dsp.Frame) error
	Close() error
}

// LoggingSink reports peak bin information at debug level. Useful when
// running headless without any network consumers.
type LoggingSink struct{}

func NewLoggingSink() *LoggingSink {
	return &LoggingSink{}
}

func (ls *LoggingSink) Publish(frame *dsp.Frame) error {
	peak := 0
	for i, m := range frame.MagnitudesDB {
		if m > frame.MagnitudesDB[peak] {
			peak = i
		}
	}
	applog.Debugf("transport: peak %.1f Hz at %.2f dB",
		frame.BinFrequency(peak), frame.MagnitudesDB[peak])
	return nil
}

func (ls *LoggingSink) Close() error { return nil }

var _ Sink = (*LoggingSink)(nil)
