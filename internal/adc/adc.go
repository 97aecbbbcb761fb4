// SPDX-License-Identifier: MIT
/*
Package adc defines the hardware surface the acquisition engine
consumes: a sample converter and a block-transfer controller. Two
implementations are provided: a deterministic simulated source and a
PortAudio-backed capture device whose stream callback plays the role of
the transfer-completion interrupt.
*/
package adc

import "errors"

// ErrNoChannel is returned when a transfer channel cannot be claimed.
// Channel claim failure is fatal to engine initialization.
var ErrNoChannel = errors.New("adc: no transfer channel available")

// Converter is the analog-to-digital peripheral surface.
type Converter interface {
	// ReadSample performs one conversion and returns the raw count.
	ReadSample() uint16

	// ConfigureClockDivider sets the conversion clock for the target
	// sampling rate.
	ConfigureClockDivider(sampleRate float64)

	// StartConversion begins converting; continuous selects
	// free-running mode feeding the transfer controller.
	StartConversion(continuous bool)

	// StopConversion halts the converter.
	StopConversion()
}

// CompletionHandler runs in the transfer context when a programmed
// block transfer finishes. It must not block; the engine uses it to
// swap buffers and re-arm the next transfer.
type CompletionHandler func()

// TransferController moves blocks of conversions into memory with no
// foreground involvement.
type TransferController interface {
	// ClaimChannel reserves a transfer channel. Passing -1 selects any
	// free channel; requesting a fixed channel that is unavailable
	// returns ErrNoChannel. Returns the claimed channel number.
	ClaimChannel(channel int) (int, error)

	// ReleaseChannel returns the claimed channel.
	ReleaseChannel()

	// RegisterCompletionHandler installs the handler invoked on
	// transfer completion. Must be called before the first Program.
	RegisterCompletionHandler(fn CompletionHandler)

	// Program arms a transfer of count conversions into dest. With
	// autostart the transfer begins immediately; the completion
	// handler typically re-arms from within the transfer context so
	// sampling continues without a gap.
	Program(dest []uint16, count int, autostart bool)

	// Abort cancels any in-flight transfer. The completion handler is
	// not invoked for an aborted transfer.
	Abort()
}
