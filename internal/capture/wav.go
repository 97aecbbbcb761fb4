package capture

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "specan/internal/log"
)

// Recorder writes raw converter blocks to a WAV file so a capture can
// be replayed through offline analysis. Counts are re-biased from
// offset binary to signed PCM at the configured bit depth.
type Recorder struct {
	sampleRate    int
	bitDepth      int
	converterBits int
	blockSize     int

	mu          sync.Mutex
	isRecording atomic.Bool
	outputFile  *os.File
	encoder     *wav.Encoder
	sampleBuf   *audio.IntBuffer
}

// NewRecorder prepares a recorder for blocks of blockSize samples.
// bitDepth must be 16 or 24; converterBits is the width of the raw
// counts being captured.
func NewRecorder(sampleRate, bitDepth, converterBits, blockSize int) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported capture bit depth: %d", bitDepth)
	}
	if converterBits <= 0 || converterBits > 16 {
		return nil, fmt.Errorf("invalid converter resolution: %d bits", converterBits)
	}
	return &Recorder{
		sampleRate:    sampleRate,
		bitDepth:      bitDepth,
		converterBits: converterBits,
		blockSize:     blockSize,
	}, nil
}

// StartRecording opens the output file and begins accepting blocks.
func (r *Recorder) StartRecording(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRecording.Load() {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.outputFile = file

	r.encoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, 1, 1)

	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  r.sampleRate,
		},
		SourceBitDepth: r.bitDepth,
		Data:           make([]int, r.blockSize),
	}

	r.isRecording.Store(true)
	applog.Infof("capture: recording to %s (%d Hz, %d-bit)", filename, r.sampleRate, r.bitDepth)
	return nil
}

// WriteBlock appends one block of raw counts to the open capture. A
// no-op when not recording, so it can sit unconditionally in the
// processing path.
func (r *Recorder) WriteBlock(samples []uint16) error {
	if !r.isRecording.Load() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return nil
	}

	midpoint := 1 << (r.converterBits - 1)
	shift := uint(r.bitDepth - r.converterBits)

	n := len(samples)
	if n > len(r.sampleBuf.Data) {
		n = len(r.sampleBuf.Data)
	}
	for i := 0; i < n; i++ {
		r.sampleBuf.Data[i] = (int(samples[i]) - midpoint) << shift
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:n]

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("failed to write capture block: %w", err)
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:cap(r.sampleBuf.Data)]
	return nil
}

// StopRecording flushes and closes the capture file. Safe to call when
// not recording.
func (r *Recorder) StopRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRecording.Load() {
		return nil
	}
	r.isRecording.Store(false)

	if r.encoder != nil {
		if err := r.encoder.Close(); err != nil {
			return err
		}
		r.encoder = nil
	}

	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			return err
		}
		applog.Infof("capture: recording closed")
		r.outputFile = nil
	}
	return nil
}

// Close stops any active recording.
func (r *Recorder) Close() error {
	return r.StopRecording()
}
