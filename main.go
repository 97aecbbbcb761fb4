// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"specan/cmd"
	"specan/internal/acquire"
	"specan/internal/adc"
	"specan/internal/capture"
	"specan/internal/config"
	"specan/internal/dsp"
	applog "specan/internal/log"
	"specan/internal/pipeline"
	"specan/internal/transport"
	"specan/internal/transport/udp"
	"specan/pkg/build"
)

// main is the entry point for the spectrum analyzer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Initialize the sample source and analysis chain
//
// 2. Concurrent Phase (Hot Path):
//   - Start the acquisition engine
//   - Run the process-publish loop at the target frame rate
//   - Feed spectrum frames to the configured transports
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop acquisition, flush any capture, close transports
//   - Report final telemetry
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	build.Initialize()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}

	// One-off commands that don't need the pipeline.
	if cfg.Command == "windows" {
		cmd.PrintWindows()
		return
	}

	conv, xfer, cleanup, err := newSource(cfg)
	if err != nil {
		applog.Fatalf("failed to initialize sample source: %v", err)
	}
	defer cleanup()

	mode, err := acquire.ParseMode(cfg.Acquire.Mode)
	if err != nil {
		applog.Fatalf("%v", err)
	}

	windowKind, err := dsp.ParseWindow(cfg.Analysis.Window)
	if err != nil {
		applog.Warnf("%v, using %s", err, windowKind)
	}
	window := dsp.NewTable(windowKind, cfg.Acquire.TransformSize)

	estimator, err := dsp.NewEstimator(cfg.Acquire.TransformSize, window, dsp.EstimatorConfig{
		SampleRate:          cfg.Acquire.SampleRate,
		VoltsPerCount:       cfg.ADC.VoltsPerCount(),
		CalibrationVoltage:  cfg.Analysis.CalibrationVoltage,
		ImpedanceCorrection: cfg.Analysis.ImpedanceCorrection(),
	})
	if err != nil {
		applog.Fatalf("failed to build spectral estimator: %v", err)
	}

	engine, err := acquire.NewEngine(mode, cfg.Acquire.TransformSize, cfg.Acquire.SampleRate,
		conv, xfer, cfg.Acquire.DMAChannel)
	if err != nil {
		applog.Fatalf("failed to build acquisition engine: %v", err)
	}
	defer engine.Close()

	controller := pipeline.New(engine, estimator, cfg.Acquire.TargetFPS)

	for _, sink := range newSinks(cfg) {
		controller.AddSink(sink)
		defer sink.Close()
	}

	if cfg.Capture.Enabled {
		recorder, err := newRecorder(cfg)
		if err != nil {
			applog.Fatalf("failed to initialize capture: %v", err)
		}
		defer recorder.Close()
		controller.SetRecorder(recorder)
	}

	applog.Infof("%s %s (%s, built %s)", build.GetBuildFlags().Name,
		build.GetBuildFlags().Version, build.GetBuildFlags().Commit, build.GetBuildFlags().Time)
	applog.Infof("analyzing %d-sample blocks at %.0f Hz, %s window",
		cfg.Acquire.TransformSize, cfg.Acquire.SampleRate, windowKind)

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := controller.Run(ctx); err != nil && err != context.Canceled {
		applog.Errorf("pipeline stopped with error: %v", err)
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	tel := controller.Telemetry()
	fmt.Printf("\n%d frames in %s mode, %.1f fps, %d samples, %d overruns, %d errors\n",
		tel.Frames, tel.Mode, tel.ActualFPS, tel.TotalSamples, tel.Overruns, tel.ProcessingErrors)
}

// newSource builds the converter and transfer controller for the
// configured sample source. The returned cleanup tears down anything
// the source needed at process level.
func newSource(cfg *config.Config) (adc.Converter, adc.TransferController, func(), error) {
	switch cfg.Acquire.Source {
	case "portaudio":
		if err := adc.Initialize(); err != nil {
			return nil, nil, nil, err
		}
		pa, err := adc.NewPortAudio(cfg.Acquire.InputDevice, cfg.ADC.ResolutionBits)
		if err != nil {
			adc.Terminate()
			return nil, nil, nil, err
		}
		return pa, pa, func() { adc.Terminate() }, nil
	default:
		// Synthetic tone at one sixteenth of the sample rate, mid-scale
		// biased, quarter-scale amplitude.
		sim := adc.NewSim(adc.SimConfig{
			Frequency: cfg.Acquire.SampleRate / 16,
			Amplitude: float64(cfg.ADC.MidpointCount()) / 2,
			Offset:    float64(cfg.ADC.MidpointCount()),
			FullScale: cfg.ADC.FullScaleCount(),
			Realtime:  true,
		})
		return sim, sim, func() {}, nil
	}
}

// newSinks builds the enabled frame transports.
func newSinks(cfg *config.Config) []transport.Sink {
	var sinks []transport.Sink

	if cfg.Transport.WebSocketEnabled {
		sinks = append(sinks, transport.NewWebSocketSink(":"+cfg.Transport.WebSocketPort))
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			applog.Errorf("udp transport disabled: %v", err)
		} else {
			interval := time.Duration(cfg.Transport.UDPSendIntervalMS) * time.Millisecond
			pub, err := udp.NewPublisher(interval, sender, cfg.Acquire.TransformSize/2)
			if err != nil {
				applog.Errorf("udp transport disabled: %v", err)
				sender.Close()
			} else {
				pub.Start()
				sinks = append(sinks, pub)
			}
		}
	}

	if len(sinks) == 0 {
		sinks = append(sinks, transport.NewLoggingSink())
	}
	return sinks
}

// newRecorder builds the raw-capture WAV recorder with a timestamped
// file name under the configured output directory.
func newRecorder(cfg *config.Config) (*capture.Recorder, error) {
	if err := os.MkdirAll(cfg.Capture.OutputDir, 0o755); err != nil {
		return nil, err
	}

	recorder, err := capture.NewRecorder(int(cfg.Acquire.SampleRate), cfg.Capture.BitDepth,
		cfg.ADC.ResolutionBits, cfg.Acquire.TransformSize)
	if err != nil {
		return nil, err
	}

	filename := filepath.Join(cfg.Capture.OutputDir,
		"capture-"+time.Now().UTC().Format("02-01-2006-150405")+".wav")
	if err := recorder.StartRecording(filename); err != nil {
		return nil, err
	}
	return recorder, nil
}
