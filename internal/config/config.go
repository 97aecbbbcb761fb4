// Package config holds the analyzer configuration: compile-time defaults
// mirroring the hardware calibration constants, plus YAML file loading
// and environment overrides.
package config

// Core constants that define the boundaries and defaults for the
// acquisition and spectral estimation pipeline.
const (
	// Default values for the acquisition engine
	DefaultSampleRate    = 128000 // Target sampling rate (Hz)
	DefaultTransformSize = 1024   // Samples per spectral estimate (power of 2)
	DefaultMode          = "dma"  // "dma" or "polled"
	DefaultSource        = "sim"  // "sim" or "portaudio"
	DefaultDMAChannel    = -1     // -1 selects any free transfer channel
	DefaultTargetFPS     = 30     // Display frame budget

	// ADC front-end defaults (12-bit converter referenced to 3.3 V,
	// input biased to mid-scale)
	DefaultADCReferenceVoltage = 3.3
	DefaultADCOffsetVoltage    = 1.65
	DefaultADCResolutionBits   = 12

	// Calibration defaults. 0 dBm into 75 ohm is 0.274 Vrms
	// (sqrt(0.001 W * 75 ohm)).
	DefaultCalibrationVoltage = 0.274
	DefaultSourceImpedance    = 75.0
	DefaultInputImpedance     = 100000.0
	DefaultWindow             = "Rectangle"

	// Hardware and processing limits
	MinSampleRate     = 1000   // Minimum usable rate (Hz)
	MaxSampleRate     = 500000 // Upper bound for the converter clock
	MaxTransformSize  = 8192   // Largest supported transform
	MinResolutionBits = 8      // Narrowest supported converter
	MaxResolutionBits = 16     // Widest supported converter
)

// Config is the root configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Verbose logging and debug features.
	LogLevel  string          `yaml:"log_level"`         // Logging level ("debug", "info", "warn", "error").
	Command   string          `yaml:"command,omitempty"` // One-off command instead of running the pipeline (e.g. "windows").
	Acquire   AcquireConfig   `yaml:"acquire"`           // Sampling engine settings.
	ADC       ADCConfig       `yaml:"adc"`               // Converter front-end characteristics.
	Analysis  AnalysisConfig  `yaml:"analysis"`          // Windowing and calibration settings.
	Capture   CaptureConfig   `yaml:"capture"`           // Raw sample recording settings.
	Transport TransportConfig `yaml:"transport"`         // Spectrum feed settings (WebSocket/UDP).
}

// AcquireConfig holds settings for the sample acquisition engine.
type AcquireConfig struct {
	Mode          string  `yaml:"mode"`           // "dma" (continuous transfers) or "polled" (timed reads).
	Source        string  `yaml:"source"`         // "sim" (synthetic converter) or "portaudio" (capture device).
	InputDevice   int     `yaml:"input_device"`   // PortAudio device index (-1 for default), portaudio source only.
	SampleRate    float64 `yaml:"sample_rate"`    // Target sampling rate in Hz.
	TransformSize int     `yaml:"transform_size"` // Samples per buffer; must be a power of two.
	DMAChannel    int     `yaml:"dma_channel"`    // Fixed transfer channel, or -1 for automatic selection.
	TargetFPS     int     `yaml:"target_fps"`     // Frame pacing for the foreground processing loop.
}

// ADCConfig describes the converter front end. Volts-per-count and the
// digital midpoint are derived from these.
type ADCConfig struct {
	ReferenceVoltage float64 `yaml:"reference_voltage"` // Full-scale voltage (V).
	OffsetVoltage    float64 `yaml:"offset_voltage"`    // DC bias applied to the input (V).
	ResolutionBits   int     `yaml:"resolution_bits"`   // Converter width in bits.
}

// AnalysisConfig holds windowing and calibration settings for the
// spectral estimator.
type AnalysisConfig struct {
	Window             string  `yaml:"window"`              // Analysis window name (e.g. "Hann", "Flat-Top").
	CalibrationVoltage float64 `yaml:"calibration_voltage"` // Voltage corresponding to 0 dB (V).
	SourceImpedance    float64 `yaml:"source_impedance"`    // Signal source impedance (ohm).
	InputImpedance     float64 `yaml:"input_impedance"`     // Converter input impedance (ohm).
}

// CaptureConfig holds settings for recording raw acquired buffers to WAV.
type CaptureConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record raw sample buffers to file.
	OutputDir string `yaml:"output_dir"` // Directory for capture files.
	BitDepth  int    `yaml:"bit_depth"`  // Bit depth written to the WAV file (16 or 24).
}

// TransportConfig holds settings for publishing spectral frames.
type TransportConfig struct {
	WebSocketEnabled  bool   `yaml:"websocket_enabled"`    // Serve frames to WebSocket viewers.
	WebSocketPort     string `yaml:"websocket_port"`       // Port for the WebSocket listener.
	UDPEnabled        bool   `yaml:"udp_enabled"`          // Send binary frame packets over UDP.
	UDPTargetAddress  string `yaml:"udp_target_address"`   // Target "host:port" for UDP packets.
	UDPSendIntervalMS int    `yaml:"udp_send_interval_ms"` // Interval between UDP packets in milliseconds.
}

// Default returns a Config populated with the built-in calibration
// constants. This is the base before file loading and env overrides.
func Default() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Acquire: AcquireConfig{
			Mode:          DefaultMode,
			Source:        DefaultSource,
			InputDevice:   -1,
			SampleRate:    DefaultSampleRate,
			TransformSize: DefaultTransformSize,
			DMAChannel:    DefaultDMAChannel,
			TargetFPS:     DefaultTargetFPS,
		},
		ADC: ADCConfig{
			ReferenceVoltage: DefaultADCReferenceVoltage,
			OffsetVoltage:    DefaultADCOffsetVoltage,
			ResolutionBits:   DefaultADCResolutionBits,
		},
		Analysis: AnalysisConfig{
			Window:             DefaultWindow,
			CalibrationVoltage: DefaultCalibrationVoltage,
			SourceImpedance:    DefaultSourceImpedance,
			InputImpedance:     DefaultInputImpedance,
		},
		Capture: CaptureConfig{
			Enabled:   false,
			OutputDir: "./captures",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			WebSocketEnabled:  false,
			WebSocketPort:     "8080",
			UDPEnabled:        false,
			UDPTargetAddress:  "127.0.0.1:9090",
			UDPSendIntervalMS: 33, // ~30 Hz
		},
	}
}

// VoltsPerCount returns the physical voltage represented by one digital
// count of the converter.
func (c *ADCConfig) VoltsPerCount() float64 {
	return c.ReferenceVoltage / float64(int(1)<<c.ResolutionBits)
}

// MidpointCount returns the digital code corresponding to the converter
// midpoint (half of full scale).
func (c *ADCConfig) MidpointCount() uint16 {
	return uint16(1 << (c.ResolutionBits - 1))
}

// FullScaleCount returns the largest digital code the converter produces.
func (c *ADCConfig) FullScaleCount() uint16 {
	return uint16(int(1)<<c.ResolutionBits - 1)
}

// ImpedanceCorrection returns the fixed voltage-divider correction
// factor (Rin + Rsource) / Rin applied before dB conversion.
func (c *AnalysisConfig) ImpedanceCorrection() float64 {
	if c.InputImpedance <= 0 {
		return 1.0
	}
	return (c.InputImpedance + c.SourceImpedance) / c.InputImpedance
}
