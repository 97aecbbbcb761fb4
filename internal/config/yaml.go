package config

import (
	"fmt"
	"os"
	"strconv"

	"specan/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file at path. If path is empty it
// searches the default location ("config.yaml"); if no file is found the
// built-in defaults are used. Environment overrides are applied after
// loading, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
		}
		found := false
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				found = true
				break
			}
		}
		if !found {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Env overrides win over the file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration invariants the pipeline depends on.
func (c *Config) Validate() error {
	if !bitint.IsPowerOfTwo(c.Acquire.TransformSize) || c.Acquire.TransformSize < 2 {
		return fmt.Errorf("acquire.transform_size must be a power of two >= 2, got %d", c.Acquire.TransformSize)
	}
	if c.Acquire.TransformSize > MaxTransformSize {
		return fmt.Errorf("acquire.transform_size %d exceeds maximum %d", c.Acquire.TransformSize, MaxTransformSize)
	}
	if c.Acquire.SampleRate < MinSampleRate || c.Acquire.SampleRate > MaxSampleRate {
		return fmt.Errorf("acquire.sample_rate %.1f outside supported range [%d, %d]", c.Acquire.SampleRate, MinSampleRate, MaxSampleRate)
	}
	switch c.Acquire.Mode {
	case "dma", "polled":
	default:
		return fmt.Errorf("acquire.mode must be \"dma\" or \"polled\", got %q", c.Acquire.Mode)
	}
	switch c.Acquire.Source {
	case "sim", "portaudio":
	default:
		return fmt.Errorf("acquire.source must be \"sim\" or \"portaudio\", got %q", c.Acquire.Source)
	}
	if c.ADC.ResolutionBits < MinResolutionBits || c.ADC.ResolutionBits > MaxResolutionBits {
		return fmt.Errorf("adc.resolution_bits %d outside supported range [%d, %d]", c.ADC.ResolutionBits, MinResolutionBits, MaxResolutionBits)
	}
	if c.ADC.ReferenceVoltage <= 0 {
		return fmt.Errorf("adc.reference_voltage must be positive, got %f", c.ADC.ReferenceVoltage)
	}
	if c.Analysis.CalibrationVoltage <= 0 {
		return fmt.Errorf("analysis.calibration_voltage must be positive, got %f", c.Analysis.CalibrationVoltage)
	}
	if c.Capture.Enabled && c.Capture.BitDepth != 16 && c.Capture.BitDepth != 24 {
		return fmt.Errorf("capture.bit_depth must be 16 or 24, got %d", c.Capture.BitDepth)
	}
	return nil
}

// applyEnvOverrides applies SPECAN_* environment variables on top of the
// loaded configuration.
func (cfg *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("SPECAN_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
		}
	}
	if val, ok := os.LookupEnv("SPECAN_MODE"); ok {
		cfg.Acquire.Mode = val
	}
	if val, ok := os.LookupEnv("SPECAN_SAMPLE_RATE"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Acquire.SampleRate = fVal
		}
	}
	if val, ok := os.LookupEnv("SPECAN_WINDOW"); ok {
		cfg.Analysis.Window = val
	}
	if val, ok := os.LookupEnv("SPECAN_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
		}
	}
	if val, ok := os.LookupEnv("SPECAN_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
	}
}
