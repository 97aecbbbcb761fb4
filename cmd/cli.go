// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"specan/internal/config"
	"specan/internal/dsp"
	"specan/pkg/build"
)

// ParseArgs builds the configuration from the config file and command
// line flags. Flags that were explicitly set override file values.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	options := config.Default()

	var (
		configPath string
		mode       string
		source     string
		device     int
		sampleRate float64
		size       int
		window     string
		verbose    bool
		wsEnabled  bool
		udpEnabled bool
		udpTarget  string
		record     bool
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Real-time spectrum analyzer",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("mode") {
				loaded.Acquire.Mode = mode
			}
			if flags.Changed("source") {
				loaded.Acquire.Source = source
			}
			if flags.Changed("device") {
				loaded.Acquire.InputDevice = device
			}
			if flags.Changed("sample-rate") {
				loaded.Acquire.SampleRate = sampleRate
			}
			if flags.Changed("size") {
				loaded.Acquire.TransformSize = size
			}
			if flags.Changed("window") {
				loaded.Analysis.Window = window
			}
			if flags.Changed("websocket") {
				loaded.Transport.WebSocketEnabled = wsEnabled
			}
			if flags.Changed("udp") {
				loaded.Transport.UDPEnabled = udpEnabled
			}
			if flags.Changed("udp-target") {
				loaded.Transport.UDPTargetAddress = udpTarget
			}
			if flags.Changed("record") {
				loaded.Capture.Enabled = record
			}
			if verbose {
				loaded.Debug = true
				loaded.LogLevel = "debug"
			}

			if err := loaded.Validate(); err != nil {
				return err
			}
			*options = *loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Windows command: list the available analysis windows.
	windowsCmd := &cobra.Command{
		Use:   "windows",
		Short: "List available analysis windows",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "windows"
		},
	}
	rootCmd.AddCommand(windowsCmd)

	// Acquisition configuration
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "",
		"Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&mode, "mode", "m", config.DefaultMode,
		"Acquisition mode: 'dma' (continuous transfers) or 'polled' (timed reads)")
	rootCmd.PersistentFlags().StringVarP(&source, "source", "i", config.DefaultSource,
		"Sample source: 'sim' (synthetic tone) or 'portaudio' (capture device)")
	rootCmd.PersistentFlags().IntVarP(&device, "device", "d", -1,
		"Capture device index for the portaudio source (-1 for default)")
	rootCmd.PersistentFlags().Float64VarP(&sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&size, "size", "n", config.DefaultTransformSize,
		"Samples per spectral estimate (power of two)")

	// Analysis configuration
	rootCmd.PersistentFlags().StringVarP(&window, "window", "w", config.DefaultWindow,
		"Analysis window. Use 'windows' command to see available kinds.")

	// Output configuration
	rootCmd.PersistentFlags().BoolVar(&wsEnabled, "websocket", false,
		"Serve spectrum frames to WebSocket clients")
	rootCmd.PersistentFlags().BoolVar(&udpEnabled, "udp", false,
		"Send binary spectrum packets over UDP")
	rootCmd.PersistentFlags().StringVar(&udpTarget, "udp-target", "127.0.0.1:9090",
		"Target host:port for UDP spectrum packets")
	rootCmd.PersistentFlags().BoolVarP(&record, "record", "r", false,
		"Record raw sample blocks to a WAV file")

	// Debug configuration
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// PrintWindows writes the available window kinds with their amplitude
// corrections to stdout.
func PrintWindows() {
	fmt.Println("Available analysis windows:")
	for _, kind := range dsp.Windows() {
		fmt.Printf("  %-16s amplitude correction %.4f\n", kind, kind.AmplitudeCorrection())
	}
}
