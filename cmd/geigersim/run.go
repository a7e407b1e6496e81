package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/geigersim/internal/peripheral"
	"github.com/srg/geigersim/internal/transport/goble"
	"github.com/srg/geigersim/pkg/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Advertise the simulated sensor on the local Bluetooth adapter",
	Long: `Opens the local Bluetooth adapter, publishes the radiation and battery
services, and advertises until interrupted. Peripheral events are printed
as they happen.

Examples:
  # Advertise with defaults
  geigersim run

  # Custom name and a faster reading cadence
  geigersim run --name Counter --interval 200ms`,
	Args: cobra.NoArgs,
	RunE: runPeripheral,
}

var (
	runName     string
	runInterval time.Duration
)

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "Advertised device name (overrides config)")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Telemetry interval (overrides config)")
}

// applyPeripheralFlags copies the per-command overrides into cfg.
func applyPeripheralFlags(cmd *cobra.Command, cfg *config.Config, name string, interval time.Duration) {
	if cmd.Flags().Changed("name") {
		cfg.DeviceName = name
	}
	if cmd.Flags().Changed("interval") {
		cfg.TelemetryInterval = interval
	}
}

func peripheralOptions(cfg *config.Config, logger *logrus.Logger, sink peripheral.NotificationSink) []peripheral.Option {
	return []peripheral.Option{
		peripheral.WithLogger(logger),
		peripheral.WithSink(sink),
		peripheral.WithInterval(cfg.TelemetryInterval),
		peripheral.WithDeviceName(cfg.DeviceName),
	}
}

// startupPhases maps peripheral events to progress phases.
func startupPhases(setPhase func(string)) peripheral.SinkFunc {
	return func(message string) {
		switch {
		case message == "Bluetooth powered on":
			setPhase("Publishing services")
		case message == "Service started":
			setPhase("Starting advertiser")
		case message == "Advertising started":
			setPhase("Advertising")
		case strings.HasPrefix(message, "Error"), strings.HasPrefix(message, "Bluetooth"):
			setPhase("Failed")
		}
	}
}

func runPeripheral(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyPeripheralFlags(cmd, cfg, runName, runInterval)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Starting %s", cfg.DeviceName), "Opening adapter", "Advertising", "Failed")

	out := cmd.OutOrStdout()
	events, err := newEventPipeline(cfg, out, colorEnabled(cmd, out), logger, startupPhases(progress.Callback()))
	if err != nil {
		return err
	}
	defer events.Close()

	server := goble.NewServer(logger, cfg.RequestTimeout)
	defer func() {
		if err := server.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release bluetooth device")
		}
	}()

	p := peripheral.New(server, peripheralOptions(cfg, logger, events.sink)...)
	defer func() { _ = p.Close() }()

	fmt.Fprintln(cmd.ErrOrStderr(), "Press Ctrl+C to stop...")
	progress.Start()
	defer progress.Stop()

	if err := server.Open(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	progress.Stop()

	logger.Info("Shutting down")
	return nil
}
