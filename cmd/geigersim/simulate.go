package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/geigersim/internal/groutine"
	"github.com/srg/geigersim/internal/peripheral"
	"github.com/srg/geigersim/internal/transport/loopback"
	"github.com/srg/geigersim/pkg/config"
)

const advertiseWait = 2 * time.Second

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the sensor over an in-memory radio with scripted centrals",
	Long: `Runs the peripheral against an in-memory radio. Each virtual central
connects, runs the configured script and prints the readings it receives.

Script steps:
  subscribe            subscribe to radiation readings
  unsubscribe          cancel the subscription
  read                 read the battery level
  write <byte>         write a command (0 = standby, 1 = on)
  wait <duration>      pause, e.g. "wait 1500ms"

Examples:
  # Default script with one central
  geigersim simulate

  # Three centrals, custom script, print the event history at the end
  geigersim simulate --centrals 3 --step subscribe --step "wait 2s" --step "write 0" --history`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var (
	simCentrals   int
	simQueueDepth int
	simSteps      []string
	simInterval   time.Duration
	simName       string
	simHistory    bool
)

func init() {
	simulateCmd.Flags().IntVar(&simCentrals, "centrals", 0, "Number of virtual centrals (overrides config)")
	simulateCmd.Flags().IntVar(&simQueueDepth, "queue-depth", 0, "Notifications queued per central (overrides config)")
	simulateCmd.Flags().StringArrayVar(&simSteps, "step", nil, "Script step, repeatable (overrides config script)")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 0, "Telemetry interval (overrides config)")
	simulateCmd.Flags().StringVar(&simName, "name", "", "Advertised device name (overrides config)")
	simulateCmd.Flags().BoolVar(&simHistory, "history", false, "Print the retained event history on exit")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyPeripheralFlags(cmd, cfg, simName, simInterval)
	if cmd.Flags().Changed("centrals") {
		cfg.Loopback.Centrals = simCentrals
	}
	if cmd.Flags().Changed("queue-depth") {
		cfg.Loopback.QueueDepth = simQueueDepth
	}
	if len(simSteps) > 0 {
		cfg.Loopback.Script = simSteps
	}
	cfg.Transport = config.TransportLoopback
	if err := cfg.Validate(); err != nil {
		return err
	}

	script, err := loopback.ParseScript(cfg.Loopback.Script)
	if err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	events, err := newEventPipeline(cfg, out, colorEnabled(cmd, out), logger)
	if err != nil {
		return err
	}

	radio := loopback.NewRadio(logger, cfg.Loopback.QueueDepth)
	p := peripheral.New(radio, peripheralOptions(cfg, logger, events.sink)...)

	radio.SetPowerState(peripheral.PoweredOn)
	runErr := waitAdvertising(ctx, p, advertiseWait)
	var results []*centralRun
	if runErr == nil {
		results, runErr = runCentrals(ctx, radio, script, cfg.Loopback.Centrals, events, logger)
	}

	if err := p.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close peripheral")
	}
	events.Close()

	for _, r := range results {
		fmt.Fprintf(out, "Central %s received %d readings\n", shortID(r.central.ID()), r.readings)
	}
	if simHistory {
		events.printHistory(out)
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// waitAdvertising polls until the peripheral advertises or timeout expires.
func waitAdvertising(ctx context.Context, p *peripheral.Peripheral, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, err := p.Snapshot()
		if err != nil {
			return err
		}
		if st.Advertising {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrNotAdvertising
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type centralRun struct {
	central  *loopback.Central
	readings int
	err      error
}

// runCentrals connects n centrals, runs script on each and forwards received
// readings to the event sink. It returns once every script has finished.
func runCentrals(ctx context.Context, radio *loopback.Radio, script loopback.Script, n int, events *eventPipeline, logger *logrus.Logger) ([]*centralRun, error) {
	readCtx, stopReaders := context.WithCancel(ctx)
	defer stopReaders()

	runs := make([]*centralRun, 0, n)
	for i := 0; i < n; i++ {
		c, err := radio.Connect()
		if err != nil {
			return runs, fmt.Errorf("failed to connect central %d: %w", i+1, err)
		}
		runs = append(runs, &centralRun{central: c})
	}

	var readers, scripts groutine.Group
	for _, r := range runs {
		readers.Go(readCtx, "central-reader", func(ctx context.Context) {
			r.drain(ctx, events.sink, logger)
		})
		scripts.Go(ctx, "central-script", func(ctx context.Context) {
			r.err = script.Run(ctx, r.central, logger)
			r.central.Disconnect()
		})
	}

	scripts.Wait()
	readers.Wait()

	var errs []error
	for _, r := range runs {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("central %s: %w", shortID(r.central.ID()), r.err))
		}
	}
	return runs, errors.Join(errs...)
}

// drain reports each notification until the central disconnects.
func (r *centralRun) drain(ctx context.Context, sink peripheral.NotificationSink, logger *logrus.Logger) {
	id := shortID(r.central.ID())
	for {
		n, err := r.central.Next(ctx)
		if err != nil {
			if !errors.Is(err, loopback.ErrDisconnected) && !errors.Is(err, context.Canceled) {
				logger.WithError(err).WithField("central", id).Warn("Notification stream ended")
			}
			return
		}
		value, err := peripheral.DecodeReading(n.Value)
		if err != nil {
			logger.WithError(err).WithField("central", id).Warn("Malformed reading")
			continue
		}
		r.readings++
		sink.Notify(fmt.Sprintf("Central %s received radiation=%.2f", id, value))
	}
}

func shortID(id peripheral.CentralID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
