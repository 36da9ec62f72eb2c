// Command feeder drives a mechanical dispenser: it counts watchdog ticks,
// runs the motor once the dial-selected interval has elapsed and honours a
// manual override button.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/feeder/internal/clock"
	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/controller"
	"github.com/sweeney/feeder/internal/diag"
	"github.com/sweeney/feeder/internal/dial"
	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/irq"
	"github.com/sweeney/feeder/internal/motor"
	"github.com/sweeney/feeder/internal/mqtt"
	"github.com/sweeney/feeder/internal/power"
	"github.com/sweeney/feeder/internal/softuart"
	"github.com/sweeney/feeder/internal/status"
	"github.com/sweeney/feeder/internal/web"
)

const defaultConfigPath = "/etc/feeder.toml"

var (
	configPath string

	mainCmd = &cobra.Command{
		Use:   "feeder",
		Short: "Timed dispenser controller",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the dispenser until interrupted",
		Run:   runFeeder,
	}
	dialCmd = &cobra.Command{
		Use:   "dial",
		Short: "Read the interval dial once and print the threshold",
		Run:   runDial,
	}
)

func main() {
	mainCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Config file (.toml, .yaml or .yml)")
	mainCmd.PersistentFlags().String("log-level", "", "Log level (overrides config)")

	runCmd.Flags().Bool("debug", false, "Enable serial diagnostics")
	runCmd.Flags().String("broker", "", "MQTT broker address (empty disables)")
	runCmd.Flags().String("http", "", "HTTP status address (empty disables)")

	mainCmd.AddCommand(runCmd, dialCmd)
	if err := mainCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFeeder(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(configPath, cmd.Flags())
	if err != nil {
		log.Fatalln("config:", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalln("fatal:", err)
	}
}

func runDial(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(configPath, cmd.Flags())
	if err != nil {
		log.Fatalln("config:", err)
	}

	lines, err := gpio.Open(cfg.GPIOPins(), nil)
	if err != nil {
		log.Fatalln("init gpio:", err)
	}
	defer closeLines(lines)

	if err := printDial(cfg, lines, clock.Real{}, os.Stdout); err != nil {
		log.Fatalln("dial:", err)
	}
}

// loadConfig reads the config file, applies flag overrides, validates and
// configures logging.
func loadConfig(path string, flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, flags); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overlays flags the user actually set.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	var err error
	if flags.Changed("log-level") {
		if cfg.LogLevel, err = flags.GetString("log-level"); err != nil {
			return err
		}
	}
	if flags.Changed("debug") {
		if cfg.Debug.Enabled, err = flags.GetBool("debug"); err != nil {
			return err
		}
	}
	if flags.Changed("broker") {
		if cfg.MQTT.Broker, err = flags.GetString("broker"); err != nil {
			return err
		}
	}
	if flags.Changed("http") {
		if cfg.HTTPAddr, err = flags.GetString("http"); err != nil {
			return err
		}
	}
	return nil
}

func setupLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

func run(cfg *config.Config) error {
	irqs := irq.NewController()
	wdt := irqs.NewVector("WDT")
	ext := irqs.NewVector("INT0")

	// Initialize GPIO
	lines, err := gpio.Open(cfg.GPIOPins(), ext.Raise)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer closeLines(lines)

	diagnostics, closeDiag, err := newDiagnostics(cfg, lines.Serial, irqs, log.StandardLogger())
	if err != nil {
		return err
	}
	defer closeDiag()

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.Discard{}
	if cfg.MQTT.Broker != "" {
		publisher = mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", cfg.HTTPAddr)
	}

	clk := clock.Real{}
	ctrl := controller.New(controllerConfig(cfg), controller.Deps{
		Clock:     clk,
		Motor:     motor.New(lines.Motor, clk, cfg.MotorTiming()),
		Power:     power.New(lines.Power),
		Dial:      dial.New(lines.Dial),
		Override:  lines.Override,
		Diag:      diagnostics,
		Publisher: publisher,
		Tracker:   tracker,
		Logger:    log.StandardLogger(),
	})

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	go wdt.Every(ctx, cfg.TickPeriod())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			log.Infof("received %v, shutting down", s)
			cancel(errors.New(signalName(s)))
		case <-ctx.Done():
		}
	}()

	log.WithFields(log.Fields{
		"tick":     cfg.TickPeriod(),
		"debug":    cfg.Debug.Enabled,
		"broker":   cfg.MQTT.Broker,
		"override": cfg.GPIOPins().Override,
	}).Info("started")

	return ctrl.Run(ctx, wdt.C(), ext.C())
}

func closeLines(lines *gpio.Lines) {
	if err := lines.Close(); err != nil {
		log.WithError(err).Warn("release gpio")
	}
}

// newDiagnostics picks the diagnostics transport: nothing when debug is off,
// a hardware port when one is named, otherwise the soft UART on the serial
// pin. Enabled transports are mirrored into the log at debug level.
func newDiagnostics(cfg *config.Config, serialLine gpio.Output, mask softuart.InterruptMask, logger log.FieldLogger) (diag.Diagnostics, func() error, error) {
	nop := func() error { return nil }
	if !cfg.Debug.Enabled {
		return diag.Nop{}, nop, nil
	}
	mirror := diag.NewLog(logger)

	if cfg.Debug.Port != "" {
		port, err := diag.OpenPort(cfg.Debug.Port, cfg.Debug.Baud, cfg.Debug.StopBits)
		if err != nil {
			return nil, nil, err
		}
		return diag.Multi{diag.NewWriter(port), mirror}, port.Close, nil
	}

	sc := softuart.Config{Baud: cfg.Debug.Baud, StopBits: cfg.Debug.StopBits}
	if cfg.Debug.MaskInterrupts {
		sc.Mask = mask
	}
	tx, err := softuart.New(serialLine, clock.Spin{}, sc)
	if err != nil {
		return nil, nil, fmt.Errorf("init diagnostics: %w", err)
	}
	return diag.Multi{diag.NewWriter(tx), mirror}, nop, nil
}

func controllerConfig(cfg *config.Config) controller.Config {
	return controller.Config{
		Schedule:     cfg.ScheduleRules(),
		Dispense:     cfg.DispenseDuration(),
		WarmUp:       cfg.WarmUp(),
		BootDelay:    time.Duration(cfg.Schedule.BootDelaySec) * time.Second,
		OverridePoll: cfg.OverridePoll(),
		OverrideMax:  cfg.OverrideMax(),
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		BaseIntervalSec: cfg.Schedule.BaseIntervalSec,
		BlockSec:        cfg.Schedule.BlockSec,
		PollTicks:       cfg.Schedule.PollTicks,
		TickMs:          cfg.Schedule.TickMs,
		DispenseMs:      cfg.Motor.DispenseMs,
		Broker:          cfg.MQTT.Broker,
		HTTPAddr:        cfg.HTTPAddr,
		Debug:           cfg.Debug.Enabled,
	}
}

// printDial powers the dial, reads it once and prints the interval it
// selects.
func printDial(cfg *config.Config, lines *gpio.Lines, clk clock.Clock, w io.Writer) error {
	gate := power.New(lines.Power)
	if err := gate.On(); err != nil {
		return err
	}
	clk.Sleep(cfg.WarmUp())
	speed, err := dial.New(lines.Dial).Read()
	if offErr := gate.Off(); err == nil {
		err = offErr
	}
	if err != nil {
		return err
	}

	threshold := cfg.ScheduleRules().Threshold(speed)
	_, err = fmt.Fprintf(w, "dial: %d threshold: %ds (%v)\n", speed, threshold, time.Duration(threshold)*time.Second)
	return err
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
