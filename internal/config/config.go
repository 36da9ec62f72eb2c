// Package config loads controller settings from TOML or YAML.
//
// Every field has a default matching the stock board, so an empty or
// missing file yields a working controller. Times are integer seconds or
// milliseconds as named; helper methods convert them to time.Duration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/feeder/internal/gpio"
	"github.com/sweeney/feeder/internal/logic"
	"github.com/sweeney/feeder/internal/motor"
	"github.com/sweeney/feeder/internal/softuart"
)

// Config is the complete controller configuration.
type Config struct {
	Schedule ScheduleConfig `toml:"schedule" yaml:"schedule"`
	Motor    MotorConfig    `toml:"motor" yaml:"motor"`
	Override OverrideConfig `toml:"override" yaml:"override"`
	Pins     PinsConfig     `toml:"pins" yaml:"pins"`
	Debug    DebugConfig    `toml:"debug" yaml:"debug"`
	MQTT     MQTTConfig     `toml:"mqtt" yaml:"mqtt"`
	HTTPAddr string         `toml:"http_addr" yaml:"http_addr"`
	LogLevel string         `toml:"log_level" yaml:"log_level"`
}

// ScheduleConfig sets when dispenses happen.
type ScheduleConfig struct {
	BaseIntervalSec uint32 `toml:"base_interval_sec" yaml:"base_interval_sec"`
	BlockSec        uint32 `toml:"block_sec" yaml:"block_sec"`
	PollTicks       uint32 `toml:"poll_ticks" yaml:"poll_ticks"`
	TickMs          int64  `toml:"tick_ms" yaml:"tick_ms"`
	WarmUpMs        int64  `toml:"warm_up_ms" yaml:"warm_up_ms"`
	BootDelaySec    int    `toml:"boot_delay_sec" yaml:"boot_delay_sec"`
}

// MotorConfig sets actuator timing.
type MotorConfig struct {
	DispenseMs int64 `toml:"dispense_ms" yaml:"dispense_ms"`
	GranuleMs  int64 `toml:"granule_ms" yaml:"granule_ms"`
	PulseOnMs  int64 `toml:"pulse_on_ms" yaml:"pulse_on_ms"`
	PulseOffMs int64 `toml:"pulse_off_ms" yaml:"pulse_off_ms"`
	Pulses     int   `toml:"pulses" yaml:"pulses"`
}

// OverrideConfig tunes the manual override path. Zero MaxMs and DebounceMs
// keep the switch unbounded and undebounced.
type OverrideConfig struct {
	PollMs     int64 `toml:"poll_ms" yaml:"poll_ms"`
	MaxMs      int64 `toml:"max_ms" yaml:"max_ms"`
	DebounceMs int64 `toml:"debounce_ms" yaml:"debounce_ms"`
}

// PinsConfig selects GPIO lines (BCM numbering).
type PinsConfig struct {
	Chip     string `toml:"chip" yaml:"chip"`
	Motor    int    `toml:"motor" yaml:"motor"`
	Power    int    `toml:"power" yaml:"power"`
	Serial   int    `toml:"serial" yaml:"serial"`
	Override int    `toml:"override" yaml:"override"`
	// Dial lists four lines, most-significant bit first.
	Dial []int `toml:"dial" yaml:"dial"`
}

// DebugConfig controls the diagnostics transport.
type DebugConfig struct {
	Enabled        bool `toml:"enabled" yaml:"enabled"`
	Baud           int  `toml:"baud" yaml:"baud"`
	StopBits       int  `toml:"stop_bits" yaml:"stop_bits"`
	MaskInterrupts bool `toml:"mask_interrupts" yaml:"mask_interrupts"`
	// Port, if set, sends diagnostics to a hardware serial port instead of
	// bit-banging the serial pin.
	Port string `toml:"port" yaml:"port"`
}

// MQTTConfig configures event publishing. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string `toml:"broker" yaml:"broker"`
	ClientID string `toml:"client_id" yaml:"client_id"`
}

// Default returns the configuration of the stock board.
func Default() *Config {
	sched := logic.DefaultSchedule()
	mc := motor.DefaultConfig()
	pins := gpio.DefaultPins()

	return &Config{
		Schedule: ScheduleConfig{
			BaseIntervalSec: sched.BaseInterval,
			BlockSec:        sched.BlockDuration,
			PollTicks:       sched.PollInterval,
			TickMs:          1000,
			WarmUpMs:        1,
			BootDelaySec:    1,
		},
		Motor: MotorConfig{
			DispenseMs: 12000,
			GranuleMs:  mc.Granule.Milliseconds(),
			PulseOnMs:  mc.PulseOn.Milliseconds(),
			PulseOffMs: mc.PulseOff.Milliseconds(),
			Pulses:     mc.Pulses,
		},
		Override: OverrideConfig{
			PollMs: 1,
		},
		Pins: PinsConfig{
			Chip:     pins.Chip,
			Motor:    pins.Motor,
			Power:    pins.Power,
			Serial:   pins.Serial,
			Override: pins.Override,
			Dial:     pins.Dial[:],
		},
		Debug: DebugConfig{
			Enabled:        false,
			Baud:           softuart.DefaultBaud,
			StopBits:       1,
			MaskInterrupts: true,
		},
		MQTT: MQTTConfig{
			ClientID: "feeder",
		},
		LogLevel: "info",
	}
}

// Load reads filename over the defaults. The format is chosen by extension
// (.toml, .yaml, .yml). A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ScheduleRules().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if c.Schedule.TickMs <= 0 {
		errs = append(errs, errors.New("schedule.tick_ms must be positive"))
	}
	if c.Motor.DispenseMs < 0 {
		errs = append(errs, errors.New("motor.dispense_ms must not be negative"))
	}
	if c.Motor.GranuleMs <= 0 {
		errs = append(errs, errors.New("motor.granule_ms must be positive"))
	}
	if c.Override.PollMs <= 0 {
		errs = append(errs, errors.New("override.poll_ms must be positive"))
	}
	if c.Override.MaxMs < 0 || c.Override.DebounceMs < 0 {
		errs = append(errs, errors.New("override limits must not be negative"))
	}
	if len(c.Pins.Dial) != 4 {
		errs = append(errs, fmt.Errorf("pins.dial needs 4 lines, got %d", len(c.Pins.Dial)))
	}
	if c.Debug.Baud <= 0 || c.Debug.Baud > 1_000_000 {
		errs = append(errs, fmt.Errorf("debug.baud %d out of range", c.Debug.Baud))
	}
	if c.Debug.StopBits < 1 || c.Debug.StopBits > 2 {
		errs = append(errs, fmt.Errorf("debug.stop_bits must be 1 or 2, got %d", c.Debug.StopBits))
	}
	return errors.Join(errs...)
}

// ScheduleRules returns the dispense rules in ticks.
func (c *Config) ScheduleRules() logic.Schedule {
	return logic.Schedule{
		BaseInterval:  c.Schedule.BaseIntervalSec,
		BlockDuration: c.Schedule.BlockSec,
		PollInterval:  c.Schedule.PollTicks,
	}
}

// TickPeriod is the watchdog period.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Schedule.TickMs) * time.Millisecond
}

// WarmUp is the settle time after powering the dial.
func (c *Config) WarmUp() time.Duration {
	return time.Duration(c.Schedule.WarmUpMs) * time.Millisecond
}

// DispenseDuration is how long an automatic dispense runs the motor.
func (c *Config) DispenseDuration() time.Duration {
	return time.Duration(c.Motor.DispenseMs) * time.Millisecond
}

// MotorTiming returns the actuator timing.
func (c *Config) MotorTiming() motor.Config {
	return motor.Config{
		Granule:  time.Duration(c.Motor.GranuleMs) * time.Millisecond,
		PulseOn:  time.Duration(c.Motor.PulseOnMs) * time.Millisecond,
		PulseOff: time.Duration(c.Motor.PulseOffMs) * time.Millisecond,
		Pulses:   c.Motor.Pulses,
	}
}

// OverridePoll is how often a held override switch is re-read.
func (c *Config) OverridePoll() time.Duration {
	return time.Duration(c.Override.PollMs) * time.Millisecond
}

// OverrideMax is the longest an override may run the motor; zero is unbounded.
func (c *Config) OverrideMax() time.Duration {
	return time.Duration(c.Override.MaxMs) * time.Millisecond
}

// GPIOPins returns the line assignment. Validate first.
func (c *Config) GPIOPins() gpio.Pins {
	p := gpio.Pins{
		Chip:             c.Pins.Chip,
		Motor:            c.Pins.Motor,
		Power:            c.Pins.Power,
		Serial:           c.Pins.Serial,
		Override:         c.Pins.Override,
		OverrideDebounce: time.Duration(c.Override.DebounceMs) * time.Millisecond,
	}
	copy(p.Dial[:], c.Pins.Dial)
	return p
}
