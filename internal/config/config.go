// Package config resolves daemon settings from defaults, an optional .env
// file and RESPONDER_* environment variables. Command-line flags in
// cmd/speech-responder are applied last, on top of the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/gpio"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/logging"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/mqtt"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "RESPONDER_"

// Transports.
const (
	TransportBLE  = "ble"
	TransportMQTT = "mqtt"
	TransportNone = "none"
)

// Config is the resolved daemon configuration.
type Config struct {
	Transport     string
	Broker        string
	TopicPrefix   string
	Profile       link.Profile
	GPIOChip      string
	Pins          gpio.Pins
	Feedback      bool
	IdleTimeoutMs int
	WarmupCalls   int
	HTTPAddr      string
	ReplayPath    string
	Log           logging.Config
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transport:     TransportBLE,
		Broker:        "tcp://192.168.1.200:1883",
		TopicPrefix:   mqtt.DefaultPrefix,
		Profile:       link.DefaultProfile(),
		GPIOChip:      "gpiochip0",
		Pins:          gpio.DefaultPins(),
		Feedback:      true,
		IdleTimeoutMs: logic.IdleTimeoutMs,
		WarmupCalls:   logic.WarmupCalls,
		HTTPAddr:      ":80",
		ReplayPath:    "-",
		Log:           logging.DefaultConfig(),
	}
}

// Load reads envFile into the process environment, if it exists, and
// resolves the configuration from it. Variables already set win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves the configuration with lookup as the environment.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	e := env{lookup: lookup}

	c.Transport = strings.ToLower(e.str("TRANSPORT", c.Transport))
	c.Broker = e.str("BROKER", c.Broker)
	c.TopicPrefix = e.str("TOPIC_PREFIX", c.TopicPrefix)
	c.Profile.LocalName = e.str("LOCAL_NAME", c.Profile.LocalName)
	c.Profile.ServiceUUID = e.str("SERVICE_UUID", c.Profile.ServiceUUID)
	c.Profile.CommandUUID = e.str("COMMAND_UUID", c.Profile.CommandUUID)
	c.Profile.ControlUUID = e.str("CONTROL_UUID", c.Profile.ControlUUID)
	c.Profile.MetricsUUID = e.str("METRICS_UUID", c.Profile.MetricsUUID)
	c.GPIOChip = e.str("GPIO_CHIP", c.GPIOChip)
	c.Pins.Heartbeat = e.int("PIN_HEARTBEAT", c.Pins.Heartbeat)
	c.Pins.Red = e.int("PIN_RED", c.Pins.Red)
	c.Pins.Green = e.int("PIN_GREEN", c.Pins.Green)
	c.Pins.Blue = e.int("PIN_BLUE", c.Pins.Blue)
	c.Feedback = e.bool("LED_FEEDBACK", c.Feedback)
	c.IdleTimeoutMs = e.int("IDLE_TIMEOUT_MS", c.IdleTimeoutMs)
	c.WarmupCalls = e.int("WARMUP_CALLS", c.WarmupCalls)
	c.HTTPAddr = e.str("HTTP_ADDR", c.HTTPAddr)
	c.ReplayPath = e.str("REPLAY", c.ReplayPath)
	c.Log.Level = e.str("LOG_LEVEL", c.Log.Level)
	c.Log.Format = e.str("LOG_FORMAT", c.Log.Format)
	c.Log.File = e.str("LOG_FILE", c.Log.File)
	c.Log.MaxSizeMB = e.int("LOG_MAX_SIZE_MB", c.Log.MaxSizeMB)
	c.Log.MaxBackups = e.int("LOG_MAX_BACKUPS", c.Log.MaxBackups)

	if err := e.err(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportBLE, TransportNone:
	case TransportMQTT:
		if c.Broker == "" {
			errs = append(errs, errors.New("mqtt transport needs a broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if err := c.Profile.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := validatePins(c.Pins); err != nil {
		errs = append(errs, err)
	}
	if c.IdleTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("idle timeout must be positive, got %dms", c.IdleTimeoutMs))
	}
	if c.WarmupCalls < 0 {
		errs = append(errs, fmt.Errorf("warm-up calls must not be negative, got %d", c.WarmupCalls))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validatePins(p gpio.Pins) error {
	seen := make(map[int]gpio.Line)
	for _, line := range []gpio.Line{gpio.LineHeartbeat, gpio.LineRed, gpio.LineGreen, gpio.LineBlue} {
		pin := p.Offset(line)
		if pin < 0 {
			return fmt.Errorf("pin for %s must not be negative", line)
		}
		if other, dup := seen[pin]; dup {
			return fmt.Errorf("pin %d used by both %s and %s", pin, other, line)
		}
		seen[pin] = line
	}
	return nil
}

// env reads typed values and collects parse failures.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return def
	}
	return b
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}
