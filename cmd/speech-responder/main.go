// Command speech-responder turns keyword-spotting results into LED feedback
// and messages on a lazily started wireless session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/ble"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/config"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/gpio"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/inference"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/led"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/logging"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/metrics"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/mqtt"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/responder"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/status"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/web"
)

// piHelperEnv is where pi-helper writes the current network state.
const piHelperEnv = "/run/pi-helper.env"

func main() {
	envFile := os.Getenv("RESPONDER_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Transport, "transport", cfg.Transport, "Wireless transport: ble, mqtt or none")
	flag.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker address (mqtt transport)")
	flag.StringVar(&cfg.TopicPrefix, "topic-prefix", cfg.TopicPrefix, "MQTT topic prefix (mqtt transport)")
	flag.StringVar(&cfg.Profile.LocalName, "name", cfg.Profile.LocalName, "Advertised local name")
	flag.StringVar(&cfg.GPIOChip, "gpio-chip", cfg.GPIOChip, "GPIO character device")
	flag.IntVar(&cfg.Pins.Heartbeat, "pin-heartbeat", cfg.Pins.Heartbeat, "BCM pin for the heartbeat LED")
	flag.IntVar(&cfg.Pins.Red, "pin-red", cfg.Pins.Red, "BCM pin for the red LED")
	flag.IntVar(&cfg.Pins.Green, "pin-green", cfg.Pins.Green, "BCM pin for the green LED")
	flag.IntVar(&cfg.Pins.Blue, "pin-blue", cfg.Pins.Blue, "BCM pin for the blue LED")
	flag.BoolVar(&cfg.Feedback, "led-feedback", cfg.Feedback, "Light a colour per command and blink the heartbeat")
	flag.IntVar(&cfg.IdleTimeoutMs, "idle-timeout-ms", cfg.IdleTimeoutMs, "How long a command keeps the LEDs lit")
	flag.IntVar(&cfg.WarmupCalls, "warmup-calls", cfg.WarmupCalls, "Announcement broadcasts after the session activates")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status address (empty to disable)")
	flag.StringVar(&cfg.ReplayPath, "replay", cfg.ReplayPath, `Inference results to replay ("-" for stdin)`)
	realtime := flag.Bool("realtime", false, "Pace replayed results by their timestamps")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level")
	flag.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Log format: console or json")
	flag.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "Also log to this file, rotated by size")

	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *realtime, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func run(cfg config.Config, realtime bool, log *zap.Logger) error {
	// Initialize GPIO
	out, err := gpio.NewRealWriter(cfg.GPIOChip, cfg.Pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	leds := led.NewPanel(out)

	conn := newLink(cfg, log)
	rec := metrics.New()

	ctrl := responder.New(leds, conn, responder.Options{
		Profile:       cfg.Profile,
		Feedback:      cfg.Feedback,
		IdleTimeoutMs: int32(cfg.IdleTimeoutMs),
		WarmupCalls:   cfg.WarmupCalls,
		Log:           log,
		Metrics:       rec,
	})

	tracker := status.NewTracker(time.Now(), status.Config{
		Transport:     cfg.Transport,
		Broker:        brokerFor(cfg),
		LocalName:     cfg.Profile.LocalName,
		Feedback:      cfg.Feedback,
		IdleTimeoutMs: int64(cfg.IdleTimeoutMs),
		WarmupCalls:   cfg.WarmupCalls,
		HTTPAddr:      cfg.HTTPAddr,
	})
	if net := readNetworkInfo(networkLookup(piHelperEnv)); net != nil {
		tracker.SetNetwork(net)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, rec.Registry())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", zap.String("addr", cfg.HTTPAddr))
	}

	replay, err := inference.New(&inference.Config{
		FileSys:  afero.NewOsFs(),
		Path:     cfg.ReplayPath,
		Realtime: realtime,
	})
	if err != nil {
		shutdown(leds, conn, out, log)
		return err
	}
	defer replay.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan logic.Event)
	done := make(chan error, 1)
	go func() { done <- replay.Run(ctx, events) }()

	log.Info("started",
		zap.String("transport", cfg.Transport),
		zap.String("name", cfg.Profile.LocalName),
		zap.String("source", replay.Name()),
		zap.Bool("led_feedback", cfg.Feedback))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reason, loopErr := runLoop(ctrl, leds, conn, tracker, events, done, sigCh, log)
	cancel()

	snap := tracker.Snapshot()
	log.Info("shutdown", zap.ByteString("status", status.FormatStatusEvent(snap, "SHUTDOWN", reason)))
	shutdown(leds, conn, out, log)
	return loopErr
}

// runLoop hands each inference result to the controller until a signal
// arrives or the source ends. It returns the shutdown reason.
func runLoop(ctrl *responder.Controller, leds *led.Panel, conn link.Link, tracker *status.Tracker, events <-chan logic.Event, done <-chan error, sig <-chan os.Signal, log *zap.Logger) (string, error) {
	for {
		select {
		case s := <-sig:
			log.Info("shutting down", zap.Stringer("signal", s))
			return signalName(s), nil

		case err := <-done:
			if err != nil && !inference.IsDone(err) {
				return "SOURCE_ERROR", fmt.Errorf("inference source: %w", err)
			}
			log.Info("inference source finished")
			return "EOF", nil

		case ev := <-events:
			ctrl.OnInferenceResult(ev)

			// Update status tracker for HTTP consumers
			if tracker != nil {
				tracker.Update(ctrl.Stats(), leds.Color(), leds.Heartbeat())
				tracker.SetLinkConnected(conn.Connected())
			}
		}
	}
}

// shutdown leaves the LEDs idle, closes the session and releases GPIO.
func shutdown(leds *led.Panel, conn link.Link, out gpio.Writer, log *zap.Logger) {
	err := errors.Join(leds.Off(), leds.SetHeartbeat(false))
	if err != nil {
		log.Warn("leds idle", zap.Error(err))
	}
	if err := conn.Close(); err != nil {
		log.Warn("close link", zap.Error(err))
	}
	if err := out.Close(); err != nil {
		log.Warn("close gpio", zap.Error(err))
	}
}

func newLink(cfg config.Config, log *zap.Logger) link.Link {
	switch cfg.Transport {
	case config.TransportMQTT:
		return mqtt.New(cfg.Broker, cfg.TopicPrefix, log)
	case config.TransportNone:
		return link.Offline{}
	}
	return ble.New(log)
}

func brokerFor(cfg config.Config) string {
	if cfg.Transport == config.TransportMQTT {
		return cfg.Broker
	}
	return ""
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

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// networkLookup reads the pi-helper file, falling back to the process
// environment for keys it does not set.
func networkLookup(path string) func(string) string {
	vars, err := godotenv.Read(path)
	if err != nil {
		vars = nil
	}
	return func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return os.Getenv(key)
	}
}

func readNetworkInfo(getenv func(string) string) *status.NetworkInfo {
	s := getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       getenv(envNetworkType),
		IP:         getenv(envNetworkIP),
		Status:     s,
		Gateway:    getenv(envNetworkGateway),
		WifiStatus: getenv(envNetworkWifiStatus),
		SSID:       getenv(envNetworkWifiSSID),
	}
}
