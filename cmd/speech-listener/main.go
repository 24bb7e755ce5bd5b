// Command speech-listener is the remote side of a responder session over
// MQTT. It prints every command and latency report the responder sends and
// can drive the responder's LED through the control topic.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/logging"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/mqtt"
)

const timeout = 3 * time.Second

func main() {
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	prefix := flag.String("topic-prefix", mqtt.DefaultPrefix, "MQTT topic prefix")
	name := flag.String("name", link.DefaultLocalName, "Responder local name")
	color := flag.Int("color", 0, "Send this colour code (1 green, 2 red, 3 blue) once connected")
	ackColor := flag.Int("ack-color", 0, `Send this colour code when the first "Yes" arrives`)
	logLevel := flag.String("log-level", "info", "Log level")

	flag.Parse()

	for _, code := range []int{*color, *ackColor} {
		if code == 0 {
			continue
		}
		if _, ok := logic.ColorForCode(logic.ControlCode(code)); !ok || code > 255 {
			fmt.Fprintf(os.Stderr, "invalid colour code %d\n", code)
			os.Exit(2)
		}
	}

	cfg := logging.DefaultConfig()
	cfg.Level = *logLevel
	log, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(*broker, mqtt.TopicsFor(*prefix, *name), logic.ControlCode(*color), logic.ControlCode(*ackColor), log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func run(broker string, topics mqtt.Topics, color, ackColor logic.ControlCode, log *zap.Logger) error {
	var client paho.Client
	publish := func(topic string, retained bool, payload []byte) error {
		tok := client.Publish(topic, 1, retained, payload)
		if !tok.WaitTimeout(timeout) {
			return fmt.Errorf("publish %s: timeout", topic)
		}
		return tok.Error()
	}
	l := newListener(topics, ackColor, publish, log)

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("speech-listener-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		// Handlers publish the ack colour; unordered delivery keeps them from
		// blocking the client's router.
		SetOrderMatters(false).
		SetWill(topics.Listener, mqtt.PresenceOffline, 1, true).
		SetOnConnectHandler(func(c paho.Client) {
			handler := func(_ paho.Client, m paho.Message) { l.handle(m.Topic(), m.Payload()) }
			for _, topic := range []string{topics.Command, topics.Metrics, topics.Presence} {
				if tok := c.Subscribe(topic, 1, handler); tok.WaitTimeout(timeout) && tok.Error() != nil {
					log.Warn("subscribe", zap.String("topic", topic), zap.Error(tok.Error()))
				}
			}
			go func() {
				if err := l.announce(mqtt.PresenceOnline); err != nil {
					log.Warn("announce", zap.Error(err))
				}
			}()
			log.Info("listening", zap.String("command", topics.Command))
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("connection lost", zap.Error(err))
		})

	client = paho.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("connect %s: timeout", broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", broker, err)
	}
	defer client.Disconnect(1000)

	if color != 0 {
		if err := l.sendColor(color); err != nil {
			log.Warn("send colour", zap.Error(err))
		} else {
			log.Info("sent colour", zap.Uint8("code", uint8(color)))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	log.Info("shutting down", zap.Stringer("signal", s))

	if err := l.announce(mqtt.PresenceOffline); err != nil {
		log.Warn("announce offline", zap.Error(err))
	}
	return nil
}
