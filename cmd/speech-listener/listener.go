package main

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/mqtt"
)

// publishFunc sends payload to topic.
type publishFunc func(topic string, retained bool, payload []byte) error

// listener reacts to a responder's session topics.
type listener struct {
	topics  mqtt.Topics
	log     *zap.Logger
	publish publishFunc

	// ackColor is written to the control topic the first time "Yes" arrives.
	// Zero disables it.
	ackColor logic.ControlCode

	mu        sync.Mutex
	acked     bool
	received  []string
	latencies map[string]float64
	online    bool
}

func newListener(topics mqtt.Topics, ackColor logic.ControlCode, publish publishFunc, log *zap.Logger) *listener {
	return &listener{
		topics:    topics,
		log:       log,
		publish:   publish,
		ackColor:  ackColor,
		latencies: make(map[string]float64),
	}
}

// handle dispatches one message by topic.
func (l *listener) handle(topic string, payload []byte) {
	value := strings.TrimSpace(string(payload))
	switch topic {
	case l.topics.Command:
		l.onCommand(value)
	case l.topics.Metrics:
		l.onMetric(value)
	case l.topics.Presence:
		l.onPresence(value)
	default:
		l.log.Debug("ignoring message", zap.String("topic", topic))
	}
}

func (l *listener) onCommand(value string) {
	l.mu.Lock()
	l.received = append(l.received, value)
	ack := l.ackColor != 0 && !l.acked && value == logic.MessageYes
	if ack {
		l.acked = true
	}
	l.mu.Unlock()

	l.log.Info("received", zap.String("value", value))
	if ack {
		if err := l.sendColor(l.ackColor); err != nil {
			l.log.Warn("ack colour", zap.Error(err))
		}
	}
}

func (l *listener) onMetric(value string) {
	name, ms, err := logic.ParseLatency(value)
	if err != nil {
		l.log.Warn("bad metric", zap.String("value", value), zap.Error(err))
		return
	}
	l.mu.Lock()
	l.latencies[name] = ms
	l.mu.Unlock()
	l.log.Info("latency", zap.String("metric", name), zap.Float64("ms", ms))
}

func (l *listener) onPresence(value string) {
	l.mu.Lock()
	l.online = value == mqtt.PresenceOnline
	l.mu.Unlock()
	l.log.Info("responder presence", zap.String("state", value))
}

// sendColor writes a single control byte.
func (l *listener) sendColor(code logic.ControlCode) error {
	return l.publish(l.topics.Control, false, []byte{byte(code)})
}

// announce marks this listener online or offline for the responder.
func (l *listener) announce(state string) error {
	return l.publish(l.topics.Listener, true, []byte(state))
}

func (l *listener) commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.received...)
}

func (l *listener) latency(name string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ms, ok := l.latencies[name]
	return ms, ok
}

func (l *listener) responderOnline() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.online
}
