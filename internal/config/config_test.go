package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/gpio"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/link"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, TransportBLE, c.Transport)
	assert.Equal(t, link.DefaultProfile(), c.Profile)
	assert.Equal(t, gpio.DefaultPins(), c.Pins)
	assert.True(t, c.Feedback)
	assert.Equal(t, 3000, c.IdleTimeoutMs)
	assert.Equal(t, 50, c.WarmupCalls)
	assert.NoError(t, c.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	c, err := FromLookup(lookupFrom(map[string]string{
		"RESPONDER_TRANSPORT":       "MQTT",
		"RESPONDER_BROKER":          "tcp://broker:1883",
		"RESPONDER_LOCAL_NAME":      "Kitchen",
		"RESPONDER_PIN_RED":         "5",
		"RESPONDER_LED_FEEDBACK":    "false",
		"RESPONDER_IDLE_TIMEOUT_MS": "1500",
		"RESPONDER_WARMUP_CALLS":    "0",
		"RESPONDER_LOG_FORMAT":      "json",
		"RESPONDER_HTTP_ADDR":       "",
	}))
	require.NoError(t, err)

	assert.Equal(t, TransportMQTT, c.Transport)
	assert.Equal(t, "tcp://broker:1883", c.Broker)
	assert.Equal(t, "Kitchen", c.Profile.LocalName)
	assert.Equal(t, 5, c.Pins.Red)
	assert.False(t, c.Feedback)
	assert.Equal(t, 1500, c.IdleTimeoutMs)
	assert.Equal(t, 0, c.WarmupCalls)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, ":80", c.HTTPAddr, "empty values keep the default")
	assert.NoError(t, c.Validate())
}

func TestParseErrors(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"RESPONDER_PIN_BLUE":     "blue",
		"RESPONDER_LED_FEEDBACK": "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESPONDER_PIN_BLUE")
	assert.Contains(t, err.Error(), "RESPONDER_LED_FEEDBACK")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown transport", func(c *Config) { c.Transport = "zigbee" }},
		{"mqtt without broker", func(c *Config) { c.Transport = TransportMQTT; c.Broker = "" }},
		{"bad uuid", func(c *Config) { c.Profile.ControlUUID = "not-a-uuid" }},
		{"duplicate uuid", func(c *Config) { c.Profile.MetricsUUID = c.Profile.ControlUUID }},
		{"shared pin", func(c *Config) { c.Pins.Blue = c.Pins.Red }},
		{"negative pin", func(c *Config) { c.Pins.Heartbeat = -1 }},
		{"zero idle timeout", func(c *Config) { c.IdleTimeoutMs = 0 }},
		{"negative warm-up", func(c *Config) { c.WarmupCalls = -1 }},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := Default()
	c.Transport = TransportNone
	c.Broker = ""
	assert.NoError(t, c.Validate())
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RESPONDER_LOCAL_NAME=FromFile\nRESPONDER_WARMUP_CALLS=7\n"), 0o644))
	t.Setenv("RESPONDER_WARMUP_CALLS", "9")
	t.Cleanup(func() { os.Unsetenv("RESPONDER_LOCAL_NAME") })

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "FromFile", c.Profile.LocalName)
	assert.Equal(t, 9, c.WarmupCalls, "process environment wins over the file")
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
