// Package mqtt implements link.Link over an MQTT broker. Each characteristic
// becomes a topic under <prefix>/<local name>/.
package mqtt

import "strings"

// DefaultPrefix is the topic root for responder sessions.
const DefaultPrefix = "speech/responder"

// Presence payloads. The responder's presence is retained so late listeners
// still discover it; the last will flips it to offline.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Topics are the per-session MQTT topics.
type Topics struct {
	Command  string
	Metrics  string
	Control  string
	Presence string
	// Listener is where the remote listener announces itself. Writes are
	// only sent while it reports online.
	Listener string
}

// TopicsFor derives the session topics from the prefix and advertised name.
func TopicsFor(prefix, name string) Topics {
	base := strings.TrimSuffix(prefix, "/") + "/" + name
	return Topics{
		Command:  base + "/command",
		Metrics:  base + "/metrics",
		Control:  base + "/control",
		Presence: base + "/presence",
		Listener: base + "/listener",
	}
}
