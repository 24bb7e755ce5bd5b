package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/logic"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ms": func(d time.Duration) string {
		return fmt.Sprintf("%.2fms", logic.Milliseconds(d))
	},
	"lower": func(c logic.Color) string {
		if c == "" {
			return "off"
		}
		return strings.ToLower(string(c))
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Speech Responder</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.green { color: green; font-weight: bold; }
.red { color: red; font-weight: bold; }
.blue { color: blue; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Speech Responder</h1>

<h2>State</h2>
<table>
<tr><th>Session</th><td>{{.Responder.Session}}</td></tr>
<tr><th>LED</th><td class="{{lower .Color}}">{{lower .Color}}</td></tr>
<tr><th>Heartbeat</th><td>{{if .Heartbeat}}on{{else}}off{{end}}</td></tr>
<tr><th>Last command</th><td>{{if .Responder.CommandActive}}{{.Responder.LastCommand}} ({{.Responder.LastLabel}}, score {{.Responder.LastScore}}){{else}}idle{{end}}</td></tr>
<tr><th>Inference calls</th><td>{{.Responder.Calls}}</td></tr>
</table>

<h2>Latency</h2>
<table>
<tr><th>Wake word</th><td>{{ms .Responder.WakeLatency}}</td></tr>
<tr><th>Send</th><td>{{ms .Responder.WriteLatency}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Transport</th><td>{{.Config.Transport}}</td></tr>
<tr><th>Peer</th><td class="{{if .LinkConnected}}connected{{else}}disconnected{{end}}">{{if .LinkConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Name</th><td>{{.Config.LocalName}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
<tr><th>Session failures</th><td>{{.Responder.SessionFailures}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Command Counts</h2>
<table>
<tr><th>Yes</th><td>{{.Responder.Counts.Yes}}</td></tr>
<tr><th>No</th><td>{{.Responder.Counts.No}}</td></tr>
<tr><th>Unknown</th><td>{{.Responder.Counts.Unknown}}</td></tr>
<tr><th>Silence</th><td>{{.Responder.Counts.Silence}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>LED feedback</th><td>{{if .Config.Feedback}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>Idle timeout</th><td>{{.Config.IdleTimeoutMs}}ms</td></tr>
<tr><th>Warm-up</th><td>{{.Config.WarmupCalls}} calls</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/healthz">health</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
