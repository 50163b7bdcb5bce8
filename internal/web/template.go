package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/relay-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		switch {
		case days > 0:
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		case h > 0:
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		case m > 0:
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"volts": func(mv int32) string {
		return fmt.Sprintf("%d.%03d V", mv/1000, mv%1000)
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Relay Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
</style>
</head>
<body>
<h1>Relay Sensor<span id="live-dot" class="live-dot" title="connecting"></span></h1>

<h2>State</h2>
<table>
<tr><th>Relay</th><td id="relay" class="{{if .Relay}}on{{else}}off{{end}}">{{onOff .Relay}}</td></tr>
<tr><th>Button</th><td id="button">{{.Button}}</td></tr>
<tr><th>Battery</th><td id="voltage">{{if .HasVoltage}}{{volts .VoltageMV}} ({{.BatteryPercent}}%){{else}}no reading{{end}}</td></tr>
</table>
{{if .RelayControl}}<form method="post" action="/relay/toggle"><button type="submit">Toggle relay</button></form>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>Network</th><td id="joined" class="{{if .Joined}}connected{{else}}disconnected{{end}}">{{if .Joined}}joined{{else}}not joined{{end}}</td></tr>
<tr><th>Link</th><td>{{.Config.Transport}} {{if .LinkConnected}}up{{else}}down{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Config.SerialPort}}<tr><th>Serial</th><td>{{.Config.SerialPort}}</td></tr>{{end}}
{{if .Network}}<tr><th>Host network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Short presses</th><td>{{.Counts.ShortPress}}</td></tr>
<tr><th>Long presses</th><td>{{.Counts.LongPress}}</td></tr>
<tr><th>Relay changes</th><td>{{.Counts.RelayChanges}}</td></tr>
<tr><th>Reports sent</th><td>{{.Counts.ReportsSent}}</td></tr>
<tr><th>Reports suppressed</th><td>{{.Counts.ReportsSuppressed}}</td></tr>
<tr><th>Reports failed</th><td>{{.Counts.ReportsFailed}}</td></tr>
<tr><th>Sample failures</th><td>{{.Counts.SampleFailures}}</td></tr>
</table>

{{if .Events}}<h2>Recent</h2>
<table>
{{range .Events}}<tr><th>{{.Time.UTC.Format "15:04:05"}} {{.Kind}}</th><td>{{.Detail}}</td></tr>
{{end}}</table>{{end}}

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boot ID</th><td>{{.BootID}}</td></tr>
<tr><th>Profile</th><td>{{.Config.Profile}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Long press</th><td>{{.Config.LongPressMs}}ms</td></tr>
<tr><th>Sample interval</th><td>{{.Config.SampleIntervalMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/metrics">metrics</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var relay = document.getElementById("relay");
  var button = document.getElementById("button");
  var voltage = document.getElementById("voltage");
  var joined = document.getElementById("joined");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");

  ws.onopen = function() { dot.className = "live-dot ok"; dot.title = "live"; };
  ws.onclose = function() { dot.className = "live-dot err"; dot.title = "offline"; };
  ws.onmessage = function(ev) {
    try {
      var s = JSON.parse(ev.data).status;
      relay.textContent = s.relay;
      relay.className = s.relay === "ON" ? "on" : "off";
      button.textContent = s.button;
      if (s.voltage) {
        voltage.textContent = (s.voltage.millivolts / 1000).toFixed(3) + " V (" + s.voltage.battery_percent + "%)";
      }
      joined.textContent = s.joined ? "joined" : "not joined";
      joined.className = s.joined ? "connected" : "disconnected";
    } catch (e) {}
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, relayControl bool) error {
	// Snapshot has an Uptime method but the template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime       time.Duration
		RelayControl bool
	}{
		Snapshot:     snap,
		Uptime:       snap.Uptime(),
		RelayControl: relayControl,
	}
	return indexTmpl.Execute(w, data)
}
