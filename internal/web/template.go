package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/feeder/internal/status"
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
	"interval": func(seconds uint32) string {
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	},
	"remaining": func(seconds int64) string {
		if seconds <= 0 {
			return "due"
		}
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Feeder</title>
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
</style>
</head>
<body>
<h1>Feeder</h1>

<h2>Schedule</h2>
<table>
<tr><th>State</th><td>{{.State}}</td></tr>
<tr><th>Ticks since dispense</th><td id="ticks">{{.Ticks}}</td></tr>
{{if .Evaluated}}<tr><th>Dial</th><td>{{.Decision.Speed}}</td></tr>
<tr><th>Interval</th><td>{{interval .Decision.Threshold}}</td></tr>
<tr><th>Next dispense</th><td>{{remaining .Decision.Remaining}}</td></tr>{{else}}<tr><th>Dial</th><td>not yet read</td></tr>{{end}}
<tr><th>Power</th><td class="{{if .PowerOn}}on{{else}}off{{end}}">{{if .PowerOn}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Motor</th><td class="{{if .MotorOn}}on{{else}}off{{end}}">{{if .MotorOn}}ON{{else}}OFF{{end}}</td></tr>
</table>

<h2>Activity</h2>
<table>
<tr><th>Evaluations</th><td>{{.Counts.Evaluations}}</td></tr>
<tr><th>Dispenses</th><td>{{.Counts.Dispenses}}</td></tr>
<tr><th>Overrides</th><td>{{.Counts.Overrides}}</td></tr>
<tr><th>Last dispense</th><td>{{when .LastDispense}}</td></tr>
<tr><th>Last override</th><td>{{when .LastOverride}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{when .StartTime}}</td></tr>
<tr><th>Base interval</th><td>{{.Config.BaseIntervalSec}}s</td></tr>
<tr><th>Per dial step</th><td>{{.Config.BlockSec}}s</td></tr>
<tr><th>Evaluate every</th><td>{{.Config.PollTicks}} ticks of {{.Config.TickMs}}ms</td></tr>
<tr><th>Dispense</th><td>{{.Config.DispenseMs}}ms</td></tr>
<tr><th>Diagnostics</th><td>{{if .Config.Debug}}on{{else}}off{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
