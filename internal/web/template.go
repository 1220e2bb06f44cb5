package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/attention-monitor/internal/status"
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
	"phaseOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"seconds": func(f float64) string {
		return fmt.Sprintf("%.1fs", f)
	},
	"ratio": func(f float64) string {
		return fmt.Sprintf("%.2f", f)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Attention Monitor</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.tracking { color: green; font-weight: bold; }
.calibrating { color: orange; font-weight: bold; }
.failed { color: red; font-weight: bold; }
.flagged { color: red; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Attention Monitor</h1>

<h2>Session</h2>
<table>
<tr><th>Session</th><td>{{.SessionID}}</td></tr>
{{if .Config.Subject}}<tr><th>Subject</th><td>{{.Config.Subject}}</td></tr>{{end}}
<tr><th>Phase</th><td id="phase" class="{{phaseOrUnknown (printf "%s" .Progress.Phase)}}">{{phaseOrUnknown (printf "%s" .Progress.Phase)}}</td></tr>
<tr><th>Session time</th><td>{{seconds .Progress.SessionTime}}</td></tr>
<tr><th>Slide</th><td>{{.Progress.Slide}}</td></tr>
{{with .Progress.Thresholds}}<tr><th>EAR threshold</th><td>{{ratio .EAR}}</td></tr>
<tr><th>Velocity threshold</th><td>{{ratio .Velocity}}</td></tr>{{else}}<tr><th>Thresholds</th><td>not calibrated</td></tr>{{end}}
</table>

<h2>Blinks (last {{.Config.WindowSeconds}}s)</h2>
<table>
<tr><th>Count</th><td>{{.Progress.Window.Count}}</td></tr>
<tr><th>Rate</th><td>{{ratio .Progress.Window.RatePerMinute}}/min</td></tr>
<tr><th>Mean duration</th><td>{{ratio .Progress.Window.MeanDuration}}s</td></tr>
<tr><th>Total</th><td>{{.Progress.Blinks.Blinks}} ({{.Progress.Blinks.Merged}} merged)</td></tr>
</table>

<h2>Frames</h2>
<table>
<tr><th>Processed</th><td>{{.Progress.Frames.Processed}}</td></tr>
<tr><th>Calibration</th><td>{{.Progress.Frames.Calibrated}}</td></tr>
<tr><th>Detection gaps</th><td>{{.Progress.Frames.Gaps}}</td></tr>
<tr><th>Invalid</th><td>{{.Progress.Frames.Invalid}}</td></tr>
<tr><th>Dropped</th><td>{{.Progress.Frames.Dropped}}</td></tr>
</table>

{{if .Records}}<h2>Slides</h2>
<table>
<tr><th>Period</th><td>Mind wandering</td></tr>
{{range .Records}}<tr><th>{{.Slide}}: {{.TimePeriod}}</th><td{{if .MindWandering}} class="flagged"{{end}}>{{if .MindWandering}}yes{{else}}no{{end}}</td></tr>
{{end}}</table>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Clicker</th><td>{{if lt .Config.GPIOPin 0}}none{{else}}GPIO {{.Config.GPIOPin}}{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/report.json">Report</a></p>
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
