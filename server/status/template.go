package status

import (
	"html/template"
)

type statusTemplateDevice struct {
	ID        string
	Name      string
	Type      string
	Listening bool
}

type statusTemplateData struct {
	Version     string
	Devices     []statusTemplateDevice
	DeviceCount int
	Log         string

	CSRFField template.HTML
}

const templateString = `
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>MIDI Bridge status</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", "Roboto", "Helvetica Neue", Arial, sans-serif;
      margin: 40px auto;
      max-width: 720px;
      padding: 0 16px;
    }
    h1 { font-size: 32px; }
    p { color: #858585; }
    table { border-collapse: collapse; width: 100%; }
    th, td {
      text-align: left;
      padding: 6px 12px;
      border-bottom: 1px solid #e0e0e0;
    }
    textarea {
      width: 100%;
      height: 240px;
      font-family: monospace;
      font-size: 11px;
    }
  </style>
</head>
<body>
  <h1>MIDI Bridge</h1>
  <p>Version: {{.Version}}</p>

  <h2>Devices ({{.DeviceCount}})</h2>
  {{if .Devices}}
  <table>
    <tr><th>ID</th><th>Name</th><th>Type</th><th>Listening</th></tr>
    {{range .Devices}}
    <tr>
      <td>{{.ID}}</td>
      <td>{{.Name}}</td>
      <td>{{.Type}}</td>
      <td>{{if .Listening}}yes{{else}}&mdash;{{end}}</td>
    </tr>
    {{end}}
  </table>
  {{else}}
  <p>No devices connected.</p>
  {{end}}

  <h2>Log</h2>
  <textarea readonly>{{.Log}}</textarea>

  <form action="/status/log.gz" method="post">
    {{.CSRFField}}
    <button type="submit">Download detailed log</button>
  </form>
</body>
</html>
`

var statusTemplate = template.Must(template.New("status").Parse(templateString))
