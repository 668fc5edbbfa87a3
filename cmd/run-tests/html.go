package main

import (
	"html/template"
	"io"
	"time"
)

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>capsule tests</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { padding: 2px 10px; text-align: left; }
.pass { color: #1a7f37; } .fail { color: #cf222e; } .skip { color: #9a6700; }
pre { background: #f6f8fa; padding: 8px; }
</style>
</head>
<body>
<h1>capsule tests</h1>
<p>{{.Generated}}: {{.Summary.Failed}} failure(s)</p>
{{range .Summary.Packages}}
<h2 class="{{.Status}}">{{.Name}} ({{.Status}}, {{.Elapsed}})</h2>
<table>
<tr><th>test</th><th>status</th><th>time</th></tr>
{{range .Tests}}<tr class="{{.Status}}"><td>{{.Name}}</td><td>{{.Status}}</td><td>{{.Elapsed}}</td></tr>
{{if eq .Status "fail"}}<tr><td colspan="3"><pre>{{.Output}}</pre></td></tr>{{end}}
{{end}}
</table>
{{end}}
{{if .Summary.Other}}<h2>other output</h2><pre>{{.Summary.Other}}</pre>{{end}}
</body>
</html>
`))

func renderHTML(w io.Writer, s *Summary) error {
	return reportTemplate.Execute(w, struct {
		Generated string
		Summary   *Summary
	}{
		Generated: time.Now().Format(time.RFC1123),
		Summary:   s,
	})
}
