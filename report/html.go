package report

import (
	"bytes"
	"html/template"
)

// htmlReport 自包含单页:内联样式,不引用任何外部资源,
// 下载后离线可开。模板上下文见 reportData。
const htmlReport = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>VideoFlow Report · {{.SessionID}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", "Helvetica Neue", sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #1f2933; }
h1 { font-size: 1.5rem; border-bottom: 2px solid #3498db; padding-bottom: .5rem; }
h2 { font-size: 1.15rem; margin-top: 2rem; }
dl.meta { display: grid; grid-template-columns: max-content 1fr; gap: .25rem 1rem; font-size: .9rem; }
dl.meta dt { font-weight: 600; color: #616e7c; }
dl.meta dd { margin: 0; word-break: break-all; }
.answer { white-space: pre-wrap; background: #f5f7fa; border-left: 4px solid #3498db; padding: 1rem; }
table { border-collapse: collapse; width: 100%; font-size: .9rem; }
th, td { border: 1px solid #d3dce6; padding: .4rem .6rem; text-align: left; vertical-align: top; }
th { background: #f5f7fa; }
tr.failed td { color: #c0392b; }
footer { margin-top: 2rem; color: #9aa5b1; font-size: .8rem; }
</style>
</head>
<body>
<h1>VideoFlow Analysis Report</h1>

<dl class="meta">
<dt>Session</dt><dd>{{.SessionID}}</dd>
<dt>Video</dt><dd><a href="{{.URL}}">{{.URL}}</a></dd>
<dt>Prompt</dt><dd>{{.Prompt}}</dd>
<dt>Status</dt><dd>{{.Status}}</dd>
<dt>Generated</dt><dd>{{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</dd>
</dl>

<h2>Answer ({{.SynthesisType}})</h2>
<div class="answer">{{.Response}}</div>

{{if .ExecutiveSummary}}<h2>Executive Summary</h2>
<p>{{.ExecutiveSummary}}</p>
{{end}}
{{if .KeyThemes}}<h2>Key Themes</h2>
<ul>
{{range .KeyThemes}}<li>{{.}}</li>
{{end}}</ul>
{{end}}
{{if .Insights}}<h2>Actionable Insights</h2>
<ul>
{{range .Insights}}<li>{{.}}</li>
{{end}}</ul>
{{end}}
<h2>Frame Analyses</h2>
<table>
<thead>
<tr><th>#</th><th>Status</th><th>Confidence</th><th>Analysis</th><th>Key Findings</th></tr>
</thead>
<tbody>
{{range .Frames}}<tr{{if .Failed}} class="failed"{{end}}>
<td>{{.Number}}</td>
<td>{{.Status}}</td>
<td>{{.ConfidenceLabel}}</td>
<td>{{if .Failed}}{{.Error}}{{else}}{{.Analysis}}{{end}}</td>
<td>{{range .KeyFindings}}{{.}}<br>{{end}}</td>
</tr>
{{end}}</tbody>
</table>

<h2>Run Statistics</h2>
<table>
<tr><th>Capture strategy</th><td>{{.Strategy}}</td></tr>
<tr><th>Frames captured</th><td>{{.FramesCaptured}}</td></tr>
<tr><th>Frames analyzed</th><td>{{.ValidFrames}} ok / {{.FailedFrames}} failed</td></tr>
<tr><th>Average confidence</th><td>{{.AvgConfidence}}</td></tr>
<tr><th>Video duration</th><td>{{.VideoDuration}}</td></tr>
<tr><th>Elapsed</th><td>{{.Elapsed}}</td></tr>
</table>

<footer>Generated by VideoFlow</footer>
</body>
</html>
`

var htmlTmpl = template.Must(template.New("report.html").Parse(htmlReport))

func renderHTML(data *reportData) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
