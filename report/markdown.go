package report

import (
	"bytes"
	"strings"
	"text/template"
)

// markdownReport 与 HTML 报告同构的文本版本。
// 表格单元格经 mdcell 清洗:换行压成空格、竖线转义。
const markdownReport = `# VideoFlow Analysis Report

- **Session**: {{.SessionID}}
- **Video**: {{.URL}}
- **Prompt**: {{mdcell .Prompt}}
- **Status**: {{.Status}}
- **Generated**: {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}

## Answer ({{.SynthesisType}})

{{.Response}}
{{if .ExecutiveSummary}}
## Executive Summary

{{.ExecutiveSummary}}
{{end}}{{if .KeyThemes}}
## Key Themes

{{range .KeyThemes}}- {{.}}
{{end}}{{end}}{{if .Insights}}
## Actionable Insights

{{range .Insights}}- {{.}}
{{end}}{{end}}
## Frame Analyses

| # | Status | Confidence | Analysis | Key Findings |
|---|--------|------------|----------|--------------|
{{range .Frames}}| {{.Number}} | {{.Status}} | {{.ConfidenceLabel}} | {{if .Failed}}{{mdcell .Error}}{{else}}{{mdcell .Analysis}}{{end}} | {{mdjoin .KeyFindings}} |
{{end}}
## Run Statistics

- Capture strategy: {{.Strategy}}
- Frames captured: {{.FramesCaptured}}
- Frames analyzed: {{.ValidFrames}} ok / {{.FailedFrames}} failed
- Average confidence: {{.AvgConfidence}}
- Video duration: {{.VideoDuration}}
- Elapsed: {{.Elapsed}}
`

var mdTmpl = template.Must(template.New("report.md").Funcs(template.FuncMap{
	"mdcell": markdownCell,
	"mdjoin": markdownJoin,
}).Parse(markdownReport))

func renderMarkdown(data *reportData) ([]byte, error) {
	var buf bytes.Buffer
	if err := mdTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// markdownCell 把任意文本压成可嵌入表格单元格的单行
func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func markdownJoin(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	cleaned := make([]string, len(items))
	for i, item := range items {
		cleaned[i] = markdownCell(item)
	}
	return strings.Join(cleaned, "; ")
}
