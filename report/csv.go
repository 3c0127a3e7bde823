package report

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
)

// csvHeader 逐帧分析的列定义。置信度输出原始数值,便于二次统计。
var csvHeader = []string{"frame_number", "status", "confidence", "analysis", "error", "key_findings"}

func renderCSV(data *reportData) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, f := range data.Frames {
		confidence := ""
		if !f.Failed {
			confidence = strconv.FormatFloat(f.Confidence, 'f', -1, 64)
		}
		row := []string{
			strconv.Itoa(f.Number),
			f.Status,
			confidence,
			f.Analysis,
			f.Error,
			strings.Join(f.KeyFindings, "; "),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
