// =============================================================================
// 📄 VideoFlow 报告渲染
// =============================================================================
// 已完成会话 → HTML / Markdown / CSV 报告工件。纯读取,无推理。
// =============================================================================

package report

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/types"
)

// Format 报告输出格式
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
)

// ParseFormat 解析 format 查询参数,空串默认 HTML
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html":
		return FormatHTML, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unsupported report format %q", s))
	}
}

// ContentType 返回对应的 HTTP Content-Type
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "text/html; charset=utf-8"
	}
}

// Filename 返回下载用的文件名
func (f Format) Filename(sessionID string) string {
	return fmt.Sprintf("videoflow-report-%s.%s", sessionID, string(f))
}

// =============================================================================
// 🎨 渲染器
// =============================================================================

// Renderer 把已完成会话渲染为报告。渲染只读快照,失败不影响会话本身。
type Renderer struct {
	logger *zap.Logger
}

// NewRenderer 创建报告渲染器
func NewRenderer(logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{logger: logger.With(zap.String("component", "report"))}
}

// Render 渲染指定格式的报告。会话必须已携带结果。
func (r *Renderer) Render(sess *types.Session, format Format) ([]byte, error) {
	if sess == nil || sess.Result == nil {
		return nil, types.NewError(types.ErrResultNotReady, "session has no result to report")
	}

	data := newReportData(sess)

	var (
		out []byte
		err error
	)
	switch format {
	case FormatHTML:
		out, err = renderHTML(data)
	case FormatMarkdown:
		out, err = renderMarkdown(data)
	case FormatCSV:
		out, err = renderCSV(data)
	default:
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unsupported report format %q", format))
	}
	if err != nil {
		r.logger.Error("report rendering failed",
			zap.String("session_id", sess.ID),
			zap.String("format", string(format)),
			zap.Error(err),
		)
		return nil, types.NewError(types.ErrInternalError, "report rendering failed").WithCause(err)
	}

	r.logger.Debug("report rendered",
		zap.String("session_id", sess.ID),
		zap.String("format", string(format)),
		zap.Int("bytes", len(out)),
	)

	return out, nil
}

// =============================================================================
// 📋 模板视图
// =============================================================================

// reportData 模板视图。嵌套的会话结构在这里拍平,模板内不做逻辑。
type reportData struct {
	SessionID   string
	URL         string
	Prompt      string
	Status      string
	GeneratedAt time.Time

	SynthesisType    string
	Response         string
	ExecutiveSummary string
	KeyThemes        []string
	Insights         []string

	Strategy       string
	FramesCaptured int
	ValidFrames    int
	FailedFrames   int
	AvgConfidence  string
	VideoDuration  string
	Elapsed        string

	Frames []frameRow
}

// frameRow 逐帧分析的展示行
type frameRow struct {
	Number          int
	Status          string
	Failed          bool
	Confidence      float64
	ConfidenceLabel string
	Analysis        string
	Error           string
	KeyFindings     []string
}

func newReportData(sess *types.Session) *reportData {
	res := sess.Result

	data := &reportData{
		SessionID:      sess.ID,
		URL:            sess.URL,
		Prompt:         sess.Prompt,
		Status:         string(sess.Status),
		GeneratedAt:    time.Now(),
		Strategy:       string(res.Strategy),
		FramesCaptured: res.FramesCaptured,
		VideoDuration:  formatVideoDuration(res.VideoDuration),
		Elapsed:        formatElapsed(res.Elapsed),
	}

	if syn := res.Synthesis; syn != nil {
		data.SynthesisType = string(syn.Type)
		data.Response = syn.Response
		data.ExecutiveSummary = syn.ExecutiveSummary
		data.KeyThemes = syn.KeyThemes
		data.Insights = syn.ActionableInsights
	}

	var confidenceSum float64
	for _, a := range res.FrameAnalyses {
		row := frameRow{
			Number:      a.FrameNumber,
			Analysis:    a.Analysis,
			Error:       a.Error,
			KeyFindings: a.KeyFindings,
			Failed:      a.Failed(),
		}
		if a.Failed() {
			row.Status = "failed"
			row.ConfidenceLabel = "-"
			data.FailedFrames++
		} else {
			row.Status = "ok"
			row.Confidence = a.Confidence
			row.ConfidenceLabel = fmt.Sprintf("%.0f%%", a.Confidence)
			data.ValidFrames++
			confidenceSum += a.Confidence
		}
		data.Frames = append(data.Frames, row)
	}

	if data.ValidFrames > 0 {
		data.AvgConfidence = fmt.Sprintf("%.1f%%", confidenceSum/float64(data.ValidFrames))
	} else {
		data.AvgConfidence = "-"
	}

	return data
}

func formatVideoDuration(seconds float64) string {
	if seconds <= 0 {
		return "unknown"
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}
