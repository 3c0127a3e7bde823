// =============================================================================
// 🧩 VideoFlow 合成引擎
// =============================================================================
// 把一个会话的全部有效帧分析聚合成单一回答：分类合成类型、
// 构建带预算的合成提示词、单次推理调用、启发式字段抽取。
// =============================================================================

package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/types"
	"github.com/BaSui01/videoflow/vision"
)

// Config 合成引擎配置
type Config struct {
	// Model 为空时使用 provider 的默认模型
	Model string
	// MaxTokens 合成回答的补全上限
	MaxTokens int
	// PromptBudget 合成提示词的 token 预算，超出时裁剪最早的帧段落
	PromptBudget int
	// Temperature 采样温度
	Temperature float64
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MaxTokens:    2048,
		PromptBudget: 6000,
		Temperature:  0.3,
	}
}

// Engine 合成引擎
type Engine struct {
	provider vision.Provider
	config   Config
	logger   *zap.Logger
	counter  tokenCounter
}

// NewEngine 创建合成引擎
func NewEngine(provider vision.Provider, config Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2048
	}
	if config.PromptBudget <= 0 {
		config.PromptBudget = 6000
	}
	return &Engine{
		provider: provider,
		config:   config,
		logger:   logger.With(zap.String("component", "synthesis")),
		counter:  &tiktokenCounter{},
	}
}

// Synthesize 把帧分析聚合成单一结果。
// 当且仅当每一条输入都带错误时返回 SYNTHESIS_NO_INPUT；
// 推理调用的失败原样透传。
func (e *Engine) Synthesize(ctx context.Context, analyses []types.FrameAnalysis, prompt string) (*types.SynthesizedResult, error) {
	valid := make([]types.FrameAnalysis, 0, len(analyses))
	for _, a := range analyses {
		if !a.Failed() {
			valid = append(valid, a)
		}
	}
	if len(valid) == 0 {
		return nil, types.NewError(types.ErrSynthesisNoInput,
			fmt.Sprintf("no valid frame analyses to synthesize (%d input, all errored)", len(analyses)))
	}

	sType := ClassifyType(prompt)
	full, omitted := e.buildPrompt(sType, prompt, valid)

	temp := e.config.Temperature
	resp, err := e.provider.Infer(ctx, &vision.InferRequest{
		Prompt:      full,
		Model:       e.config.Model,
		MaxTokens:   e.config.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}

	result := &types.SynthesizedResult{
		Type:               sType,
		Response:           resp.Text,
		KeyThemes:          extractThemes(resp.Text),
		ActionableInsights: extractInsights(resp.Text),
		ExecutiveSummary:   extractExecutiveSummary(resp.Text),
	}

	e.logger.Info("synthesis complete",
		zap.String("type", string(sType)),
		zap.Int("valid_frames", len(valid)),
		zap.Int("errored_frames", len(analyses)-len(valid)),
		zap.Int("omitted_sections", omitted),
		zap.Int("themes", len(result.KeyThemes)),
		zap.Int("insights", len(result.ActionableInsights)))
	return result, nil
}

// =============================================================================
// 合成类型分类
// =============================================================================

// typeFamilies 关键词家族，顺序即优先级，与截帧规划共用同一套
// 家族词（summary/timeline/教学类），再补上合成独有的类型。
var typeFamilies = []struct {
	synthType types.SynthesisType
	keywords  []string
}{
	{types.SynthesisSummary, []string{"summar", "overview", "tl;dr", "brief", "gist", "recap"}},
	{types.SynthesisExtraction, []string{"extract", "list all", "find all", "pull out", "what are all"}},
	{types.SynthesisEvaluation, []string{"evaluate", "assess", "review", "critique", "how good", "quality of"}},
	{types.SynthesisTimeline, []string{"timeline", "chronolog", "progression", "over time", "sequence of events"}},
	{types.SynthesisReport, []string{"report", "detailed analysis", "write up", "documentation"}},
	{types.SynthesisStudyNotes, []string{"study", "notes", "teach", "learn", "lecture", "lesson", "educational"}},
}

// ClassifyType 按提示词关键词判定合成类型，无匹配时为 comprehensive。
func ClassifyType(prompt string) types.SynthesisType {
	p := strings.ToLower(strings.TrimSpace(prompt))
	if p == "" {
		return types.SynthesisComprehensive
	}
	for _, fam := range typeFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(p, kw) {
				return fam.synthType
			}
		}
	}
	return types.SynthesisComprehensive
}

// =============================================================================
// 提示词构建与 token 预算
// =============================================================================

// buildPrompt 拼装合成提示词并返回被裁剪的段落数。
func (e *Engine) buildPrompt(sType types.SynthesisType, userPrompt string, valid []types.FrameAnalysis) (string, int) {
	header := fmt.Sprintf(
		"You are synthesizing %d frame analyses captured from one video into a single coherent answer.\nUser request: %s\n%s\n\n",
		len(valid), userPrompt, goalFor(sType))
	footer := "Write a unified narrative that answers the request directly. " +
		"Mark up to three main themes as 'Theme: ...' lines, phrase concrete " +
		"recommendations as sentences containing 'should' or 'consider', and " +
		"close with a short paragraph beginning 'In summary'."

	sections := buildSections(valid)
	fixed := e.counter.Count(header) + e.counter.Count(footer)
	kept, omitted := e.fitBudget(fixed, sections)

	var b strings.Builder
	b.WriteString(header)
	if omitted > 0 {
		fmt.Fprintf(&b, "(The earliest %d frame analyses were omitted to fit the length limit.)\n\n", omitted)
		e.logger.Warn("synthesis prompt over budget",
			zap.Int("omitted_sections", omitted),
			zap.Int("budget", e.config.PromptBudget))
	}
	for _, s := range kept {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString(footer)
	return b.String(), omitted
}

// buildSections 把每条有效分析渲染成按帧号标注的段落，顺序即捕获顺序。
func buildSections(valid []types.FrameAnalysis) []string {
	sections := make([]string, len(valid))
	for i, a := range valid {
		var b strings.Builder
		fmt.Fprintf(&b, "--- Frame %d", a.FrameNumber)
		if a.Confidence > 0 {
			fmt.Fprintf(&b, " (confidence %.0f%%)", a.Confidence)
		}
		b.WriteString(" ---\n")
		b.WriteString(strings.TrimSpace(a.Analysis))
		sections[i] = b.String()
	}
	return sections
}

// fitBudget 先整段裁掉最早的帧（最老的信息价值最低），仅剩一段
// 仍超预算时截断该段尾部。fixed 是头尾模板已占用的 token 数。
func (e *Engine) fitBudget(fixed int, sections []string) (kept []string, omitted int) {
	budget := e.config.PromptBudget
	counts := make([]int, len(sections))
	total := fixed
	for i, s := range sections {
		counts[i] = e.counter.Count(s)
		total += counts[i]
	}

	start := 0
	for total > budget && start < len(sections)-1 {
		total -= counts[start]
		start++
	}

	kept = append([]string(nil), sections[start:]...)
	omitted = start

	if total > budget && len(kept) == 1 {
		runes := []rune(kept[0])
		for total > budget && len(runes) > 400 {
			runes = runes[:len(runes)*3/4]
			total = fixed + e.counter.Count(string(runes))
		}
		kept[0] = string(runes) + "\n[truncated]"
	}
	return kept, omitted
}

// goalFor 按合成类型给出一行目标说明。
func goalFor(t types.SynthesisType) string {
	switch t {
	case types.SynthesisSummary:
		return "Goal: a concise summary of the whole video."
	case types.SynthesisExtraction:
		return "Goal: enumerate every item the request asks for, exactly as observed."
	case types.SynthesisEvaluation:
		return "Goal: an assessment with strengths, weaknesses, and a verdict."
	case types.SynthesisTimeline:
		return "Goal: a chronological account of how the video progresses."
	case types.SynthesisReport:
		return "Goal: a structured report with sections and concrete detail."
	case types.SynthesisStudyNotes:
		return "Goal: study notes a learner could revise from."
	default:
		return "Goal: a thorough answer covering everything relevant."
	}
}

// =============================================================================
// 启发式字段抽取（纯字符串处理，不再推理）
// =============================================================================

var themeMarker = regexp.MustCompile(`(?i)^[-*•\s]*(?:theme|topic)\s*[:：]\s*(.+)$`)

// extractThemes 抽取 "Theme:"/"Topic:" 标记行，去重，至多 3 条。
func extractThemes(text string) []string {
	var themes []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		m := themeMarker.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		theme := strings.TrimSpace(m[1])
		key := strings.ToLower(theme)
		if theme == "" || seen[key] {
			continue
		}
		seen[key] = true
		themes = append(themes, theme)
		if len(themes) == 3 {
			break
		}
	}
	return themes
}

var insightVerbs = []string{
	"should", "recommend", "consider", "must ", "need to",
	"try to", "avoid", "ensure", "improve",
}

// extractInsights 抽取含建议动词的行，至多 3 条。
func extractInsights(text string) []string {
	var insights []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*•\t "))
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, verb := range insightVerbs {
			if strings.Contains(lower, verb) {
				insights = append(insights, line)
				break
			}
		}
		if len(insights) == 3 {
			break
		}
	}
	return insights
}

var summarySignals = []string{
	"in summary", "overall", "in conclusion", "to summarize",
	"in short", "taken together",
}

// extractExecutiveSummary 抽取含总结信号词的句子并拼接，至多 3 句。
func extractExecutiveSummary(text string) string {
	var picked []string
	for _, s := range splitSentences(text) {
		lower := strings.ToLower(s)
		for _, sig := range summarySignals {
			if strings.Contains(lower, sig) {
				picked = append(picked, s)
				break
			}
		}
		if len(picked) == 3 {
			break
		}
	}
	return strings.Join(picked, " ")
}

// splitSentences 朴素分句：句末标点后跟空白或行尾即断句。
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(strings.ReplaceAll(text, "\n", " "))
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || runes[i+1] == ' ' {
				if s := strings.TrimSpace(b.String()); s != "" {
					out = append(out, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}
