package synthesis

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter 统计文本的 token 数量，用于合成提示词的预算控制。
type tokenCounter interface {
	Count(text string) int
}

// tiktokenCounter 基于 cl100k_base 的精确计数，懒初始化；
// BPE 数据不可用时（离线环境）退回字符估算。
type tiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// 离线时保持 enc 为 nil，走估算路径
			return
		}
		c.enc = enc
	})
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// estimateTokens 按字符估算：英文 ≈ 4 字符/token，中文 ≈ 1.5 字符/token。
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			cjk++
		} else {
			other++
		}
	}
	return int(float64(cjk)/1.5+float64(other)/4.0) + 1
}
