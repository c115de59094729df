// Package persona 组装"未来的自己"人格对话的上下文：
// 读取最近记忆、格式化为上下文块、截断历史、拼装提示并调用补全服务。
package persona

import (
	"fmt"
	"strings"

	"future-self-go/internal/model"
)

const (
	// NoMemoriesText 表示用户还没有任何记忆。
	NoMemoriesText = "User has not recorded specific memories relevant to this discussion yet."
	// MemoriesUnavailableText 表示记忆数据源读取失败，与 NoMemoriesText 必须可区分。
	MemoriesUnavailableText = "There was an issue recalling specific memories at this time."

	untitledMemory  = "Untitled Memory"
	noTags          = "None"
	maxSnippetRunes = 100
	ellipsis        = "..."
)

// Snippet 把描述截断到最多 100 个字符（按 rune 计），被截断时以 "..." 结尾。
func Snippet(description string) string {
	runes := []rune(description)
	if len(runes) <= maxSnippetRunes {
		return description
	}
	keep := maxSnippetRunes - len([]rune(ellipsis))
	return string(runes[:keep]) + ellipsis
}

// FormatMemories 将记忆渲染为提示中的上下文块，空输入返回 NoMemoriesText。
func FormatMemories(memories []model.Memory) string {
	if len(memories) == 0 {
		return NoMemoriesText
	}
	var b strings.Builder
	b.WriteString("Here are some relevant past memories to consider:")
	for i, m := range memories {
		title := strings.TrimSpace(m.Title)
		if title == "" {
			title = untitledMemory
		}
		tags := noTags
		if len(m.Tags) > 0 {
			tags = strings.Join(m.Tags, ", ")
		}
		fmt.Fprintf(&b, "\n  Memory %d: '%s' (Tags: %s). Snippet: \"%s\"", i+1, title, tags, Snippet(m.Description))
	}
	return b.String()
}

// TruncateHistory 返回最后 n 条消息并保持原有顺序。len(msgs) <= n 时原样返回，n <= 0 时返回空切片。
func TruncateHistory(msgs []model.Message, n int) []model.Message {
	if n <= 0 {
		return []model.Message{}
	}
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
