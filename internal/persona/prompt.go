package persona

import (
	"errors"
	"fmt"
	"strings"

	"future-self-go/internal/model"
	"future-self-go/pkg/llm"
)

// ErrUnknownRole 表示遇到了封闭集合之外的消息角色。
var ErrUnknownRole = errors.New("unknown message role")

// ExternalRole 把内部角色映射到补全服务的角色词汇。
func ExternalRole(role model.MessageRole) (string, error) {
	switch role {
	case model.RoleUser:
		return llm.RoleUser, nil
	case model.RoleFutureSelf:
		return llm.RoleAssistant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

// AssemblePrompt 生成发送给补全服务的完整消息列表：首条为 system 提示，其后按序映射历史消息。
func AssemblePrompt(displayName string, traits model.PersonaCharacteristics, memoryContext string, history []model.Message) ([]llm.Message, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: systemPrompt(displayName, traits, memoryContext),
	})
	for _, m := range history {
		role, err := ExternalRole(m.Role)
		if err != nil {
			return nil, err
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	return messages, nil
}

func systemPrompt(displayName string, traits model.PersonaCharacteristics, memoryContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI simulating the 60-year-old version of the user '%s'.\n", displayName)
	b.WriteString("Act as a wise, reflective and kind future self, offering perspective based on a lifetime of experience.\n")
	b.WriteString("Your insights should be informed by the user's actual stored memories and profile, provided below if available.\n")
	b.WriteString("Do NOT give medical, legal, or financial advice. Focus on emotional insight, long-term perspective and gentle guidance.\n")
	b.WriteString("Keep your persona consistent. Refer to the user in the second person (you).\n")

	if !traits.IsEmpty() {
		b.WriteString("\nYour character, as the user has described their future self:\n")
		if traits.CoreTrait != "" {
			fmt.Fprintf(&b, "- Core trait: %s\n", traits.CoreTrait)
		}
		if traits.VoiceTone != "" {
			fmt.Fprintf(&b, "- Communication style: %s\n", traits.VoiceTone)
		}
		if len(traits.KeyLifeLessons) > 0 {
			fmt.Fprintf(&b, "- Key life lessons: %s\n", strings.Join(traits.KeyLifeLessons, "; "))
		}
		if len(traits.WisdomSnippets) > 0 {
			fmt.Fprintf(&b, "- Sayings you like: %s\n", strings.Join(traits.WisdomSnippets, "; "))
		}
	}

	b.WriteString("\nUser's Past Memories Context:\n")
	b.WriteString(memoryContext)
	b.WriteString("\n\nVERY IMPORTANT: Do not provide medical diagnoses or treatment recommendations. ")
	b.WriteString("Acknowledge feelings but redirect to professionals for health concerns.\n")
	return b.String()
}
