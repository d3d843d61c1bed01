package chat

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/suPer8Hu/echo-chat/internal/ai"
)

// PromptRole maps a stored role to a prompt role. Only "user" stays a user
// turn; "assistant" and legacy "ai"/"bot" rows become assistant turns.
func PromptRole(stored string) string {
	if strings.EqualFold(strings.TrimSpace(stored), RoleUser) {
		return ai.RoleUser
	}
	return ai.RoleAssistant
}

// AssemblePrompt builds [system, ...prior, user(newUserText)].
// window > 0 keeps only the newest window prior messages (oldest dropped
// first); window <= 0 keeps everything.
func AssemblePrompt(instruction string, prior []Message, newUserText string, window int) []ai.Message {
	if window > 0 && len(prior) > window {
		prior = prior[len(prior)-window:]
	}

	out := make([]ai.Message, 0, len(prior)+2)
	out = append(out, ai.Message{Role: ai.RoleSystem, Content: instruction})
	for _, m := range prior {
		out = append(out, ai.Message{Role: PromptRole(m.Role), Content: m.Content})
	}
	out = append(out, ai.Message{Role: ai.RoleUser, Content: newUserText})
	return out
}

const (
	provisionalTitleMax = 50
	provisionalTitleCut = 47
	generatedTitleWords = 5

	DefaultTitle = "New Conversation"
)

// ProvisionalTitle is the title a conversation starts with: the message
// itself, or its first 47 characters plus "..." when longer than 50.
func ProvisionalTitle(message string) string {
	message = strings.TrimSpace(message)
	r := []rune(message)
	if len(r) > provisionalTitleMax {
		return string(r[:provisionalTitleCut]) + "..."
	}
	if message == "" {
		return DefaultTitle
	}
	return message
}

var multiSpace = regexp.MustCompile(`\s+`)

// SanitizeTitle cleans a model-generated title: quotes and markup are
// dropped, whitespace collapsed, and the result capped at five words.
func SanitizeTitle(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimPrefix(raw, "Title:")

	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) ||
			r == '-' || r == '\'' || r == ',' || r == '&' || r == '+' || r == '#' {
			b.WriteRune(r)
		}
	}
	words := strings.Fields(multiSpace.ReplaceAllString(b.String(), " "))
	if len(words) > generatedTitleWords {
		words = words[:generatedTitleWords]
	}
	return strings.Trim(strings.Join(words, " "), " ,-'")
}

// FallbackTitle is used when no model is available: the first four words,
// cut to 30 characters.
func FallbackTitle(message string) string {
	words := strings.Fields(message)
	if len(words) > 4 {
		words = words[:4]
	}
	t := []rune(strings.Join(words, " "))
	if len(t) > 30 {
		return string(t[:30]) + "..."
	}
	if len(t) == 0 {
		return DefaultTitle
	}
	return string(t)
}
