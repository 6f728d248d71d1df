package utils

import (
	"fmt"
	"strings"

	"github.com/modelrelay/modelrelay/internal/models"
)

// LastUserMessage returns the content of the most recent user message.
func LastUserMessage(messages []models.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser && messages[i].Content != "" {
			return messages[i].Content, nil
		}
	}

	return "", fmt.Errorf("no user message found")
}

// TruncateQuery shortens a query to at most max runes for request logging,
// cutting on a rune boundary so multibyte text stays valid.
func TruncateQuery(q string, max int) string {
	if max <= 0 {
		return q
	}
	runes := []rune(q)
	if len(runes) <= max {
		return q
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
