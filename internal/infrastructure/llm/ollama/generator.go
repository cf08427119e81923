package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// GenerateWithContext asks the chat model to answer query from docs, continuing history.
func (g *Generator) GenerateWithContext(
	ctx context.Context,
	query string,
	docs []domain.RerankedResult,
	history []domain.ConversationMessage,
) (string, error) {
	request := map[string]any{
		"model":    g.client.genModel,
		"messages": buildChatMessages(query, docs, history),
		"stream":   false,
		"options": map[string]any{
			"temperature": g.client.temperature,
			"num_predict": g.client.maxTokens,
		},
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := g.client.call(ctx, "/api/chat", request, &response, "chat"); err != nil {
		return "", err
	}

	answer := strings.TrimSpace(response.Message.Content)
	if answer == "" {
		return "", fmt.Errorf("ollama chat: empty answer")
	}
	slog.Debug("answer_generated", "model", g.client.genModel, "context_documents", len(docs), "words", len(strings.Fields(answer)))
	return answer, nil
}
