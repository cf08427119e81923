package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/hybrid-rag-assistant/internal/core/domain"
)

const answerSystemPrompt = `You are a helpful AI assistant. Answer the user's question based on the provided context documents.
Rules:
1. Answer based ONLY on the information in the provided context.
2. If the context does not contain enough information to answer the question, respond with "I don't know".
3. Be concise and accurate.
4. Cite the source documents you used.
5. If asked about something not in the context, say that you do not have that information.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildChatMessages(query string, docs []domain.RerankedResult, history []domain.ConversationMessage) []chatMessage {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: answerSystemPrompt})
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := msg.Role
		if role != domain.RoleUser && role != domain.RoleAssistant {
			role = domain.RoleUser
		}
		messages = append(messages, chatMessage{Role: role, Content: content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: buildAnswerPrompt(query, docs)})
	return messages
}

func buildAnswerPrompt(query string, docs []domain.RerankedResult) string {
	return fmt.Sprintf(`Context Documents:
%s

Question: %s

Please provide a concise and accurate answer based on the context above.`, buildContext(docs), query)
}

func buildContext(docs []domain.RerankedResult) string {
	parts := make([]string, 0, len(docs))
	for idx, doc := range docs {
		header := fmt.Sprintf("Document %d: %s", idx+1, documentSource(doc))
		if page, ok := doc.Page(); ok {
			header += fmt.Sprintf(" (Page %d)", page)
		}
		parts = append(parts, header+"\n"+doc.Content)
	}
	return strings.Join(parts, "\n\n")
}

func documentSource(doc domain.RerankedResult) string {
	if name := domain.MetadataString(doc.Metadata, domain.MetaFilename); name != "" {
		return name
	}
	if id := doc.DocumentID(); id != "" {
		return id
	}
	return "Unknown"
}
