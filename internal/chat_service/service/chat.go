package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

const defaultConversationID = "default"

// Retriever finds the passages most relevant to a question within one
// user's documents. It degrades to an empty result instead of failing.
type Retriever interface {
	Run(ctx context.Context, query, userID string) []*schema.Passage
}

// Answerer generates a grounded answer from a question, retrieved passages
// and conversation history.
type Answerer interface {
	Answer(ctx context.Context, question string, passages []*schema.Passage, history []models.ChatTurn) (*models.ChatAnswer, error)
}

// AuditLog records completed exchanges on a durable channel so fallback
// answers and degraded retrievals can be reviewed offline.
type AuditLog interface {
	Publish(ctx context.Context, key string, entry *models.LogEntry) error
}

// ChatService answers questions about the caller's transcripts. Each answer
// is grounded in retrieved passages and the recent turns of the
// conversation, and both sides of the exchange are recorded back into the
// history window.
type ChatService struct {
	retriever Retriever
	answerer  Answerer
	history   HistoryStore
	audit     AuditLog // nil disables audit publishing
	log       *logger.Logger
}

// NewChatService creates a ChatService. audit may be nil when no audit
// channel is available; answering never depends on it.
func NewChatService(retriever Retriever, answerer Answerer, history HistoryStore, audit AuditLog, log *logger.Logger) *ChatService {
	return &ChatService{
		retriever: retriever,
		answerer:  answerer,
		history:   history,
		audit:     audit,
		log:       log,
	}
}

// Ask answers one question within a conversation. History problems never
// fail the question: answering without context beats not answering.
func (s *ChatService) Ask(ctx context.Context, userID, conversationID, question string) (*models.ChatAnswer, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if conversationID == "" {
		conversationID = defaultConversationID
	}

	history, err := s.history.Recent(ctx, userID, conversationID)
	if err != nil {
		s.log.WithUser(userID).Warn(fmt.Sprintf("Answering without history: %v", err))
		history = nil
	}

	passages := s.retriever.Run(ctx, question, userID)

	answer, err := s.answerer.Answer(ctx, question, passages, history)
	if err != nil {
		return nil, err
	}

	if err := s.history.Append(ctx, userID, conversationID,
		models.ChatTurn{Role: models.RoleUser, Content: question},
		models.ChatTurn{Role: models.RoleAssistant, Content: answer.Answer},
	); err != nil {
		s.log.WithUser(userID).Warn(fmt.Sprintf("Failed to record conversation turn: %v", err))
	}

	s.publishAudit(ctx, userID, conversationID, question, answer)

	return answer, nil
}

// publishAudit records the outcome of one exchange on the audit channel.
// Only the question length is recorded, not its content. Publish failures
// are logged and swallowed.
func (s *ChatService) publishAudit(ctx context.Context, userID, conversationID, question string, answer *models.ChatAnswer) {
	if s.audit == nil {
		return
	}
	entry := &models.LogEntry{
		ServiceName: "ChatService",
		UserID:      userID,
		Payload: map[string]interface{}{
			"conversation_id": conversationID,
			"question_chars":  len(question),
			"answer_source":   answer.Source,
			"context_used":    answer.ContextUsed,
			"citations":       len(answer.Citations),
		},
	}
	if answer.Source == models.AnswerSourceFallback {
		entry.Error = &models.ErrorInfo{
			Type:    "GenerationError",
			Message: "generation failed, fallback answer served",
		}
	}
	if err := s.audit.Publish(ctx, userID, entry); err != nil {
		s.log.WithUser(userID).Warn(fmt.Sprintf("Failed to publish audit record: %v", err))
	}
}

// History returns the recent turns of a conversation, oldest first.
func (s *ChatService) History(ctx context.Context, userID, conversationID string) ([]models.ChatTurn, error) {
	if conversationID == "" {
		conversationID = defaultConversationID
	}
	return s.history.Recent(ctx, userID, conversationID)
}

// Reset drops a conversation's history so the next question starts fresh.
func (s *ChatService) Reset(ctx context.Context, userID, conversationID string) error {
	if conversationID == "" {
		conversationID = defaultConversationID
	}
	return s.history.Clear(ctx, userID, conversationID)
}
