package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
	"github.com/bigballadanny/dwschatbot/pkg/circuitbreaker"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
	"github.com/bigballadanny/dwschatbot/pkg/retry"
)

const answerSystemPrompt = `You are an assistant answering questions about the user's transcript library.
Ground every statement in the context passages provided. When a passage supports a statement, cite it inline as (Source: <name>) using the name shown above that passage.
If the context does not contain the answer, say so plainly instead of guessing.`

const (
	noContextAnswer = "I could not find any information about that in your transcripts. Try uploading the relevant call first, or rephrase the question."
	fallbackAnswer  = "I am having trouble generating an answer right now. Please try again in a moment."
	retryNotice     = "The assistant took more than one attempt to answer; the reply may have been delayed."
)

// defaultGenerationRetry bounds model calls when the caller configures no
// policy of its own.
func defaultGenerationRetry() retry.Policy {
	return retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
	}
}

// QAPipeline turns retrieved passages and conversation history into a
// grounded answer with source citations.
type QAPipeline struct {
	llm    interfaces.LLM
	policy retry.Policy
	log    *logger.Logger
}

// NewQAPipeline creates a QAPipeline. A zero retry policy gets the default
// bounded backoff, and an open circuit breaker is never retried against.
func NewQAPipeline(llm interfaces.LLM, policy retry.Policy, log *logger.Logger) *QAPipeline {
	if policy.MaxAttempts <= 0 {
		policy = defaultGenerationRetry()
	}
	if policy.Permanent == nil {
		policy.Permanent = func(err error) bool {
			return errors.Is(err, circuitbreaker.ErrOpen)
		}
	}
	return &QAPipeline{llm: llm, policy: policy, log: log}
}

// Answer generates a grounded answer to query. It always produces a usable
// answer: exhausted retries degrade to a canned fallback rather than an
// error. The error return only reports a finished context.
func (p *QAPipeline) Answer(ctx context.Context, query string, passages []*schema.Passage, history []models.ChatTurn) (*models.ChatAnswer, error) {
	// 1. With no context there is nothing to ground an answer on. Saying so
	// beats letting the model invent one.
	if len(passages) == 0 {
		return &models.ChatAnswer{
			Answer: noContextAnswer,
			Source: models.AnswerSourceAssistant,
		}, nil
	}

	prompt := buildPrompt(query, passages, history)

	// 2. Generate with bounded retries. The first retry sets a notice so the
	// caller can tell the user the answer was delayed, not lost.
	var notice string
	policy := p.policy
	policy.OnRetry = func(attempt int, err error) {
		p.log.Warn(fmt.Sprintf("Answer generation failed: %v. Retrying (attempt %d).", err, attempt))
		if attempt == 2 {
			notice = retryNotice
		}
	}
	text, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return p.llm.Generate(ctx, answerSystemPrompt, prompt)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// 3. Retries exhausted. Serve the fallback so the conversation can
		// continue.
		p.log.Error(fmt.Sprintf("Answer generation failed after retries: %v. Serving fallback answer.", err))
		return &models.ChatAnswer{
			Answer:      fallbackAnswer,
			Source:      models.AnswerSourceFallback,
			Notice:      notice,
			ContextUsed: len(passages),
		}, nil
	}

	// 4. Collect the sources the model actually cited.
	return &models.ChatAnswer{
		Answer:      text,
		Citations:   extractCitations(text),
		Source:      models.AnswerSourceAssistant,
		Notice:      notice,
		ContextUsed: len(passages),
	}, nil
}

// buildPrompt lays out the context passages, the conversation so far and
// the question. Each passage is preceded by the source name the model
// should cite and followed by a delimiter line.
func buildPrompt(query string, passages []*schema.Passage, history []models.ChatTurn) string {
	var b strings.Builder

	b.WriteString("Context passages from the user's transcripts:\n\n")
	for _, passage := range passages {
		name := passage.Source
		if name == "" {
			name = passage.DocumentID
		}
		fmt.Fprintf(&b, "Source: %s\n%s\n---\n", name, passage.Content)
	}
	b.WriteString("\n")

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}

var citationPattern = regexp.MustCompile(`\(Source:\s*([^)]+)\)`)

// extractCitations collects the source names cited in text, left to right,
// without duplicates. The first mention fixes a source's position.
func extractCitations(text string) []string {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	citations := make([]string, 0, len(matches))
	for _, match := range matches {
		name := strings.TrimSpace(match[1])
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		citations = append(citations, name)
	}
	if len(citations) == 0 {
		return nil
	}
	return citations
}
