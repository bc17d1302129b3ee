package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
	"github.com/bigballadanny/dwschatbot/pkg/retry"
)

const summarySystemPrompt = `You summarize business call transcripts.
Write a concise summary of the key points, decisions and action items in a few short paragraphs. Do not invent details that are not in the transcript.`

// maxSummaryInput caps how much transcript text is sent to the model in one
// summary request.
const maxSummaryInput = 24000

// SummarizePipeline condenses a transcript into a short summary.
type SummarizePipeline struct {
	llm    interfaces.LLM
	policy retry.Policy
	log    *logger.Logger
}

// NewSummarizePipeline creates a SummarizePipeline. A zero retry policy
// gets the default bounded backoff.
func NewSummarizePipeline(llm interfaces.LLM, policy retry.Policy, log *logger.Logger) *SummarizePipeline {
	if policy.MaxAttempts <= 0 {
		policy = defaultGenerationRetry()
	}
	return &SummarizePipeline{llm: llm, policy: policy, log: log}
}

// Summarize produces a short summary of text. Long transcripts are
// truncated to keep one request inside the model's input window.
func (p *SummarizePipeline) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("nothing to summarize")
	}
	if len(text) > maxSummaryInput {
		text = strings.ToValidUTF8(text[:maxSummaryInput], "")
		p.log.Debug(fmt.Sprintf("Summary input truncated to %d bytes", maxSummaryInput))
	}

	policy := p.policy
	policy.OnRetry = func(attempt int, err error) {
		p.log.Warn(fmt.Sprintf("Summary generation failed: %v. Retrying (attempt %d).", err, attempt))
	}
	summary, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return p.llm.Generate(ctx, summarySystemPrompt, "Transcript:\n\n"+text)
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize transcript: %w", err)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	return summary, nil
}
