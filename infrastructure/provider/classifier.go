package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/embedding"
)

const classifySystemPrompt = `You assign a survey answer to codes of a codeframe.
Score how well the answer fits each listed code with a confidence between 0 and 1.
Reply with a single JSON object and nothing else:
{"scores": [{"code_id": <id>, "confidence": <0..1>}, ...]}
Only use code ids from the list. Omit codes that clearly do not apply.`

// LLMClassifier scores answers against codes with a chat model.
type LLMClassifier struct {
	generator TextGenerator
	breaker   *gobreaker.CircuitBreaker
	maxTokens int
	logger    *slog.Logger
}

// NewLLMClassifier creates an LLMClassifier.
func NewLLMClassifier(generator TextGenerator, logger *slog.Logger) *LLMClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMClassifier{
		generator: generator,
		breaker:   newBreaker("classifier", logger),
		maxTokens: 512,
		logger:    logger,
	}
}

// Classify implements assignment.Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, answerText string, candidates []assignment.Candidate) ([]assignment.Score, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Codes:\n")
	for _, cand := range candidates {
		fmt.Fprintf(&b, "- %d: %s", cand.ID, cand.Name)
		if cand.Description != "" {
			fmt.Fprintf(&b, " (%s)", cand.Description)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nAnswer:\n%s\n", strings.TrimSpace(answerText))

	req := NewChatCompletionRequest([]Message{
		SystemMessage(classifySystemPrompt),
		UserMessage(b.String()),
	}).WithMaxTokens(c.maxTokens).WithJSONMode()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generator.ChatCompletion(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("classify answer: %w", err)
	}
	return parseScores(out.(ChatCompletionResponse).Content())
}

// parseScores accepts either {"scores": [...]} or a bare array.
func parseScores(content string) ([]assignment.Score, error) {
	cleaned := cleanReply(content)

	if obj := jsonSpan(cleaned, '{', '}'); obj != "" && strings.HasPrefix(strings.TrimSpace(cleaned), "{") {
		var wrapped struct {
			Scores []assignment.Score `json:"scores"`
		}
		if err := json.Unmarshal([]byte(obj), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: classifier reply: %v", ErrInvalidInput, err)
		}
		return wrapped.Scores, nil
	}

	arr := jsonSpan(cleaned, '[', ']')
	if arr == "" {
		return nil, fmt.Errorf("%w: classifier reply is not JSON", ErrInvalidInput)
	}
	var scores []assignment.Score
	if err := json.Unmarshal([]byte(arr), &scores); err != nil {
		return nil, fmt.Errorf("%w: classifier reply: %v", ErrInvalidInput, err)
	}
	return scores, nil
}

// EmbeddingClassifier scores answers by cosine similarity between the
// answer vector and each code's "name: description" vector, clamped to [0,1].
type EmbeddingClassifier struct {
	embedder embedding.Embedder
}

// NewEmbeddingClassifier creates an EmbeddingClassifier. Passing an
// embedder backed by the embedding cache keeps code vectors from being
// recomputed for every answer.
func NewEmbeddingClassifier(embedder embedding.Embedder) *EmbeddingClassifier {
	return &EmbeddingClassifier{embedder: embedder}
}

// Classify implements assignment.Classifier.
func (c *EmbeddingClassifier) Classify(ctx context.Context, answerText string, candidates []assignment.Candidate) ([]assignment.Score, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, answerText)
	for _, cand := range candidates {
		text := cand.Name
		if cand.Description != "" {
			text += ": " + cand.Description
		}
		texts = append(texts, text)
	}

	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed answer and codes: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed answer and codes: got %d vectors for %d texts", len(vectors), len(texts))
	}

	scores := make([]assignment.Score, len(candidates))
	for i, cand := range candidates {
		sim := embedding.CosineSimilarity(vectors[0], vectors[i+1])
		scores[i] = assignment.Score{CodeID: cand.ID, Confidence: min(max(sim, 0), 1)}
	}
	return scores, nil
}

var (
	_ assignment.Classifier = (*LLMClassifier)(nil)
	_ assignment.Classifier = (*EmbeddingClassifier)(nil)
)
