package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/helixml/codeframe/domain/label"
)

const labelSystemPrompt = `You name themes in open-ended survey answers for market research codeframes.
You receive example answers that belong to one theme. Reply with a single JSON object and nothing else:
{"name": "...", "description": "...", "confidence": "high|medium|low", "frequency_estimate": "very_common|common|occasional|rare"}
- name: a short code label (2 to 5 words) written in the requested language
- description: one sentence describing what the answers have in common, in the requested language
- confidence: how clearly the examples share one theme
- frequency_estimate: how common this theme is likely to be among all answers`

// Labeler names clusters with a chat model. Calls go through a circuit
// breaker so a failing endpoint is not hammered by every queued job.
type Labeler struct {
	generator   TextGenerator
	breaker     *gobreaker.CircuitBreaker
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// NewLabeler creates a Labeler.
func NewLabeler(generator TextGenerator, logger *slog.Logger) *Labeler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Labeler{
		generator:   generator,
		breaker:     newBreaker("labeler", logger),
		maxTokens:   512,
		temperature: 0.2,
		logger:      logger,
	}
}

// WithMaxTokens sets the maximum tokens for a reply.
func (l *Labeler) WithMaxTokens(n int) *Labeler {
	if n > 0 {
		l.maxTokens = n
	}
	return l
}

type labelReply struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	Confidence        string `json:"confidence"`
	FrequencyEstimate string `json:"frequency_estimate"`
}

// Label implements label.Labeler. Replies missing a field or using values
// outside the enums fail with label.ErrInvalidLabel.
func (l *Labeler) Label(ctx context.Context, req label.Request) (label.Label, error) {
	if err := req.Validate(); err != nil {
		return label.Label{}, err
	}

	chatReq := NewChatCompletionRequest([]Message{
		SystemMessage(labelSystemPrompt),
		UserMessage(labelPrompt(req)),
	}).WithMaxTokens(l.maxTokens).WithTemperature(l.temperature).WithJSONMode()

	out, err := l.breaker.Execute(func() (interface{}, error) {
		return l.generator.ChatCompletion(ctx, chatReq)
	})
	if err != nil {
		return label.Label{}, fmt.Errorf("label cluster: %w", err)
	}
	resp := out.(ChatCompletionResponse)

	parsed, err := parseLabel(resp.Content())
	if err != nil {
		l.logger.WarnContext(ctx, "labeler returned an unusable reply",
			slog.String("reply", truncate(resp.Content(), 300)),
			slog.Any("error", err),
		)
		return label.Label{}, err
	}
	return parsed, nil
}

func labelPrompt(req label.Request) string {
	var b strings.Builder
	language := req.TargetLanguage
	if language == "" {
		language = "en"
	}
	fmt.Fprintf(&b, "Language for name and description: %s\n", language)
	if req.ParentName != "" {
		fmt.Fprintf(&b, "These answers form a sub-theme of %q; name the narrower theme.\n", req.ParentName)
	}
	b.WriteString("Example answers:\n")
	for _, e := range req.Examples {
		if strings.TrimSpace(e) == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(e))
	}
	return b.String()
}

func parseLabel(content string) (label.Label, error) {
	body := jsonSpan(cleanReply(content), '{', '}')
	if body == "" {
		return label.Label{}, fmt.Errorf("%w: reply is not a JSON object", label.ErrInvalidLabel)
	}
	var reply labelReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return label.Label{}, fmt.Errorf("%w: %v", label.ErrInvalidLabel, err)
	}
	return label.Parse(reply.Name, reply.Description, reply.Confidence, reply.FrequencyEstimate)
}

// newBreaker opens after five consecutive provider failures and lets a
// trial request through after thirty seconds. Invalid replies and caller
// cancellations do not count against the endpoint.
func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrInvalidInput) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ label.Labeler = (*Labeler)(nil)
