package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/codeframe/domain/assignment"
)

var candidates = []assignment.Candidate{
	{ID: 10, Name: "Price", Description: "cost"},
	{ID: 11, Name: "Taste"},
}

func TestLLMClassifier_ParsesObjectAndArray(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"object", `{"scores": [{"code_id": 10, "confidence": 0.9}, {"code_id": 11, "confidence": 0.1}]}`},
		{"array", "```json\n[{\"code_id\": 10, \"confidence\": 0.9}, {\"code_id\": 11, \"confidence\": 0.1}]\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{content: tt.content}
			scores, err := NewLLMClassifier(gen, nil).Classify(context.Background(), "too expensive", candidates)
			require.NoError(t, err)
			assert.Equal(t, []assignment.Score{{CodeID: 10, Confidence: 0.9}, {CodeID: 11, Confidence: 0.1}}, scores)

			prompt := gen.last.Messages()[1].Content()
			assert.Contains(t, prompt, "- 10: Price (cost)")
			assert.Contains(t, prompt, "- 11: Taste\n")
		})
	}
}

func TestLLMClassifier_RejectsProse(t *testing.T) {
	_, err := NewLLMClassifier(&fakeGenerator{content: "it is about price"}, nil).
		Classify(context.Background(), "x", candidates)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLLMClassifier_NoCandidatesNoCall(t *testing.T) {
	gen := &fakeGenerator{}
	scores, err := NewLLMClassifier(gen, nil).Classify(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Equal(t, int64(0), gen.calls.Load())
}

type fakeEmbedder map[string][]float64

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = f[t]
	}
	return out, nil
}

func TestEmbeddingClassifier_ScoresByCosine(t *testing.T) {
	embedder := fakeEmbedder{
		"too expensive": {1, 0},
		"Price: cost":   {1, 0},
		"Taste":         {-1, 0},
	}
	scores, err := NewEmbeddingClassifier(embedder).Classify(context.Background(), "too expensive", candidates)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, int64(10), scores[0].CodeID)
	assert.InDelta(t, 1.0, scores[0].Confidence, 1e-9)
	assert.Equal(t, int64(11), scores[1].CodeID)
	assert.InDelta(t, 0.0, scores[1].Confidence, 1e-9, "negative similarity clamps to zero")
}
