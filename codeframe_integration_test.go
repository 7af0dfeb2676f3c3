package codeframe_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/codeframe"
	"github.com/helixml/codeframe/application/service"
	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/domain/label"
)

const testPollPeriod = 20 * time.Millisecond

// topicEmbedder puts answers mentioning price on one axis and everything
// else on another, so the density clusterer finds two clean clusters.
type topicEmbedder struct{}

func (topicEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "price") {
			out[i] = []float64{1, 0, 0}
		} else {
			out[i] = []float64{0, 1, 0}
		}
	}
	return out, nil
}

// topicLabeler names a cluster after its first example's topic.
type topicLabeler struct{}

func (topicLabeler) Label(_ context.Context, req label.Request) (label.Label, error) {
	name := "Delivery"
	if len(req.Examples) > 0 && strings.Contains(req.Examples[0], "price") {
		name = "Price"
	}
	return label.Label{
		Name:       name,
		Confidence: hierarchy.ConfidenceHigh,
		Frequency:  hierarchy.FrequencyCommon,
	}, nil
}

// topicClassifier scores the candidate whose name appears in the answer.
type topicClassifier struct{}

func (topicClassifier) Classify(_ context.Context, text string, candidates []assignment.Candidate) ([]assignment.Score, error) {
	scores := make([]assignment.Score, len(candidates))
	for i, c := range candidates {
		confidence := 0.1
		if strings.Contains(strings.ToLower(text), strings.ToLower(c.Name)) {
			confidence = 0.95
		}
		scores[i] = assignment.Score{CodeID: c.ID, Confidence: confidence}
	}
	return scores, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, opts ...codeframe.Option) *codeframe.Client {
	t.Helper()
	base := []codeframe.Option{
		codeframe.WithSQLite(filepath.Join(t.TempDir(), "test.db")),
		codeframe.WithEmbedder(topicEmbedder{}, "topic-v1"),
		codeframe.WithLabeler(topicLabeler{}),
		codeframe.WithClassifier(topicClassifier{}),
		codeframe.WithWorkerPollPeriod(testPollPeriod),
		codeframe.WithLogger(quietLogger()),
	}
	client, err := codeframe.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func surveyAnswers() []string {
	return []string{
		"the price is too high",
		"price went up again",
		"unfair price for what you get",
		"price should be lower",
		"the price hurts",
		"price increase was a surprise",
		"delivery was late",
		"the courier lost my parcel",
		"shipping took two weeks",
		"delivery window was missed",
		"package arrived damaged",
		"slow delivery",
	}
}

func TestClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Answers.Import(ctx, 1, surveyAnswers())
	require.NoError(t, err)

	g, err := client.Generations.Start(ctx, service.StartRequest{CategoryID: 1, Actor: "analyst"})
	require.NoError(t, err)
	assert.Equal(t, generation.StatusLabeling, g.Status())
	assert.Equal(t, 2, g.TotalJobs())

	require.Eventually(t, func() bool {
		status, err := client.Generations.Status(ctx, g.ID())
		return err == nil && status.Generation.Status().IsTerminal()
	}, 10*time.Second, testPollPeriod)

	status, err := client.Generations.Status(ctx, g.ID())
	require.NoError(t, err)
	assert.Equal(t, generation.StatusCompleted, status.Generation.Status())
	assert.Equal(t, int64(2), status.Jobs.Completed)
	assert.Equal(t, 2, status.Generation.NThemes())

	tree, err := client.Hierarchy.Tree(ctx, g.ID())
	require.NoError(t, err)
	require.Len(t, tree, 2)
	names := []string{tree[0].Node.Name(), tree[1].Node.Name()}
	assert.ElementsMatch(t, []string{"Price", "Delivery"}, names)

	summary, err := client.Assignments.Apply(ctx, service.AssignRequest{GenerationID: g.ID(), Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Applied)
	assert.Equal(t, 3, summary.Skipped, "three answers name neither code")

	uncategorized, err := client.Answers.Uncategorized(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, uncategorized, 3)
}

func TestClient_SecondGenerationInProgress(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, codeframe.WithoutWorker())

	_, err := client.Answers.Import(ctx, 1, surveyAnswers())
	require.NoError(t, err)

	_, err = client.Generations.Start(ctx, service.StartRequest{CategoryID: 1})
	require.NoError(t, err)

	_, err = client.Generations.Start(ctx, service.StartRequest{CategoryID: 1})
	assert.Error(t, err)
}

func TestClient_RequiresDatabase(t *testing.T) {
	_, err := codeframe.New()
	assert.ErrorIs(t, err, codeframe.ErrNoDatabase)
}

func TestClient_RequiresProviders(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	_, err := codeframe.New(codeframe.WithSQLite(dbPath), codeframe.WithLogger(quietLogger()))
	assert.ErrorIs(t, err, codeframe.ErrNoEmbeddingProvider)

	_, err = codeframe.New(
		codeframe.WithSQLite(dbPath),
		codeframe.WithEmbedder(topicEmbedder{}, "topic-v1"),
		codeframe.WithLogger(quietLogger()),
	)
	assert.ErrorIs(t, err, codeframe.ErrNoLabelingProvider)
}

func TestClient_CloseTwice(t *testing.T) {
	client, err := codeframe.New(
		codeframe.WithSQLite(filepath.Join(t.TempDir(), "test.db")),
		codeframe.WithSkipProviderValidation(),
		codeframe.WithWorkerPollPeriod(testPollPeriod),
		codeframe.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	require.NoError(t, client.Health(context.Background()))

	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Close(), codeframe.ErrClientClosed)
	assert.ErrorIs(t, client.Health(context.Background()), codeframe.ErrClientClosed)
}
