package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/answer"
	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/cluster"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/internal/testdb"
)

// keywordClassifier scores 0.9 for codes whose name appears in the answer
// and 0.2 otherwise. Answers containing "boom" fail.
type keywordClassifier struct {
	mu    sync.Mutex
	calls int
}

func (c *keywordClassifier) Classify(_ context.Context, text string, candidates []assignment.Candidate) ([]assignment.Score, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if strings.Contains(text, "boom") {
		return nil, errors.New("classifier unavailable")
	}
	scores := make([]assignment.Score, len(candidates))
	for i, cand := range candidates {
		confidence := 0.2
		if strings.Contains(strings.ToLower(text), strings.ToLower(cand.Name)) {
			confidence = 0.9
		}
		scores[i] = assignment.Score{CodeID: cand.ID, Confidence: confidence}
	}
	return scores, nil
}

// advanceTo walks a stored generation through the state machine.
func advanceTo(t *testing.T, s stores, g generation.Generation, path ...generation.Status) generation.Generation {
	t.Helper()
	ctx := context.Background()
	for _, next := range path {
		from := g.Status()
		moved, err := g.Transition(next, time.Now().UTC())
		require.NoError(t, err)
		g, err = s.generations.Transition(ctx, from, moved)
		require.NoError(t, err)
	}
	return g
}

func toLabeling(t *testing.T, s stores, categoryID int64, requested []int64) generation.Generation {
	t.Helper()
	g, err := s.generations.Create(context.Background(),
		generation.NewGeneration(categoryID, requested, cluster.Config{}, DefaultTargetLanguage, "tester"))
	require.NoError(t, err)
	return advanceTo(t, s, g, generation.StatusEmbedding, generation.StatusClustering, generation.StatusLabeling)
}

func addCode(t *testing.T, s stores, generationID int64, parentID *int64, name string) hierarchy.Node {
	t.Helper()
	n, err := s.hierarchy.Add(context.Background(), generationID, hierarchy.AddAction{
		ParentID:   parentID,
		Name:       name,
		Confidence: hierarchy.ConfidenceHigh,
		Frequency:  hierarchy.FrequencyCommon,
	}, "tester")
	require.NoError(t, err)
	return n
}

type assignFixture struct {
	ctx        context.Context
	s          stores
	classifier *keywordClassifier
	svc        *Assignment
	gen        generation.Generation
	answers    []answer.Answer
	price      hierarchy.Node
	delivery   hierarchy.Node
}

// newAssignFixture builds a completed codeframe with one theme and two leaf
// codes, "price" and "delivery".
func newAssignFixture(t *testing.T, texts ...string) *assignFixture {
	t.Helper()
	s := newStores(t)
	f := &assignFixture{ctx: context.Background(), s: s, classifier: &keywordClassifier{}}
	f.answers = testdb.Answers(t, s.db, 1, texts...)

	g := toLabeling(t, s, 1, nil)
	theme := addCode(t, s, g.ID(), nil, "Service")
	themeID := theme.ID()
	f.price = addCode(t, s, g.ID(), &themeID, "price")
	f.delivery = addCode(t, s, g.ID(), &themeID, "delivery")
	f.gen = advanceTo(t, s, g, generation.StatusCompleted)

	f.svc = NewAssignment(s.generations, s.answers, s.hierarchy, s.assignments, f.classifier,
		NewQueue(s.jobs, testLogger()), testLogger()).WithParallelism(2)
	return f
}

func (f *assignFixture) records(t *testing.T) map[int64]assignment.Record {
	t.Helper()
	records, err := f.svc.List(f.ctx, f.gen.ID())
	require.NoError(t, err)
	out := make(map[int64]assignment.Record, len(records))
	for _, r := range records {
		out[r.AnswerID()] = r
	}
	return out
}

func TestAssignment_AppliesBestLeafAboveThreshold(t *testing.T) {
	f := newAssignFixture(t, "the price is too high", "delivery was late", "no opinion", "   ")

	summary, err := f.svc.Apply(f.ctx, AssignRequest{GenerationID: f.gen.ID(), Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, assignment.Summary{Applied: 2, Skipped: 2}, summary)
	assert.Equal(t, 3, f.classifier.calls, "blank answers are not classified")

	records := f.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, f.price.ID(), records[f.answers[0].ID()].NodeID())
	assert.Equal(t, f.delivery.ID(), records[f.answers[1].ID()].NodeID())
	assert.InDelta(t, 0.9, records[f.answers[0].ID()].Confidence(), 1e-9)
}

func TestAssignment_ThresholdBounds(t *testing.T) {
	f := newAssignFixture(t, "the price is too high", "no opinion")

	summary, err := f.svc.Apply(f.ctx, AssignRequest{GenerationID: f.gen.ID(), Threshold: 0})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Applied, "threshold 0 assigns every classified answer")

	summary, err = f.svc.Apply(f.ctx, AssignRequest{GenerationID: f.gen.ID(), Threshold: 1})
	require.NoError(t, err)
	assert.Equal(t, assignment.Summary{Skipped: 2}, summary)
	assert.Empty(t, f.records(t), "answers below the new threshold lose their assignment")
}

func TestAssignment_RerunReplacesAssignment(t *testing.T) {
	f := newAssignFixture(t, "the price is too high", "delivery was late")

	_, err := f.svc.Apply(f.ctx, AssignRequest{GenerationID: f.gen.ID(), Threshold: 0.5})
	require.NoError(t, err)
	_, err = f.svc.Apply(f.ctx, AssignRequest{GenerationID: f.gen.ID(), Threshold: 0.5})
	require.NoError(t, err)

	count, err := f.s.assignments.Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "one record per answer")
}

func TestAssignment_ClassifierErrorsAreCounted(t *testing.T) {
	f := newAssignFixture(t, "the price is too high", "boom", "delivery boom")

	summary, err := f.svc.Apply(f.ctx, AssignRequest{GenerationID: f.gen.ID(), Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, assignment.Summary{Applied: 1, Errors: 2}, summary)
}

func TestAssignment_RequiresFinalizedGeneration(t *testing.T) {
	s := newStores(t)
	testdb.Answers(t, s.db, 1, "the price is too high")
	g := toLabeling(t, s, 1, nil)
	addCode(t, s, g.ID(), nil, "price")
	svc := NewAssignment(s.generations, s.answers, s.hierarchy, s.assignments, &keywordClassifier{},
		NewQueue(s.jobs, testLogger()), testLogger())

	_, err := svc.Apply(context.Background(), AssignRequest{GenerationID: g.ID(), Threshold: 0.5})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Apply(context.Background(), AssignRequest{GenerationID: 999, Threshold: 0.5})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssignment_NoCodesIsInsufficientData(t *testing.T) {
	s := newStores(t)
	testdb.Answers(t, s.db, 1, "anything")
	g := advanceTo(t, s, toLabeling(t, s, 1, nil), generation.StatusCompleted)
	svc := NewAssignment(s.generations, s.answers, s.hierarchy, s.assignments, &keywordClassifier{},
		NewQueue(s.jobs, testLogger()), testLogger())

	_, err := svc.Apply(context.Background(), AssignRequest{GenerationID: g.ID(), Threshold: 0.5})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestAssignment_RejectsInvalidThreshold(t *testing.T) {
	f := newAssignFixture(t, "the price is too high")

	for _, threshold := range []float64{-0.1, 1.5} {
		_, err := f.svc.Apply(f.ctx, AssignRequest{GenerationID: f.gen.ID(), Threshold: threshold})
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	assert.Zero(t, f.classifier.calls)
}

func TestAssignment_Scope(t *testing.T) {
	f := newAssignFixture(t, "the price is too high", "delivery was late")
	foreign := testdb.Answers(t, f.s.db, 2, "price elsewhere")

	summary, err := f.svc.Apply(f.ctx, AssignRequest{
		GenerationID: f.gen.ID(),
		Threshold:    0.5,
		AnswerIDs:    []int64{f.answers[1].ID()},
	})
	require.NoError(t, err)
	assert.Equal(t, assignment.Summary{Applied: 1}, summary)
	records := f.records(t)
	require.Len(t, records, 1)
	assert.Contains(t, records, f.answers[1].ID())

	_, err = f.svc.Apply(f.ctx, AssignRequest{
		GenerationID: f.gen.ID(),
		Threshold:    0.5,
		AnswerIDs:    []int64{f.answers[0].ID(), foreign[0].ID()},
	})
	assert.ErrorIs(t, err, domain.ErrValidation, "answers of another category are out of scope")
}

func TestAssignment_ApplyAsyncQueuesJob(t *testing.T) {
	f := newAssignFixture(t, "the price is too high")

	id, err := f.svc.ApplyAsync(f.ctx, AssignRequest{GenerationID: f.gen.ID(), Threshold: 0.5, Actor: "analyst"})
	require.NoError(t, err)

	queued, err := f.s.jobs.Get(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.KindApplyAssignments, queued.Kind())
	assert.Equal(t, job.StateWaiting, queued.State())
	assert.Equal(t, f.gen.ID(), queued.GenerationID())

	payload, err := job.Decode[job.ApplyAssignmentsPayload](queued)
	require.NoError(t, err)
	assert.Equal(t, "analyst", payload.Actor)
	assert.NotEmpty(t, payload.RequestID)
	assert.Zero(t, f.classifier.calls, "classification runs in the worker")

	_, err = f.svc.ApplyAsync(f.ctx, AssignRequest{GenerationID: f.gen.ID(), Threshold: 2})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
