package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/helixml/codeframe/infrastructure/persistence"
	"github.com/helixml/codeframe/internal/database"
	"github.com/helixml/codeframe/internal/testdb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stores struct {
	db          database.Database
	answers     persistence.AnswerStore
	cache       persistence.EmbeddingCacheStore
	generations persistence.GenerationStore
	hierarchy   persistence.HierarchyStore
	assignments persistence.AssignmentStore
	jobs        persistence.JobStore
}

func newStores(t *testing.T) stores {
	t.Helper()
	db := testdb.New(t)
	return stores{
		db:          db,
		answers:     persistence.NewAnswerStore(db),
		cache:       persistence.NewEmbeddingCacheStore(db),
		generations: persistence.NewGenerationStore(db),
		hierarchy:   persistence.NewHierarchyStore(db),
		assignments: persistence.NewAssignmentStore(db),
		jobs:        persistence.NewJobStore(db),
	}
}

// fakeEmbedder returns the configured vector for each text, or a vector
// derived from the text length, and records every request.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	calls   [][]string
	fail    func(call int, texts []string) error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.fail != nil {
		if err := f.fail(len(f.calls), texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) requested() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
