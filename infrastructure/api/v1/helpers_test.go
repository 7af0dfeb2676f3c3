package v1_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/helixml/codeframe"
	"github.com/helixml/codeframe/domain/assignment"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/domain/label"
)

type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "price") {
			out[i] = []float64{1, 0}
		} else {
			out[i] = []float64{0, 1}
		}
	}
	return out, nil
}

type keywordLabeler struct{}

func (keywordLabeler) Label(_ context.Context, req label.Request) (label.Label, error) {
	name := "Delivery"
	if len(req.Examples) > 0 && strings.Contains(req.Examples[0], "price") {
		name = "Price"
	}
	return label.Label{Name: name, Confidence: hierarchy.ConfidenceHigh, Frequency: hierarchy.FrequencyCommon}, nil
}

type keywordClassifier struct{}

func (keywordClassifier) Classify(_ context.Context, text string, candidates []assignment.Candidate) ([]assignment.Score, error) {
	scores := make([]assignment.Score, len(candidates))
	for i, c := range candidates {
		confidence := 0.2
		if strings.Contains(strings.ToLower(text), strings.ToLower(c.Name)) {
			confidence = 0.9
		}
		scores[i] = assignment.Score{CodeID: c.ID, Confidence: confidence}
	}
	return scores, nil
}

func newTestClient(t *testing.T, opts ...codeframe.Option) *codeframe.Client {
	t.Helper()
	base := []codeframe.Option{
		codeframe.WithSQLite(filepath.Join(t.TempDir(), "test.db")),
		codeframe.WithEmbedder(keywordEmbedder{}, "keyword-v1"),
		codeframe.WithLabeler(keywordLabeler{}),
		codeframe.WithClassifier(keywordClassifier{}),
		codeframe.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	client, err := codeframe.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func seedAnswers(t *testing.T, client *codeframe.Client, categoryID int64) {
	t.Helper()
	texts := []string{
		"the price is too high",
		"price went up again",
		"unfair price",
		"price should be lower",
		"price hurts",
		"price increase was a surprise",
		"delivery was late",
		"slow delivery",
		"delivery never came",
		"delivery driver was rude",
		"delivery took weeks",
		"parcel arrived damaged",
	}
	if _, err := client.Answers.Import(context.Background(), categoryID, texts); err != nil {
		t.Fatalf("import answers: %v", err)
	}
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v; body: %s", err, w.Body.String())
	}
}
