package v1_test

import (
	"net/http"
	"testing"

	"github.com/helixml/codeframe"
	v1 "github.com/helixml/codeframe/infrastructure/api/v1"
	"github.com/helixml/codeframe/infrastructure/api/v1/dto"
)

func TestCategoriesRouter_ImportAnswers(t *testing.T) {
	client := newTestClient(t, codeframe.WithoutWorker())
	routes := v1.NewCategoriesRouter(client).Routes()

	w := serve(t, routes, http.MethodPost, "/3/answers", `{"texts":["too expensive","late parcel"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp dto.AnswerListResponse
	decode(t, w, &resp)
	if len(resp.Data) != 2 {
		t.Fatalf("len(data) = %d, want 2", len(resp.Data))
	}
	if resp.Data[0].CategoryID != 3 {
		t.Errorf("category_id = %d, want 3", resp.Data[0].CategoryID)
	}
}

func TestCategoriesRouter_ImportAnswers_UnknownField(t *testing.T) {
	client := newTestClient(t, codeframe.WithoutWorker())
	routes := v1.NewCategoriesRouter(client).Routes()

	w := serve(t, routes, http.MethodPost, "/3/answers", `{"answers":["x"]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestCategoriesRouter_InvalidID(t *testing.T) {
	client := newTestClient(t, codeframe.WithoutWorker())
	routes := v1.NewCategoriesRouter(client).Routes()

	for _, target := range []string{"/abc/answers", "/0/answers", "/-2/generations"} {
		w := serve(t, routes, http.MethodGet, target, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", target, w.Code, http.StatusBadRequest)
		}
	}
}

func TestCategoriesRouter_ListAnswers_Pagination(t *testing.T) {
	client := newTestClient(t, codeframe.WithoutWorker())
	seedAnswers(t, client, 1)
	routes := v1.NewCategoriesRouter(client).Routes()

	w := serve(t, routes, http.MethodGet, "/1/answers?page=2&page_size=4", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp dto.AnswerListResponse
	decode(t, w, &resp)
	if len(resp.Data) != 4 {
		t.Errorf("len(data) = %d, want 4", len(resp.Data))
	}
	if resp.Meta == nil {
		t.Fatal("meta missing")
	}
	if got := (*resp.Meta)["total_count"]; got != float64(12) {
		t.Errorf("total_count = %v, want 12", got)
	}
	if resp.Links == nil || resp.Links.Next == "" || resp.Links.Prev == "" {
		t.Errorf("links = %+v, want prev and next", resp.Links)
	}
}

func TestCategoriesRouter_ListAnswers_PageWindow(t *testing.T) {
	client := newTestClient(t, codeframe.WithoutWorker())
	seedAnswers(t, client, 1)
	routes := v1.NewCategoriesRouter(client).Routes()

	for _, query := range []string{"page=0", "page=two", "page_size=-3"} {
		w := serve(t, routes, http.MethodGet, "/1/answers?"+query, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", query, w.Code, http.StatusBadRequest)
		}
	}

	w := serve(t, routes, http.MethodGet, "/1/answers?page_size=500", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp dto.AnswerListResponse
	decode(t, w, &resp)
	if got := (*resp.Meta)["page_size"]; got != float64(v1.MaxPageSize) {
		t.Errorf("page_size = %v, want %d", got, v1.MaxPageSize)
	}
	if got := (*resp.Meta)["total_pages"]; got != float64(1) {
		t.Errorf("total_pages = %v, want 1", got)
	}
	if resp.Links.Next != "" || resp.Links.Prev != "" {
		t.Errorf("links = %+v, want a single page", resp.Links)
	}
}

func TestCategoriesRouter_ListGenerations(t *testing.T) {
	client := newTestClient(t, codeframe.WithoutWorker())
	seedAnswers(t, client, 1)
	routes := v1.NewCategoriesRouter(client).Routes()

	w := serve(t, routes, http.MethodGet, "/1/generations", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var empty dto.GenerationListResponse
	decode(t, w, &empty)
	if len(empty.Data) != 0 {
		t.Fatalf("len(data) = %d, want 0", len(empty.Data))
	}

	gens := v1.NewGenerationsRouter(client).Routes()
	if w := serve(t, gens, http.MethodPost, "/", `{"category_id":1}`); w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d; body: %s", w.Code, w.Body.String())
	}

	w = serve(t, routes, http.MethodGet, "/1/generations", "")
	var resp dto.GenerationListResponse
	decode(t, w, &resp)
	if len(resp.Data) != 1 {
		t.Fatalf("len(data) = %d, want 1", len(resp.Data))
	}
	if resp.Data[0].CategoryID != 1 {
		t.Errorf("category_id = %d, want 1", resp.Data[0].CategoryID)
	}
}
