// Package v1 provides the v1 API routes.
package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/codeframe"
	"github.com/helixml/codeframe/infrastructure/api/middleware"
	"github.com/helixml/codeframe/infrastructure/api/v1/dto"
)

// CategoriesRouter handles answer import and per-category listings.
type CategoriesRouter struct {
	client *codeframe.Client
	logger *slog.Logger
}

// NewCategoriesRouter creates a new CategoriesRouter.
func NewCategoriesRouter(client *codeframe.Client) *CategoriesRouter {
	return &CategoriesRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for category endpoints.
func (r *CategoriesRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/{id}/answers", r.ImportAnswers)
	router.Get("/{id}/answers", r.ListAnswers)
	router.Get("/{id}/generations", r.ListGenerations)

	return router
}

// ImportAnswers handles POST /api/v1/categories/{id}/answers.
func (r *CategoriesRouter) ImportAnswers(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	categoryID, err := pathID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	var body dto.AnswersRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	answers, err := r.client.Answers.Import(ctx, categoryID, body.Texts)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, dto.NewAnswerListResponse(answers))
}

// ListAnswers handles GET /api/v1/categories/{id}/answers.
func (r *CategoriesRouter) ListAnswers(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	categoryID, err := pathID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	page, err := ParsePage(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	answers, err := r.client.Answers.List(ctx, categoryID, page.Limit(), page.Offset())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	total, err := r.client.Answers.Count(ctx, categoryID)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	response := dto.NewAnswerListResponse(answers)
	response.Meta, response.Links = page.Describe(req, total)

	middleware.WriteJSON(w, http.StatusOK, response)
}

// ListGenerations handles GET /api/v1/categories/{id}/generations.
// Generations are listed newest first.
func (r *CategoriesRouter) ListGenerations(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	categoryID, err := pathID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	gens, err := r.client.Generations.List(ctx, categoryID)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.NewGenerationListResponse(gens))
}

func pathID(req *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		return 0, middleware.BadRequest("invalid id", err)
	}
	if id <= 0 {
		return 0, middleware.BadRequest("id must be positive", nil)
	}
	return id, nil
}
