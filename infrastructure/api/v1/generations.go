package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/helixml/codeframe"
	"github.com/helixml/codeframe/application/service"
	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/infrastructure/api/middleware"
	"github.com/helixml/codeframe/infrastructure/api/v1/dto"
	"github.com/helixml/codeframe/internal/config"
)

// GenerationsRouter handles generation, hierarchy, assignment and job
// endpoints.
type GenerationsRouter struct {
	client         *codeframe.Client
	requestTimeout time.Duration
	startTimeout   time.Duration
	logger         *slog.Logger
}

// NewGenerationsRouter creates a new GenerationsRouter.
func NewGenerationsRouter(client *codeframe.Client) *GenerationsRouter {
	return &GenerationsRouter{
		client:         client,
		requestTimeout: config.DefaultRequestTimeout,
		startTimeout:   config.DefaultGenerationStartTimeout,
		logger:         client.Logger(),
	}
}

// WithTimeouts sets the deadline of ordinary requests and the longer one
// of POST /, which embeds and clusters before it answers.
func (r *GenerationsRouter) WithTimeouts(request, start time.Duration) *GenerationsRouter {
	if request > 0 {
		r.requestTimeout = request
	}
	if start > 0 {
		r.startTimeout = start
	}
	return r
}

// Routes returns the chi router for generation endpoints.
func (r *GenerationsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.With(chimiddleware.Timeout(r.startTimeout)).Post("/", r.Start)
	router.Group(func(g chi.Router) {
		g.Use(chimiddleware.Timeout(r.requestTimeout))
		g.Get("/{id}", r.Get)
		g.Post("/{id}/cancel", r.Cancel)
		g.Get("/{id}/hierarchy", r.GetHierarchy)
		g.Post("/{id}/hierarchy/actions", r.ApplyAction)
		g.Post("/{id}/assignments", r.ApplyAssignments)
		g.Get("/{id}/jobs", r.ListJobs)
	})

	return router
}

// Start handles POST /api/v1/generations. It answers once the label jobs
// are queued; clients poll GET /generations/{id} for completion.
func (r *GenerationsRouter) Start(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body dto.GenerationRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	startReq := service.StartRequest{
		CategoryID:     body.CategoryID,
		AnswerIDs:      body.AnswerIDs,
		TargetLanguage: body.TargetLanguage,
		Actor:          body.Actor,
	}
	if body.Algorithm != nil {
		startReq.Config = *body.Algorithm
	}

	g, err := r.client.Generations.Start(ctx, startReq)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, dto.GenerationStatusResponse{
		Data: dto.NewGenerationResponse(g),
	})
}

// Get handles GET /api/v1/generations/{id}. Reading the status finalizes a
// generation whose label jobs have all finished.
func (r *GenerationsRouter) Get(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := pathID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	status, err := r.client.Generations.Status(ctx, id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.GenerationStatusResponse{
		Data: dto.NewGenerationResponse(status.Generation),
		Jobs: status.Jobs,
	})
}

// Cancel handles POST /api/v1/generations/{id}/cancel.
func (r *GenerationsRouter) Cancel(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := pathID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	var body dto.CancelRequest
	if req.ContentLength > 0 {
		if err := middleware.DecodeJSON(req, &body); err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
	}

	g, err := r.client.Generations.Cancel(ctx, id, body.Actor)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.GenerationStatusResponse{
		Data: dto.NewGenerationResponse(g),
	})
}

// GetHierarchy handles GET /api/v1/generations/{id}/hierarchy.
// With flat=true the nodes come back as a tree-ordered list.
func (r *GenerationsRouter) GetHierarchy(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := pathID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	flat := false
	if s := req.URL.Query().Get("flat"); s != "" {
		flat, err = strconv.ParseBool(s)
		if err != nil {
			middleware.WriteError(w, req, middleware.BadRequest("invalid flat parameter", err), r.logger)
			return
		}
	}

	if flat {
		nodes, err := r.client.Hierarchy.Flat(ctx, id)
		if err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, dto.NewFlatResponse(nodes))
		return
	}

	tree, err := r.client.Hierarchy.Tree(ctx, id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dto.NewTreeResponse(tree))
}

// ApplyAction handles POST /api/v1/generations/{id}/hierarchy/actions.
func (r *GenerationsRouter) ApplyAction(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := pathID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	var body dto.ActionRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	action, err := body.Action()
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	result, err := r.client.Hierarchy.Apply(ctx, id, action, body.Actor)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.NewActionResponse(result))
}

// ApplyAssignments handles POST /api/v1/generations/{id}/assignments.
// With async=true the run is queued and the job id returned.
func (r *GenerationsRouter) ApplyAssignments(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := pathID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	var body dto.AssignmentRequest
	if err := middleware.DecodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	if body.Threshold == nil {
		middleware.WriteError(w, req, fmt.Errorf("%w: threshold is required", domain.ErrValidation), r.logger)
		return
	}

	assignReq := service.AssignRequest{
		GenerationID: id,
		Threshold:    *body.Threshold,
		AnswerIDs:    body.AnswerIDs,
		Actor:        body.Actor,
	}

	if body.Async {
		jobID, err := r.client.Assignments.ApplyAsync(ctx, assignReq)
		if err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
		middleware.WriteJSON(w, http.StatusAccepted, dto.QueuedResponse{JobID: jobID})
		return
	}

	summary, err := r.client.Assignments.Apply(ctx, assignReq)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.AssignmentResponse{Data: summary})
}

// ListJobs handles GET /api/v1/generations/{id}/jobs.
// Optional filters: state, kind. Paginated with page and page_size.
func (r *GenerationsRouter) ListJobs(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := pathID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	page, err := ParsePage(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	if _, err := r.client.Generations.Get(ctx, id); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	params := &service.JobListParams{
		Limit:  page.Limit(),
		Offset: page.Offset(),
	}
	filtered := false
	if s := req.URL.Query().Get("state"); s != "" {
		state := job.State(s)
		params.State = &state
		filtered = true
	}
	if k := req.URL.Query().Get("kind"); k != "" {
		kind := job.Kind(k)
		params.Kind = &kind
		filtered = true
	}

	jobs, err := r.client.Jobs.List(ctx, id, params)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	response := dto.JobListResponse{Data: make([]dto.JobResponse, len(jobs))}
	for i, j := range jobs {
		response.Data[i] = dto.NewJobResponse(j)
	}

	if !filtered {
		counts, err := r.client.Jobs.Counts(ctx, id)
		if err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
		response.Meta, response.Links = page.Describe(req, counts.Total())
	}

	middleware.WriteJSON(w, http.StatusOK, response)
}
