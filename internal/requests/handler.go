package requests

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/arbiter/internal/intake"
	"github.com/JaimeStill/arbiter/internal/verification"
	"github.com/JaimeStill/arbiter/internal/workflow"
	"github.com/JaimeStill/arbiter/pkg/handlers"
	"github.com/JaimeStill/arbiter/pkg/middleware"
	"github.com/JaimeStill/arbiter/pkg/pagination"
	"github.com/JaimeStill/arbiter/pkg/routes"
)

// Handler provides the human-review HTTP surface over the workflow.
type Handler struct {
	sys        workflow.System
	logger     *slog.Logger
	pagination pagination.Config
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	workflow.Filters
}

// NewHandler creates a Handler.
func NewHandler(sys workflow.System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "requests"),
		pagination: pagination,
	}
}

// Routes returns the request and trust tier route groups.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Children: []routes.Group{
			{
				Prefix: "/requests",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: h.List},
					{Method: "POST", Pattern: "", Handler: h.Submit},
					{Method: "POST", Pattern: "/search", Handler: h.Search},
					{Method: "GET", Pattern: "/{id}", Handler: h.Find},
					{Method: "GET", Pattern: "/{id}/trace", Handler: h.Trace},
					{Method: "GET", Pattern: "/{id}/review", Handler: h.ReviewView},
					{Method: "POST", Pattern: "/{id}/verification", Handler: h.Verification},
					{Method: "POST", Pattern: "/{id}/review", Handler: h.Review},
					{Method: "POST", Pattern: "/{id}/decision", Handler: h.Decide},
					{Method: "POST", Pattern: "/{id}/retry", Handler: h.Retry},
					{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
				},
			},
			{
				Prefix: "/trust",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "/tiers", Handler: h.Tiers},
				},
			},
		},
	}
}

// List returns a page of request summaries filtered by query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search accepts a JSON body with pagination and filter criteria.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decode(r, &req); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Submit creates a request and runs it to its first suspension point.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var cmd intake.Command
	if err := decode(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	rec, err := h.sys.Submit(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, rec)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, rec)
}

// Trace returns the ordered audit log.
func (h *Handler) Trace(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	entries, err := h.sys.Trace(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, entries)
}

// ReviewView returns everything a reviewer needs to decide on a request.
func (h *Handler) ReviewView(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	view, err := h.sys.ReviewView(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, view)
}

// Verification receives the asynchronous identity verification callback.
func (h *Handler) Verification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var outcome verification.Outcome
	if err := decode(r, &outcome); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.respond(w, func() (*workflow.Record, error) {
		return h.sys.ResolveVerification(r.Context(), id, outcome)
	})
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var cmd workflow.ReviewCommand
	if err := decode(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	cmd.Reviewer = actor(r, cmd.Reviewer)

	h.respond(w, func() (*workflow.Record, error) {
		return h.sys.Review(r.Context(), id, cmd)
	})
}

// Decide applies an approve, edit, or reject decision to the current draft.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var cmd workflow.DecisionCommand
	if err := decode(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	cmd.Reviewer = actor(r, cmd.Reviewer)

	h.respond(w, func() (*workflow.Record, error) {
		return h.sys.Decide(r.Context(), id, cmd)
	})
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var cmd workflow.RetryCommand
	if err := decode(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	cmd.Operator = actor(r, cmd.Operator)

	h.respond(w, func() (*workflow.Record, error) {
		return h.sys.RetryExecution(r.Context(), id, cmd)
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var cmd workflow.CancelCommand
	if err := decode(r, &cmd); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	cmd.Operator = actor(r, cmd.Operator)

	h.respond(w, func() (*workflow.Record, error) {
		return h.sys.Cancel(r.Context(), id, cmd)
	})
}

// Tiers returns the configured trust tier boundaries.
func (h *Handler) Tiers(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.sys.Tiers())
}

func (h *Handler) respond(w http.ResponseWriter, fn func() (*workflow.Record, error)) {
	rec, err := fn()
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, rec)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// actor prefers the authenticated principal over a caller-supplied name.
func actor(r *http.Request, claimed string) string {
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		return p.Identity()
	}
	return claimed
}

// decode reads a JSON body. An empty body leaves dst unchanged.
func decode(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ErrBodyTooLarge
	}
	return ErrInvalidBody
}
