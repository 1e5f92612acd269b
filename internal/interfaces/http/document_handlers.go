package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/sygfp/internal/application/port"
	appwf "github.com/garyjia/sygfp/internal/application/workflow"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// ListDocumentsRequest represents query parameters for listing documents
type ListDocumentsRequest struct {
	DocType   string `form:"doc_type"`
	Exercice  int    `form:"exercice"`
	Statut    string `form:"statut"`
	DossierID string `form:"dossier_id"`
	Mine      bool   `form:"mine"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// CommentRequest is the body of a validation
type CommentRequest struct {
	Comment string `json:"comment"`
}

// MotifRequest is the body of a rejection or deferral
type MotifRequest struct {
	Motif          string     `json:"motif"`
	ResumptionDate *time.Time `json:"resumption_date"`
}

// ActionRequest runs any declared action
type ActionRequest struct {
	Action         workflow.Action `json:"action" binding:"required"`
	Comment        string          `json:"comment"`
	Motif          string          `json:"motif"`
	ResumptionDate *time.Time      `json:"resumption_date"`
}

// OutcomeResponse is returned by every transition
type OutcomeResponse struct {
	Document *entity.Document `json:"document"`
	Warnings []string         `json:"warnings,omitempty"`
}

func toOutcomeResponse(o *appwf.Outcome) OutcomeResponse {
	resp := OutcomeResponse{Document: o.Document}
	for _, w := range o.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return resp
}

// bindOptionalJSON binds the body when there is one
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

// CreateDocument handles POST /api/v1/documents
func (h *Handlers) CreateDocument(c *gin.Context) {
	var draft appwf.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	doc, err := h.deps.Engine.Create(c.Request.Context(), currentUser(c), draft)
	if err != nil {
		h.fail(c, err, "create_document", "doc_type", draft.DocType)
		return
	}
	ok(c, http.StatusCreated, doc)
}

// ListDocuments handles GET /api/v1/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	var req ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	filter := port.DocumentFilter{
		DocType:   workflow.DocType(req.DocType),
		Exercice:  req.Exercice,
		Statut:    workflow.Status(req.Statut),
		DossierID: req.DossierID,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if req.Mine {
		filter.CreatedBy = currentUser(c)
	}

	docs, err := h.deps.Documents.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err, "list_documents")
		return
	}
	if docs == nil {
		docs = []*entity.Document{}
	}
	ok(c, http.StatusOK, docs)
}

// GetDocument handles GET /api/v1/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	doc, err := h.deps.Engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get_document", "document_id", c.Param("id"))
		return
	}
	ok(c, http.StatusOK, doc)
}

// UpdateDraft handles PATCH /api/v1/documents/:id
func (h *Handlers) UpdateDraft(c *gin.Context) {
	var patch appwf.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	doc, err := h.deps.Engine.UpdateDraft(c.Request.Context(), currentUser(c), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err, "update_draft", "document_id", c.Param("id"))
		return
	}
	ok(c, http.StatusOK, doc)
}

// GetHistory handles GET /api/v1/documents/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	entries, err := h.deps.Engine.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get_history", "document_id", c.Param("id"))
		return
	}
	if entries == nil {
		entries = []*entity.HistoryEntry{}
	}
	ok(c, http.StatusOK, entries)
}

// GetProgress handles GET /api/v1/documents/:id/progress
func (h *Handlers) GetProgress(c *gin.Context) {
	ctx := c.Request.Context()
	doc, err := h.deps.Engine.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "get_progress", "document_id", c.Param("id"))
		return
	}

	steps, err := h.deps.Tracker.Progress(ctx, doc)
	if err != nil {
		h.fail(c, err, "get_progress", "document_id", doc.ID)
		return
	}
	ok(c, http.StatusOK, steps)
}

// GetAvailableTransitions handles GET /api/v1/documents/:id/transitions
func (h *Handlers) GetAvailableTransitions(c *gin.Context) {
	ctx := c.Request.Context()
	doc, err := h.deps.Engine.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "get_transitions", "document_id", c.Param("id"))
		return
	}

	roles, err := h.deps.Resolver.EffectiveRoles(ctx, currentUser(c), doc.DocType)
	if err != nil {
		h.fail(c, err, "get_transitions", "document_id", doc.ID)
		return
	}

	transitions, err := h.deps.Engine.GetAvailableTransitions(ctx, doc.ID, roles)
	if err != nil {
		h.fail(c, err, "get_transitions", "document_id", doc.ID)
		return
	}
	if transitions == nil {
		transitions = []appwf.AvailableTransition{}
	}
	ok(c, http.StatusOK, transitions)
}

// GetNextAction handles GET /api/v1/documents/:id/next-action
func (h *Handlers) GetNextAction(c *gin.Context) {
	next, err := h.deps.Engine.GetNextAction(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.fail(c, err, "get_next_action", "document_id", c.Param("id"))
		return
	}
	ok(c, http.StatusOK, next)
}

// Submit handles POST /api/v1/documents/:id/submit
func (h *Handlers) Submit(c *gin.Context) {
	h.respondOutcome(c, "submit")(h.deps.Engine.Submit(c.Request.Context(), c.Param("id"), currentUser(c)))
}

// Validate handles POST /api/v1/documents/:id/validate
func (h *Handlers) Validate(c *gin.Context) {
	var req CommentRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.respondOutcome(c, "validate")(h.deps.Engine.Validate(c.Request.Context(), c.Param("id"), currentUser(c), req.Comment))
}

// Reject handles POST /api/v1/documents/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	var req MotifRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.respondOutcome(c, "reject")(h.deps.Engine.Reject(c.Request.Context(), c.Param("id"), currentUser(c), req.Motif))
}

// Defer handles POST /api/v1/documents/:id/defer
func (h *Handlers) Defer(c *gin.Context) {
	var req MotifRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.respondOutcome(c, "defer")(h.deps.Engine.Defer(c.Request.Context(), c.Param("id"), currentUser(c), req.Motif, req.ResumptionDate))
}

// Resubmit handles POST /api/v1/documents/:id/resubmit
func (h *Handlers) Resubmit(c *gin.Context) {
	h.respondOutcome(c, "resubmit")(h.deps.Engine.Resubmit(c.Request.Context(), c.Param("id"), currentUser(c)))
}

// ApplyAction handles POST /api/v1/documents/:id/actions
func (h *Handlers) ApplyAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	h.respondOutcome(c, string(req.Action))(h.deps.Engine.Apply(c.Request.Context(), appwf.Command{
		DocumentID:     c.Param("id"),
		ActorID:        currentUser(c),
		Action:         req.Action,
		Comment:        req.Comment,
		Motif:          req.Motif,
		ResumptionDate: req.ResumptionDate,
	}))
}

func (h *Handlers) respondOutcome(c *gin.Context, op string) func(*appwf.Outcome, error) {
	return func(outcome *appwf.Outcome, err error) {
		if err != nil {
			h.fail(c, err, op, "document_id", c.Param("id"), "actor_id", currentUser(c))
			return
		}
		for _, w := range outcome.Warnings {
			h.logger.Error("Post-commit effect failed", "op", op, "document_id", outcome.Document.ID, "error", w)
		}
		ok(c, http.StatusOK, toOutcomeResponse(outcome))
	}
}
