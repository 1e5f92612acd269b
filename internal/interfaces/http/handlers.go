package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps      Deps
	maxUpload int64
	logger    Logger
}

// NewHandlers creates a new Handlers instance. maxUpload <= 0 disables the size check.
func NewHandlers(deps Deps, maxUpload int64, logger Logger) *Handlers {
	return &Handlers{
		deps:      deps,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if h.deps.Health != nil {
		healthy, detail := h.deps.Health(c.Request.Context())
		resp.Components = detail
		if !healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// CheckPrerequisites handles GET /api/v1/prerequisites?doc_type=&dossier_id=&montant=
func (h *Handlers) CheckPrerequisites(c *gin.Context) {
	docType, valid := workflow.ParseDocType(c.Query("doc_type"))
	if !valid {
		badRequest(c, "unknown doc_type")
		return
	}

	montant := decimal.Zero
	if raw := c.Query("montant"); raw != "" {
		m, err := decimal.NewFromString(raw)
		if err != nil {
			badRequest(c, "invalid montant")
			return
		}
		montant = m
	}

	result, err := h.deps.Engine.CheckPrerequisites(c.Request.Context(), docType, c.Query("dossier_id"), montant)
	if err != nil {
		h.fail(c, err, "check_prerequisites")
		return
	}
	ok(c, http.StatusOK, result)
}
