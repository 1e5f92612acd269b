package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/sygfp/internal/domain/entity"
)

// DossierResponse is a dossier with its stage rows and linked documents
type DossierResponse struct {
	Dossier   *entity.Dossier        `json:"dossier"`
	Etapes    []*entity.DossierEtape `json:"etapes"`
	Documents []*entity.Document     `json:"documents"`
}

// GetDossier handles GET /api/v1/dossiers/:ref where ref is an id or a numero
func (h *Handlers) GetDossier(c *gin.Context) {
	ctx := c.Request.Context()
	dossier, err := h.deps.Dossiers.GetDossier(ctx, c.Param("ref"))
	if err != nil {
		h.fail(c, err, "get_dossier", "ref", c.Param("ref"))
		return
	}

	etapes, err := h.deps.Dossiers.ListEtapes(ctx, dossier.ID)
	if err != nil {
		h.fail(c, err, "get_dossier", "dossier_id", dossier.ID)
		return
	}

	docs, err := h.deps.Documents.ListByDossier(ctx, dossier.ID)
	if err != nil {
		h.fail(c, err, "get_dossier", "dossier_id", dossier.ID)
		return
	}

	ok(c, http.StatusOK, DossierResponse{Dossier: dossier, Etapes: etapes, Documents: docs})
}

// GetTimeline handles GET /api/v1/dossiers/:ref/timeline
func (h *Handlers) GetTimeline(c *gin.Context) {
	sc, err := h.deps.Spending.Timeline(c.Request.Context(), c.Param("ref"), currentUser(c))
	if err != nil {
		h.fail(c, err, "get_timeline", "ref", c.Param("ref"))
		return
	}
	ok(c, http.StatusOK, sc)
}
