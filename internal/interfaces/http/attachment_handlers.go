package http

import (
	"fmt"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/sygfp/internal/application/service"
	"github.com/garyjia/sygfp/internal/domain/entity"
)

// ListAttachments handles GET /api/v1/documents/:id/attachments
func (h *Handlers) ListAttachments(c *gin.Context) {
	atts, err := h.deps.Attachments.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "list_attachments", "document_id", c.Param("id"))
		return
	}
	if atts == nil {
		atts = []*entity.Attachment{}
	}
	ok(c, http.StatusOK, atts)
}

// UploadAttachment handles POST /api/v1/documents/:id/attachments (multipart field "file")
func (h *Handlers) UploadAttachment(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Error: fmt.Sprintf("file exceeds %d bytes", h.maxUpload),
		})
		return
	}

	f, err := header.Open()
	if err != nil {
		badRequest(c, "unreadable upload")
		return
	}
	defer f.Close()

	att, err := h.deps.Attachments.Upload(c.Request.Context(), currentUser(c), c.Param("id"), service.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     f,
	})
	if err != nil {
		h.fail(c, err, "upload_attachment", "document_id", c.Param("id"))
		return
	}
	ok(c, http.StatusCreated, att)
}

// AttachmentURL handles GET /api/v1/attachments/:id/url
func (h *Handlers) AttachmentURL(c *gin.Context) {
	url, err := h.deps.Attachments.URL(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "attachment_url", "attachment_id", c.Param("id"))
		return
	}
	ok(c, http.StatusOK, gin.H{"url": url})
}

// DeleteAttachment handles DELETE /api/v1/attachments/:id
func (h *Handlers) DeleteAttachment(c *gin.Context) {
	if err := h.deps.Attachments.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		h.fail(c, err, "delete_attachment", "attachment_id", c.Param("id"))
		return
	}
	c.Status(http.StatusNoContent)
}

// DownloadFile handles GET /api/v1/files?key=&expires=&sig=, the signed links of local storage
func (h *Handlers) DownloadFile(c *gin.Context) {
	if h.deps.Files == nil {
		c.JSON(http.StatusNotFound, Response{Error: "file downloads are served by the object store"})
		return
	}

	key := c.Query("key")
	if err := h.deps.Files.Verify(key, c.Query("expires"), c.Query("sig")); err != nil {
		h.fail(c, err, "download_file")
		return
	}

	rc, err := h.deps.Files.Get(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err, "download_file", "key", key)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", path.Base(key)),
	})
}
