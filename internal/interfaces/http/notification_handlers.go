package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/sygfp/internal/domain/entity"
)

// ListNotifications handles GET /api/v1/notifications?unread=true&limit=
func (h *Handlers) ListNotifications(c *gin.Context) {
	unread := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	items, err := h.deps.Notifications.List(c.Request.Context(), currentUser(c), unread, limit)
	if err != nil {
		h.fail(c, err, "list_notifications")
		return
	}
	if items == nil {
		items = []*entity.Notification{}
	}
	ok(c, http.StatusOK, items)
}

// CountUnread handles GET /api/v1/notifications/unread-count
func (h *Handlers) CountUnread(c *gin.Context) {
	n, err := h.deps.Notifications.CountUnread(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err, "count_unread")
		return
	}
	ok(c, http.StatusOK, gin.H{"unread": n})
}

// MarkRead handles POST /api/v1/notifications/:id/read
func (h *Handlers) MarkRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid notification id")
		return
	}

	if err := h.deps.Notifications.MarkRead(c.Request.Context(), id, currentUser(c)); err != nil {
		h.fail(c, err, "mark_read", "notification_id", id)
		return
	}
	c.Status(http.StatusNoContent)
}
