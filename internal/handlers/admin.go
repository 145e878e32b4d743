package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	limit := 50
	offset := 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}

	users, err := h.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list users failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	items := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		items = append(items, map[string]interface{}{
			"id":          u.ID,
			"email":       u.Email,
			"name":        u.Name,
			"role":        u.Role,
			"status":      u.Status,
			"hasPassword": u.HasPassword(),
			"createdAt":   u.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
	})
}
