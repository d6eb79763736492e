package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/erroranalytics"
)

func (s *Server) ErrorMetrics(c *gin.Context) {
	r := erroranalytics.ParseRange(c.Query("range"))
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"timeRange": r,
		"data":      s.analytics.Metrics(r),
	})
}

func (s *Server) RecentErrors(c *gin.Context) {
	page, err := parseOptionalInt(c.Query("page"), 1)
	if err != nil {
		AbortWithError(c, apperror.FieldValidation("page", "must be a number"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"), 0)
	if err != nil {
		AbortWithError(c, apperror.FieldValidation("limit", "must be a number"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    s.analytics.Recent(page, limit),
	})
}

func (s *Server) ResolveError(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if !s.analytics.Resolve(id) {
		AbortWithError(c, fmt.Errorf("%w: error %q", ErrNotFound, id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Error marked as resolved"})
}

// ClearErrors is a development convenience.
func (s *Server) ClearErrors(c *gin.Context) {
	if s.cfg.IsProduction() {
		AbortWithError(c, apperror.Forbidden("Clearing errors is only allowed in development"))
		return
	}
	s.analytics.Clear()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Error log cleared"})
}

func parseOptionalInt(value string, def int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def, nil
	}
	return strconv.Atoi(trimmed)
}
