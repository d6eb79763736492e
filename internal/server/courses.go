package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	coursedomain "github.com/smallbiznis/academy/internal/course/domain"
)

func (s *Server) ListCourses(c *gin.Context) {
	courses, err := s.courses.ListPublished(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": courses})
}

func (s *Server) GetCourse(c *gin.Context) {
	course, err := s.courses.GetPublished(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": course})
}

func (s *Server) CreateCourse(c *gin.Context) {
	req := validated[coursedomain.CreateCourseRequest](c)
	course, err := s.courses.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": course})
}
