package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/identity"
)

const defaultSessionTTL = 30 * 24 * time.Hour

// RefreshSession re-issues the caller's token as a fresh session cookie.
func (s *Server) RefreshSession(c *gin.Context) {
	id, ok := currentIdentity(c)
	if !ok {
		AbortWithError(c, apperror.Unauthorized(""))
		return
	}

	ttl := s.cfg.AuthSessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	token, expiresAt, err := s.identities.Issue(identity.Identity{
		UserID: id.UserID,
		Email:  id.Email,
		Name:   id.Name,
		Image:  id.Image,
		Role:   id.Role,
	}, ttl)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.identities.Set(c, token, expiresAt)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"userId":    id.UserID,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) EndSession(c *gin.Context) {
	s.identities.Clear(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
