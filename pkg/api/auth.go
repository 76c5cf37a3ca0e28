package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// requireBearer guards /api/v1. An unset token rejects everything; the
// daemon only serves the API when one is configured, so this is the
// backstop rather than the policy.
func (s *Server) requireBearer() gin.HandlerFunc {
	want := []byte("Bearer " + s.token)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("Authorization"))
		if s.token == "" || subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer token"})
			return
		}
		c.Next()
	}
}
