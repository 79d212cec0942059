package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LoginHandler exchanges operator credentials for a bearer token
func (s *Service) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	token, err := s.Login(req.Username, req.Password)
	if err != nil {
		var authErr AuthError
		if !errors.As(err, &authErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "failed to issue token"})
			return
		}
		status := http.StatusUnauthorized
		if authErr == ErrAuthDisabled {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": authErr.Code, "message": authErr.Message})
		return
	}
	c.JSON(http.StatusOK, token)
}
