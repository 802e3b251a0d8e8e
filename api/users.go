package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Aidin1998/pincex_spot/api/responses"
	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/internal/identities"
)

func (s *Server) registerUser(c *gin.Context) {
	var req identities.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	user, err := s.identities.Register(c.Request.Context(), req)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	responses.Created(c, user, "User registered")
}

func (s *Server) getProfile(c *gin.Context) {
	user, err := s.identities.Profile(c.Request.Context(), currentUser(c))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	responses.Success(c, user)
}
