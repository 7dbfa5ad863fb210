package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditmeter/internal/authorization"
)

func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeOrgActionWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrgActionWithContext(c *gin.Context, object string, action string) error {
	id, err := identityFromRequest(c)
	if err != nil {
		return err
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}

	actor := authorization.Actor{
		Subject:     userSubject(id.UserID),
		ClaimedRole: id.Role,
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor, id.OrgID, strings.TrimSpace(object), strings.TrimSpace(action))
}

// authorizeOperatorAction guards state shared by every organization.
func (s *Server) authorizeOperatorAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeOperatorActionWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOperatorActionWithContext(c *gin.Context, object string, action string) error {
	id, err := identityFromRequest(c)
	if err != nil {
		return err
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}

	actor := authorization.Actor{Subject: userSubject(id.UserID)}
	return s.authzSvc.AuthorizeOperator(c.Request.Context(), actor, strings.TrimSpace(object), strings.TrimSpace(action))
}

func userSubject(userID string) string {
	return fmt.Sprintf("user:%s", strings.TrimSpace(userID))
}
