package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditmeter/internal/orgcontext"
)

// Identity headers are set by the upstream identity resolver and trusted as-is.
const (
	HeaderOrg  = "X-Organization-Id"
	HeaderUser = "X-User-Id"
	HeaderRole = "X-User-Role"
)

// Identity requires an organization and user on every request it guards.
func (s *Server) Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := strings.TrimSpace(c.GetHeader(HeaderOrg))
		userID := strings.TrimSpace(c.GetHeader(HeaderUser))
		if orgID == "" || userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := orgcontext.WithIdentity(c.Request.Context(), orgcontext.Identity{
			OrgID:  orgID,
			UserID: userID,
			Role:   c.GetHeader(HeaderRole),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func identityFromRequest(c *gin.Context) (orgcontext.Identity, error) {
	id, ok := orgcontext.IdentityFromContext(c.Request.Context())
	if !ok || id.OrgID == "" || id.UserID == "" {
		return orgcontext.Identity{}, ErrUnauthorized
	}
	return id, nil
}
