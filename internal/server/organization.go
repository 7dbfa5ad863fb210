package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
)

type changePlanRequest struct {
	PlanName string `json:"planName"`
}

type addMemberRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

func (s *Server) GetOrganization(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	org, err := s.orgs.Get(c.Request.Context(), id.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

func (s *Server) ChangeOrganizationPlan(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if err := s.orgs.ChangePlan(ctx, id.OrgID, req.PlanName); err != nil {
		AbortWithError(c, err)
		return
	}
	org, err := s.orgs.Get(ctx, id.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

func (s *Server) AddOrganizationMember(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.orgs.AddMember(c.Request.Context(), orgdomain.AddMemberRequest{
		OrgID:       id.OrgID,
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
