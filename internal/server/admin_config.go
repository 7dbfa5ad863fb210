package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	"github.com/smallbiznis/creditmeter/internal/observability/logger"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"go.uber.org/zap"
)

const maxPatchBytes = 64 << 10

func (s *Server) AdminListEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": s.events.List(c.Request.Context())})
}

func (s *Server) AdminListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": s.plans.List(c.Request.Context())})
}

// AdminUpdateEvent merges the body over the stored definition, creating it when absent.
func (s *Server) AdminUpdateEvent(c *gin.Context) {
	patch, err := readPatch(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	def, err := s.events.Update(c.Request.Context(), eventdomain.UpdateRequest{
		EventType: strings.TrimSpace(c.Param("eventType")),
		Patch:     patch,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("event definition updated", zap.String("event_type", def.EventType))
	c.JSON(http.StatusOK, def)
}

func (s *Server) AdminDeleteEvent(c *gin.Context) {
	eventType := strings.TrimSpace(c.Param("eventType"))
	if err := s.events.Delete(c.Request.Context(), eventType); err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("event definition deleted", zap.String("event_type", eventType))
	c.Status(http.StatusNoContent)
}

func (s *Server) AdminUpdatePlan(c *gin.Context) {
	patch, err := readPatch(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	def, err := s.plans.Update(c.Request.Context(), plandomain.UpdateRequest{
		PlanName: strings.TrimSpace(c.Param("planName")),
		Patch:    patch,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("plan definition updated", zap.String("plan", def.PlanName))
	c.JSON(http.StatusOK, def)
}

func (s *Server) AdminDeletePlan(c *gin.Context) {
	planName := strings.TrimSpace(c.Param("planName"))
	if err := s.plans.Delete(c.Request.Context(), planName); err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("plan definition deleted", zap.String("plan", planName))
	c.Status(http.StatusNoContent)
}

func (s *Server) AdminCacheInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"events": s.events.CacheInfo(),
		"plans":  s.plans.CacheInfo(),
	})
}

// AdminRefresh reloads both registries; either failing fails the request.
func (s *Server) AdminRefresh(c *gin.Context) {
	ctx := c.Request.Context()
	if err := errors.Join(s.events.Refresh(ctx), s.plans.Refresh(ctx)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": s.events.CacheInfo(),
		"plans":  s.plans.CacheInfo(),
	})
}

func readPatch(c *gin.Context) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPatchBytes+1))
	if err != nil || len(body) > maxPatchBytes {
		return nil, invalidRequestError()
	}
	if !json.Valid(body) {
		return nil, invalidRequestError()
	}
	return json.RawMessage(body), nil
}
