package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditmeter/internal/authorization"
	"github.com/smallbiznis/creditmeter/internal/observability/logger"
	usagedomain "github.com/smallbiznis/creditmeter/internal/usage/domain"
	"github.com/smallbiznis/creditmeter/pkg/db/pagination"
	"go.uber.org/zap"
)

const (
	HeaderCreditsConsumed  = "X-Credits-Consumed"
	HeaderCreditsRemaining = "X-Credits-Remaining"
)

type trackUsageRequest struct {
	EventType       string         `json:"eventType"`
	EventData       map[string]any `json:"eventData"`
	SessionID       *string        `json:"sessionId"`
	CreditsOverride *float64       `json:"creditsOverride"`
	SkipLimitCheck  bool           `json:"skipLimitCheck"`
}

type checkUsageRequest struct {
	EventType      string         `json:"eventType"`
	CreditsNeeded  *float64       `json:"creditsNeeded"`
	EventData      map[string]any `json:"eventData"`
	SkipLimitCheck bool           `json:"skipLimitCheck"`
}

// TrackUsage records one billable event. Going over the allotment is reported, never refused.
func (s *Server) TrackUsage(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req trackUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if eventType := strings.TrimSpace(req.EventType); eventType != "" {
		c.Set("event_type", eventType)
	}
	// Overrides require the operator grant.
	if req.CreditsOverride != nil || req.SkipLimitCheck {
		if err := s.authorizeOperatorActionWithContext(c, authorization.ObjectConfig, authorization.ActionConfigManage); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	result, err := s.meter.Track(c.Request.Context(), usagedomain.TrackRequest{
		OrganizationID:  id.OrgID,
		UserID:          id.UserID,
		EventType:       req.EventType,
		EventData:       s.requestEventData(c, req.EventData),
		SessionID:       req.SessionID,
		CreditsOverride: req.CreditsOverride,
		SkipLimitCheck:  req.SkipLimitCheck,
	})
	if err != nil {
		if errors.Is(err, usagedomain.ErrStandingUnavailable) && result.LedgerEntryID != "" {
			// The entry is recorded; a retry would charge twice.
			logger.FromContext(c.Request.Context()).Warn("tracked without usage standing", zap.Error(err))
			c.Header(HeaderCreditsConsumed, strconv.FormatInt(result.CreditsConsumed, 10))
			c.JSON(http.StatusAccepted, result)
			return
		}
		AbortWithError(c, err)
		return
	}

	c.Header(HeaderCreditsConsumed, strconv.FormatInt(result.CreditsConsumed, 10))
	c.Header(HeaderCreditsRemaining, strconv.FormatInt(result.RemainingCredits, 10))
	c.JSON(http.StatusOK, result)
}

// requestEventData copies the caller's event data and stamps request metadata onto it.
func (s *Server) requestEventData(c *gin.Context, data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+3)
	for k, v := range data {
		out[k] = v
	}
	if ua := strings.TrimSpace(c.Request.UserAgent()); ua != "" {
		out["userAgent"] = ua
	}
	if ip := strings.TrimSpace(c.ClientIP()); ip != "" {
		out["ipAddress"] = ip
	}
	out["timestamp"] = s.clock.Now().UTC().Format(time.RFC3339)
	return out
}

// CheckUsage is the pre-flight verdict. It never writes.
func (s *Server) CheckUsage(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req checkUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.meter.CheckUsageLimits(c.Request.Context(), usagedomain.CheckRequest{
		OrganizationID: id.OrgID,
		EventType:      req.EventType,
		CreditsNeeded:  req.CreditsNeeded,
		EventData:      req.EventData,
		SkipLimitCheck: req.SkipLimitCheck,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) GetUsageBreakdown(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	month, err := parseMonth(c.Query("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	breakdown, err := s.aggregator.Breakdown(c.Request.Context(), id.OrgID, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

func (s *Server) GetUsageTrends(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	months, err := parseMonthCount(c.Query("months"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	trends, err := s.aggregator.Trends(c.Request.Context(), id.OrgID, months)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, trends)
}

func (s *Server) GetUsageOverview(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	overview, err := s.aggregator.Overview(c.Request.Context(), id.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

type listUsageEventsQuery struct {
	pagination.Pagination
	EventType string `form:"event_type"`
}

func (s *Server) ListUsageEvents(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listUsageEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.aggregator.Entries(c.Request.Context(), usagedomain.ListEntriesRequest{
		OrganizationID: id.OrgID,
		EventType:      strings.TrimSpace(query.EventType),
		Pagination:     query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DownloadUsageStatement(c *gin.Context) {
	id, err := identityFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	month, err := parseMonth(c.Query("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if month.IsZero() {
		month = s.clock.Now().UTC()
	}

	doc, err := s.aggregator.Statement(c.Request.Context(), id.OrgID, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("usage-%s-%s.pdf", id.OrgID, month.Format(monthLayout))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", doc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	})
}
