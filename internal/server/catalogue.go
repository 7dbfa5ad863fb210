package server

import (
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
)

func (s *Server) ListEventCatalogue(c *gin.Context) {
	ctx := c.Request.Context()

	if category := strings.TrimSpace(c.Query("category")); category != "" {
		c.JSON(http.StatusOK, gin.H{"events": s.events.ListByCategory(ctx, category)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": s.events.List(ctx)})
}

// ListPlanCatalogue returns plans cheapest first, optionally within a monthly price range.
func (s *Server) ListPlanCatalogue(c *gin.Context) {
	ctx := c.Request.Context()

	minPrice, err := parseOptionalFloat(c.Query("min_price"))
	if err != nil {
		AbortWithError(c, newValidationError("min_price", "invalid_min_price", "min_price must be a number"))
		return
	}
	maxPrice, err := parseOptionalFloat(c.Query("max_price"))
	if err != nil {
		AbortWithError(c, newValidationError("max_price", "invalid_max_price", "max_price must be a number"))
		return
	}

	var plans []plandomain.Definition
	if minPrice == nil && maxPrice == nil {
		plans = s.plans.SortedByPrice(ctx)
	} else {
		lo, hi := 0.0, math.Inf(1)
		if minPrice != nil {
			lo = *minPrice
		}
		if maxPrice != nil {
			hi = *maxPrice
		}
		plans, err = s.plans.ByPriceRange(ctx, lo, hi)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}
	if plans == nil {
		plans = []plandomain.Definition{}
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}
