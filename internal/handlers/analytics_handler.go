package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/katinat-coffee/ordering-backend/internal/analytics"
	"github.com/katinat-coffee/ordering-backend/internal/apperr"
	"github.com/katinat-coffee/ordering-backend/internal/auth"
)

// RegisterAnalyticsRoutes mounts the admin reporting endpoints under
// /api/analytics. Every query takes startDate/endDate (YYYY-MM-DD or
// RFC3339) and an optional store scope.
func RegisterAnalyticsRoutes(r *gin.Engine, agg *analytics.Aggregator, verifier *auth.Verifier) {
	g := r.Group("/api/analytics", auth.Middleware(verifier), auth.RequireRole(auth.RoleAdmin))

	g.GET("/summary", func(c *gin.Context) {
		w, err := parseWindow(c)
		if err != nil {
			writeError(c, err)
			return
		}
		out, err := agg.SalesSummary(c.Request.Context(), w)
		respond(c, out, err)
	})

	g.GET("/daily", func(c *gin.Context) {
		w, err := parseWindow(c)
		if err != nil {
			writeError(c, err)
			return
		}
		out, err := agg.DailySales(c.Request.Context(), w)
		respond(c, out, err)
	})

	g.GET("/top-products", func(c *gin.Context) {
		w, err := parseWindow(c)
		if err != nil {
			writeError(c, err)
			return
		}
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				writeError(c, apperr.Validation("limit must be a non-negative integer"))
				return
			}
		}
		out, err := agg.TopProducts(c.Request.Context(), w, limit)
		respond(c, out, err)
	})

	g.GET("/stores", func(c *gin.Context) {
		w, err := parseWindow(c)
		if err != nil {
			writeError(c, err)
			return
		}
		out, err := agg.StorePerformance(c.Request.Context(), w)
		respond(c, out, err)
	})

	g.GET("/customers", func(c *gin.Context) {
		w, err := parseWindow(c)
		if err != nil {
			writeError(c, err)
			return
		}
		out, err := agg.CustomerInsights(c.Request.Context(), w)
		respond(c, out, err)
	})
}

func respond(c *gin.Context, out interface{}, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func parseWindow(c *gin.Context) (analytics.Window, error) {
	start, err := parseWindowTime(c.Query("startDate"), false)
	if err != nil {
		return analytics.Window{}, apperr.Validation("invalid startDate: %v", err)
	}
	end, err := parseWindowTime(c.Query("endDate"), true)
	if err != nil {
		return analytics.Window{}, apperr.Validation("invalid endDate: %v", err)
	}
	if start.IsZero() || end.IsZero() {
		return analytics.Window{}, apperr.Validation("startDate and endDate are required")
	}
	if end.Before(start) {
		return analytics.Window{}, apperr.Validation("endDate precedes startDate")
	}
	return analytics.Window{Start: start, End: end, StoreID: c.Query("store")}, nil
}

// parseWindowTime accepts YYYY-MM-DD or RFC3339. A date-only end bound is
// stretched to the end of that UTC day so the window stays inclusive.
func parseWindowTime(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
