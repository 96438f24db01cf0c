package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lure-project/lure/internal/util"
)

const (
	defaultContactLimit = 50
	maxContactLimit     = 1000
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": util.AppName,
	})
}

// handleContacts returns the most recent contacts, newest first.
func (s *Server) handleContacts(c *gin.Context) {
	if s.contacts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "contact log is disabled"})
		return
	}

	limit := defaultContactLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxContactLimit)
	}

	contacts, err := s.contacts.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read contacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read contacts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(contacts),
		"contacts": contacts,
	})
}

// handleStats reports contact totals, pipeline counters and host load.
func (s *Server) handleStats(c *gin.Context) {
	resp := gin.H{
		"uptime_sec":   int64(time.Since(s.startedAt).Seconds()),
		"feed_clients": s.feed.Count(),
	}

	if s.contacts != nil {
		counts, err := s.contacts.CountByKind(c.Request.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to count contacts")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count contacts"})
			return
		}
		resp["contacts"] = counts
	}

	if s.pipeline != nil {
		resp["notifications"] = s.pipeline.Stats()
	}

	if usage, err := util.GetResourceUsage("."); err == nil {
		resp["system"] = usage
	} else {
		s.logger.Debug().Err(err).Msg("resource usage unavailable")
	}

	c.JSON(http.StatusOK, resp)
}
