package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pfrederiksen/apod-api/internal/apod"
	"github.com/pfrederiksen/apod-api/internal/logger"
)

// FailedDatesHeader lists the days dropped from a partial response
const FailedDatesHeader = "X-APOD-Failed-Dates"

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the body of a failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "Hello world!")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: ServiceName,
		Version: s.opts.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleWeek(c *gin.Context) {
	s.serveAPOD(c, apod.Options{Mode: apod.ModeWeek})
}

func (s *Server) handleDay(c *gin.Context) {
	s.serveAPOD(c, apod.Options{Mode: apod.ModeDay, DateText: c.Param("date")})
}

func (s *Server) serveAPOD(c *gin.Context, opts apod.Options) {
	if partial, _ := strconv.ParseBool(c.Query("partial")); partial {
		s.servePartial(c, opts)
		return
	}

	results, err := s.fetcher.Fetch(c.Request.Context(), opts)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (s *Server) servePartial(c *gin.Context, opts apod.Options) {
	outcomes := s.fetcher.FetchPartial(c.Request.Context(), opts)

	results := make([]*apod.APOD, 0, len(outcomes))
	var failed []string
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o.Date.Format(apod.DateLayout))
			continue
		}
		results = append(results, o.APOD)
	}

	if len(failed) > 0 {
		c.Header(FailedDatesHeader, strings.Join(failed, ","))
		s.log.Warn("Partial APOD response", logger.Fields{
			"failed":    failed,
			"succeeded": len(results),
		})
	}

	c.JSON(http.StatusOK, results)
}
