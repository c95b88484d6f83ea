package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/TheMichaelB/jobhunt/internal/models"
	"github.com/TheMichaelB/jobhunt/internal/services/strategy"
	"github.com/TheMichaelB/jobhunt/internal/state"
)

// retryAfterSeconds is suggested to clients that hit a held lock.
const retryAfterSeconds = "30"

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) lockStatus(c *gin.Context) {
	st, err := s.lock.Status(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) addJob(c *gin.Context) {
	var job models.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(models.ErrCodeValidation, "invalid JSON: "+err.Error()))
		return
	}

	stored, err := s.jobs.Add(c.Request.Context(), &job)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) listJobs(c *gin.Context) {
	minScore, err := intQuery(c, "min_score")
	if err != nil {
		s.writeError(c, err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}

	list, err := s.jobs.List(c.Request.Context(), state.JobFilter{
		Status:   models.JobStatus(c.Query("status")),
		MinScore: minScore,
		Limit:    limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) analyzeJobs(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}

	report, err := s.jobs.AnalyzePending(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) publishStrategy(c *gin.Context) {
	top, err := intQuery(c, "top")
	if err != nil {
		s.writeError(c, err)
		return
	}

	st, err := s.strategy.Publish(c.Request.Context(), top)
	if errors.Is(err, strategy.ErrNotifyFailed) {
		c.JSON(http.StatusCreated, gin.H{"strategy": st, "warning": err.Error()})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"strategy": st})
}

func (s *Server) listStrategies(c *gin.Context) {
	n, err := intQuery(c, "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}

	list, err := s.strategy.Latest(c.Request.Context(), n)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": list})
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var vErr *models.ValidationError

	switch {
	case errors.Is(err, models.ErrLocked):
		status = http.StatusLocked
		c.Header("Retry-After", retryAfterSeconds)
	case errors.As(err, &vErr):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNoStructuredData):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, errorBody(models.ErrorCode(err), err.Error()))
}

func errorBody(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &models.ValidationError{Field: name, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
