package statusapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/metastore"
	"github.com/kbukum/capsule/observability"
	"github.com/kbukum/capsule/version"
	"github.com/kbukum/capsule/workflow"
)

const defaultPageSize = 50

var startTime = time.Now()

func (s *Server) health(c *gin.Context) {
	h := observability.CheckHealth(c.Request.Context(), s.service, version.Get().Version, s.checks...)
	httpStatus := http.StatusOK
	if h.Status == observability.HealthStatusDown {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{
		"status":     h.Status,
		"service":    h.Service,
		"version":    h.Version,
		"components": h.Components,
		"uptime":     time.Since(startTime).String(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) version(c *gin.Context) {
	respondOK(c, version.Get())
}

// listExecutions pages through the recorded executions, optionally
// filtered by workflow status.
func (s *Server) listExecutions(c *gin.Context) {
	page, err := positiveQuery(c, "page", 1)
	if err != nil {
		respondError(c, err)
		return
	}
	size, err := positiveQuery(c, "limit", defaultPageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	all, err := s.store.ListExecutions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	var filtered []metastore.Summary
	status := workflow.Status(c.Query("status"))
	for _, sum := range all {
		if status == "" || sum.Status == status {
			filtered = append(filtered, sum)
		}
	}

	total := len(filtered)
	from := min((page-1)*size, total)
	to := min(from+size, total)
	items := filtered[from:to]
	if items == nil {
		items = []metastore.Summary{}
	}
	respondOKWithMeta(c, items, &Meta{
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: (total + size - 1) / size,
	})
}

func (s *Server) getExecution(c *gin.Context) {
	wf, err := s.store.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, wf)
}

func (s *Server) getJob(c *gin.Context) {
	wf, err := s.store.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	job, ok := wf.Job(c.Param("uuid"))
	if !ok {
		respondError(c, errors.NotFound("job", c.Param("uuid")))
		return
	}
	respondOK(c, job)
}

func positiveQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.InvalidInput(name, "must be a positive integer")
	}
	return n, nil
}
