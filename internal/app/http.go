package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/sitekeep/internal/adapter/storage"
	"github.com/semmidev/sitekeep/internal/domain"
	"github.com/semmidev/sitekeep/internal/infrastructure/logger"
	"github.com/semmidev/sitekeep/internal/infrastructure/metrics"
	"github.com/semmidev/sitekeep/internal/usecase"
)

// API is the transport for the polling client: it starts a job, then calls
// tick until the status is no longer running.
type API struct {
	jobs       *usecase.Jobs
	catalog    *usecase.Catalog
	recurrence *usecase.Recurrence
	settings   func() domain.Settings
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

func NewAPI(
	jobs *usecase.Jobs,
	catalog *usecase.Catalog,
	recurrence *usecase.Recurrence,
	settings func() domain.Settings,
	m *metrics.Metrics,
	log *logger.Logger,
) *API {
	return &API{
		jobs:       jobs,
		catalog:    catalog,
		recurrence: recurrence,
		settings:   settings,
		metrics:    m,
		logger:     log,
	}
}

func (a *API) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), a.requestLogger())

	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	api := router.Group("/api")
	{
		jobs := api.Group("/jobs")
		jobs.POST("", a.startJob)
		jobs.GET("/:id", a.jobStatus)
		jobs.POST("/:id/tick", a.tickJob)
		jobs.POST("/:id/cancel", a.cancelJob)

		backups := api.Group("/backups")
		backups.GET("", a.listBackups)
		backups.GET("/:name/manifest", a.backupManifest)
		backups.GET("/:name/verify", a.verifyBackup)
		backups.DELETE("/:name", a.deleteBackup)

		api.GET("/schedule", a.schedule)
	}

	return router
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// jobError maps job operation errors onto status codes. Job failures never
// get here: they are reported inside a 200 payload.
func (a *API) jobError(c *gin.Context, job *domain.Job, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		abortWithError(c, http.StatusNotFound, "JOB_NOT_FOUND", "job does not exist or has expired")
	case errors.Is(err, domain.ErrJobNotRunning):
		body := gin.H{"code": "JOB_NOT_RUNNING", "message": err.Error()}
		if job != nil {
			body["job"] = job.Payload()
		}
		c.AbortWithStatusJSON(http.StatusConflict, body)
	default:
		a.logger.Errorf("Job request failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "job operation failed")
	}
}

func (a *API) startJob(c *gin.Context) {
	job, err := a.jobs.Start(c.Request.Context(), a.settings())
	if err != nil {
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			abortWithError(c, http.StatusBadRequest, "DEST_INVALID", cfgErr.Error())
			return
		}
		a.jobError(c, job, err)
		return
	}
	c.JSON(http.StatusCreated, job.Payload())
}

func (a *API) jobStatus(c *gin.Context) {
	job, err := a.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.jobError(c, job, err)
		return
	}
	c.JSON(http.StatusOK, job.Payload())
}

func (a *API) tickJob(c *gin.Context) {
	job, err := a.jobs.Tick(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.jobError(c, job, err)
		return
	}
	c.JSON(http.StatusOK, job.Payload())
}

func (a *API) cancelJob(c *gin.Context) {
	job, err := a.jobs.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.jobError(c, job, err)
		return
	}
	c.JSON(http.StatusOK, job.Payload())
}

func (a *API) backupError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "BACKUP_NOT_FOUND", err.Error())
		return
	}
	a.logger.Errorf("Backup request failed: %v", err)
	abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "backup operation failed")
}

// setName reads the :name parameter and rejects anything that is not a
// single path element.
func setName(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if err := storage.ValidateName(name); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return "", false
	}
	return name, true
}

func (a *API) listBackups(c *gin.Context) {
	sets, err := a.catalog.List(c.Request.Context(), a.settings().Destination)
	if err != nil {
		a.backupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": sets})
}

func (a *API) backupManifest(c *gin.Context) {
	name, ok := setName(c)
	if !ok {
		return
	}
	m, err := a.catalog.Manifest(c.Request.Context(), a.settings().Destination, name)
	if err != nil {
		a.backupError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (a *API) verifyBackup(c *gin.Context) {
	name, ok := setName(c)
	if !ok {
		return
	}
	res, err := a.catalog.Verify(c.Request.Context(), a.settings().Destination, name)
	if err != nil {
		a.backupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":     res.Name,
		"ok":       res.OK(),
		"db_ok":    res.DBOK,
		"files_ok": res.FilesOK,
		"detail":   res.Detail,
	})
}

func (a *API) deleteBackup(c *gin.Context) {
	name, ok := setName(c)
	if !ok {
		return
	}
	if err := a.catalog.Delete(c.Request.Context(), a.settings().Destination, name); err != nil {
		a.backupError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) schedule(c *gin.Context) {
	s := a.recurrence.Schedule()
	payload := gin.H{
		"enabled":   s.Enabled,
		"frequency": s.Frequency,
		"time":      s.Time,
		"next_run":  nil,
	}
	if next, ok := a.recurrence.Next(); ok {
		payload["next_run"] = next.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, payload)
}
