package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"codeberg.org/snonux/doctrans/internal"
	"codeberg.org/snonux/doctrans/internal/app"
	"codeberg.org/snonux/doctrans/internal/extract"
	"codeberg.org/snonux/doctrans/internal/queue"
)

// Server is the HTTP front end of an App
type Server struct {
	app  *app.App
	echo *echo.Echo
	log  *zap.Logger
}

// New creates the server and registers its routes
func New(a *app.App, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{app: a, echo: e, log: log}

	e.GET("/health", s.health)
	e.GET("/ready", s.ready)
	e.GET("/stats", s.stats)

	v1 := e.Group("/v1")
	v1.POST("/tasks", s.submit)
	v1.GET("/tasks/:id", s.getTask)
	v1.DELETE("/tasks/:id", s.cancelTask)
	v1.GET("/users/:id/position", s.userPosition)
	v1.GET("/users/:id/messages", s.userMessages)
	v1.GET("/users/:id/results/:task", s.userResult)

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// health reports liveness
// GET /health
func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": internal.Version,
	})
}

// ready reports whether any provider key can serve requests
// GET /ready
func (s *Server) ready(c echo.Context) error {
	status := s.app.Keys.StatusSummary()
	if !s.app.Keys.Healthy() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":    "not ready",
			"providers": string(status),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ready",
		"providers": string(status),
	})
}

// stats returns queue and provider statistics
// GET /stats
func (s *Server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"queue":           s.app.Queue.Stats(),
		"running":         s.app.Scheduler.Running(),
		"providers":       s.app.Keys.UsageReport(),
		"provider_status": s.app.Keys.StatusSummary(),
	})
}

// submitResponse is returned for an accepted document
type submitResponse struct {
	TaskID        string `json:"task_id"`
	Position      int    `json:"position"`
	EstimatedWait string `json:"estimated_wait"`
}

// submit accepts a document upload
// POST /v1/tasks (multipart: user_id, file)
func (s *Server) submit(c echo.Context) error {
	userID, err := strconv.ParseInt(c.FormValue("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return errorJSON(c, http.StatusBadRequest, "user_id must be a positive integer")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "no file uploaded")
	}
	if !extract.Supported(fh.Filename) {
		return errorJSON(c, http.StatusUnsupportedMediaType, "this file format is not supported")
	}
	if limit := s.app.Settings.MaxFileSize; limit > 0 && fh.Size > limit {
		return errorJSON(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file is %d bytes, the limit is %d", fh.Size, limit))
	}

	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to open file")
	}
	defer f.Close()
	payload, err := io.ReadAll(f)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to read file")
	}

	id, err := s.app.Scheduler.Submit(queue.Submission{UserID: userID, Filename: fh.Filename, Payload: payload})
	if err != nil {
		var admission *queue.AdmissionError
		if errors.As(err, &admission) {
			return errorJSON(c, http.StatusTooManyRequests, admission.Reason)
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	pos, _ := s.app.Queue.PositionOf(id)
	return c.JSON(http.StatusAccepted, submitResponse{
		TaskID:        id,
		Position:      pos,
		EstimatedWait: s.app.Queue.WaitText(pos),
	})
}

// taskView is the public representation of a task
type taskView struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"user_id"`
	Filename    string     `json:"filename"`
	Size        int64      `json:"size"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	Position    *int       `json:"position,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *Server) view(t *queue.Task) taskView {
	v := taskView{
		ID:        t.ID,
		UserID:    t.UserID,
		Filename:  t.Filename,
		Size:      t.Size,
		Status:    t.Status.String(),
		Priority:  t.Priority,
		CreatedAt: t.CreatedAt,
	}
	if pos, ok := s.app.Queue.PositionOf(t.ID); ok && !t.Status.Terminal() {
		v.Position = &pos
	}
	if !t.CompletedAt.IsZero() {
		completed := t.CompletedAt
		v.CompletedAt = &completed
	}
	return v
}

// getTask returns a task's status
// GET /v1/tasks/:id
func (s *Server) getTask(c echo.Context) error {
	task, ok := s.app.Queue.Get(c.Param("id"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, s.view(task))
}

// cancelTask cancels a queued or processing task
// DELETE /v1/tasks/:id
func (s *Server) cancelTask(c echo.Context) error {
	id := c.Param("id")
	prev, err := s.app.Scheduler.Cancel(id)
	if errors.Is(err, queue.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "task not found or already finished")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{
		"task_id":         id,
		"status":          queue.StatusCancelled.String(),
		"previous_status": prev.String(),
	})
}

func userParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// userPosition returns a user's best queue position and active tasks
// GET /v1/users/:id/position
func (s *Server) userPosition(c echo.Context) error {
	userID, ok := userParam(c)
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid user id")
	}
	pos, ok := s.app.Queue.UserPosition(userID)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "no active tasks")
	}
	concurrent, daily := s.app.Queue.UserCounters(userID)
	active := s.app.Queue.UserActiveTasks(userID)
	tasks := make([]taskView, len(active))
	for i, t := range active {
		tasks[i] = s.view(t)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"position":       pos,
		"estimated_wait": s.app.Queue.WaitText(pos),
		"active_tasks":   concurrent,
		"daily_tasks":    daily,
		"tasks":          tasks,
	})
}

// userMessages returns a user's progress messages, oldest first
// GET /v1/users/:id/messages
func (s *Server) userMessages(c echo.Context) error {
	userID, ok := userParam(c)
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid user id")
	}
	return c.JSON(http.StatusOK, s.app.Inbox.Messages(userID))
}

// userResult returns a task result, or the document with ?download=1
// GET /v1/users/:id/results/:task
func (s *Server) userResult(c echo.Context) error {
	userID, ok := userParam(c)
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "invalid user id")
	}
	res, ok := s.app.Inbox.Result(userID, c.Param("task"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "result not found")
	}

	if c.QueryParam("download") == "" {
		return c.JSON(http.StatusOK, res)
	}
	if !res.Success {
		return errorJSON(c, http.StatusConflict, res.Error)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", res.Filename))
	return c.Blob(http.StatusOK, contentType(res.Filename), res.Data)
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html":
		return echo.MIMETextHTMLCharsetUTF8
	case ".md":
		return "text/markdown; charset=UTF-8"
	default:
		return echo.MIMETextPlainCharsetUTF8
	}
}
