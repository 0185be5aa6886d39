package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sandeepkv93/shiftd/internal/holiday"
	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/reconcile"
)

const requestIDHeader = "X-Request-ID"

// Backend is the application surface the HTTP API exposes.
type Backend interface {
	Location() *time.Location
	TasksForDate(ctx context.Context, date string) []model.TaskRecord
	UpcomingTasks(ctx context.Context) []model.TaskRecord
	Acknowledge(ctx context.Context, taskID int64) error

	ShiftRules(ctx context.Context) ([]model.ShiftRule, error)
	SaveShiftRule(ctx context.Context, rule model.ShiftRule) (model.ShiftRule, reconcile.Report, error)
	DeleteShiftRule(ctx context.Context, id int64) error

	Anniversaries(ctx context.Context) ([]model.Anniversary, error)
	SaveAnniversary(ctx context.Context, ann model.Anniversary) (model.Anniversary, reconcile.Report, error)
	DeleteAnniversary(ctx context.Context, id int64) error

	SyncHolidays(ctx context.Context) (holiday.Result, error)

	Feed(ctx context.Context) []model.FeedItem
	CreatePost(ctx context.Context, content string, imagePaths []string, linkedTaskIDs []int64) (model.Post, error)
}

// NewRouter builds the loopback API. The router is meant for 127.0.0.1 only
// and carries no authentication.
func NewRouter(backend Backend, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(requestID(), accessLog(logger), gin.Recovery())

	h := &Handler{backend: backend, logger: logger}
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	{
		v1.GET("/tasks", h.ListTasks)
		v1.POST("/tasks/:id/ack", h.AcknowledgeTask)

		v1.GET("/shift-rules", h.ListShiftRules)
		v1.POST("/shift-rules", h.SaveShiftRule)
		v1.DELETE("/shift-rules/:id", h.DeleteShiftRule)

		v1.GET("/anniversaries", h.ListAnniversaries)
		v1.POST("/anniversaries", h.SaveAnniversary)
		v1.DELETE("/anniversaries/:id", h.DeleteAnniversary)

		v1.POST("/holidays/sync", h.SyncHolidays)

		v1.GET("/feed", h.Feed)
		v1.POST("/posts", h.CreatePost)
	}
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "api request",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

// Serve runs the router on addr until ctx is done, then shuts down.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
