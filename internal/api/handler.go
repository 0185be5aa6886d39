package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/service"
	"github.com/sandeepkv93/shiftd/internal/storage"
)

type Handler struct {
	backend Backend
	logger  *slog.Logger
}

type taskDTO struct {
	ID               int64  `json:"id"`
	SourceType       string `json:"source_type"`
	SourceID         int64  `json:"source_id"`
	Title            string `json:"title"`
	TargetDate       string `json:"target_date"`
	TriggerTimestamp int64  `json:"trigger_timestamp"`
	TriggerAt        string `json:"trigger_at"`
	ReminderLevel    int    `json:"reminder_level"`
	Status           string `json:"status"`
	TargetPkgName    string `json:"target_pkg_name,omitempty"`
}

func toTaskDTO(t model.TaskRecord, loc *time.Location) taskDTO {
	return taskDTO{
		ID:               t.ID,
		SourceType:       string(t.SourceType),
		SourceID:         t.SourceID,
		Title:            t.DisplayTitle(),
		TargetDate:       t.TargetDate,
		TriggerTimestamp: t.TriggerTimestamp,
		TriggerAt:        t.TriggerAt().In(loc).Format(time.RFC3339),
		ReminderLevel:    int(t.ReminderLevel),
		Status:           string(t.Status),
		TargetPkgName:    t.TargetPkgName,
	}
}

type shiftRuleDTO struct {
	ID                   int64             `json:"id"`
	Title                string            `json:"title"`
	StartDate            string            `json:"start_date"`
	CycleDays            int               `json:"cycle_days"`
	ShiftConfig          []model.DayConfig `json:"shift_config"`
	SkipHoliday          bool              `json:"skip_holiday"`
	DefaultReminderLevel int               `json:"default_reminder_level"`
}

func toShiftRuleDTO(r model.ShiftRule) shiftRuleDTO {
	cfg := r.ShiftConfig
	if cfg == nil {
		cfg = []model.DayConfig{}
	}
	return shiftRuleDTO{
		ID:                   r.ID,
		Title:                r.Title,
		StartDate:            model.FormatDate(r.StartDate),
		CycleDays:            r.CycleDays,
		ShiftConfig:          cfg,
		SkipHoliday:          r.SkipHoliday,
		DefaultReminderLevel: int(r.DefaultReminderLevel),
	}
}

type shiftRuleRequest struct {
	ID                   int64           `json:"id"`
	Title                string          `json:"title" binding:"required"`
	StartDate            string          `json:"start_date" binding:"required"`
	CycleDays            int             `json:"cycle_days" binding:"required"`
	ShiftConfig          json.RawMessage `json:"shift_config"`
	SkipHoliday          bool            `json:"skip_holiday"`
	DefaultReminderLevel *int            `json:"default_reminder_level"`
}

type anniversaryDTO struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	TargetDate    string `json:"target_date"`
	ReminderLevel int    `json:"reminder_level"`
	ReminderTime  string `json:"reminder_time"`
}

func toAnniversaryDTO(a model.Anniversary, loc *time.Location) anniversaryDTO {
	h, m := a.Clock(loc)
	return anniversaryDTO{
		ID:            a.ID,
		Title:         a.Title,
		TargetDate:    a.TargetDate,
		ReminderLevel: int(a.ReminderLevel),
		ReminderTime:  fmt.Sprintf("%02d:%02d", h, m),
	}
}

type anniversaryRequest struct {
	ID            int64  `json:"id"`
	Title         string `json:"title" binding:"required"`
	TargetDate    string `json:"target_date" binding:"required"`
	ReminderLevel *int   `json:"reminder_level"`
	ReminderTime  string `json:"reminder_time"`
}

type postRequest struct {
	Content       string   `json:"content" binding:"required"`
	ImagePaths    []string `json:"image_paths"`
	LinkedTaskIDs []int64  `json:"linked_task_ids"`
}

type feedItemDTO struct {
	Kind    string   `json:"kind"`
	At      string   `json:"at"`
	PostID  int64    `json:"post_id,omitempty"`
	Content string   `json:"content,omitempty"`
	Images  []string `json:"image_paths,omitempty"`
	Task    *taskDTO `json:"task,omitempty"`
}

// GET /healthz
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /v1/tasks?date=YYYY-MM-DD
func (h *Handler) ListTasks(c *gin.Context) {
	loc := h.backend.Location()
	var tasks []model.TaskRecord
	if date := strings.TrimSpace(c.Query("date")); date != "" {
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
			return
		}
		tasks = h.backend.TasksForDate(c.Request.Context(), date)
	} else {
		tasks = h.backend.UpcomingTasks(c.Request.Context())
	}
	out := make([]taskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskDTO(t, loc))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}

// POST /v1/tasks/:id/ack
func (h *Handler) AcknowledgeTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.backend.Acknowledge(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": string(model.TaskStatusCompleted)})
}

// GET /v1/shift-rules
func (h *Handler) ListShiftRules(c *gin.Context) {
	rules, err := h.backend.ShiftRules(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]shiftRuleDTO, 0, len(rules))
	for _, r := range rules {
		out = append(out, toShiftRuleDTO(r))
	}
	c.JSON(http.StatusOK, gin.H{"shift_rules": out})
}

// POST /v1/shift-rules creates a rule, or replaces it when id is set.
func (h *Handler) SaveShiftRule(c *gin.Context) {
	var req shiftRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := model.ParseDate(req.StartDate, h.backend.Location())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
		return
	}
	cfg := []model.DayConfig{}
	if len(req.ShiftConfig) > 0 && string(req.ShiftConfig) != "null" {
		cfg, err = model.ParseShiftConfig(string(req.ShiftConfig))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	level := model.ReminderAlarm
	if req.DefaultReminderLevel != nil {
		level = model.ReminderLevel(*req.DefaultReminderLevel)
	}
	rule, rep, err := h.backend.SaveShiftRule(c.Request.Context(), model.ShiftRule{
		ID:                   req.ID,
		Title:                strings.TrimSpace(req.Title),
		StartDate:            start,
		CycleDays:            req.CycleDays,
		ShiftConfig:          cfg,
		SkipHoliday:          req.SkipHoliday,
		DefaultReminderLevel: level,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shift_rule": toShiftRuleDTO(rule),
		"deleted":    rep.Deleted,
		"inserted":   rep.Inserted,
		"skipped":    rep.Skipped,
		"failed":     rep.Failed,
	})
}

// DELETE /v1/shift-rules/:id
func (h *Handler) DeleteShiftRule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.backend.DeleteShiftRule(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/anniversaries
func (h *Handler) ListAnniversaries(c *gin.Context) {
	anns, err := h.backend.Anniversaries(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	loc := h.backend.Location()
	out := make([]anniversaryDTO, 0, len(anns))
	for _, a := range anns {
		out = append(out, toAnniversaryDTO(a, loc))
	}
	c.JSON(http.StatusOK, gin.H{"anniversaries": out})
}

// POST /v1/anniversaries creates an anniversary, or replaces it when id is set.
func (h *Handler) SaveAnniversary(c *gin.Context) {
	var req anniversaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loc := h.backend.Location()
	ann := model.Anniversary{
		ID:            req.ID,
		Title:         strings.TrimSpace(req.Title),
		TargetDate:    strings.TrimSpace(req.TargetDate),
		ReminderLevel: model.ReminderSilent,
	}
	if req.ReminderLevel != nil {
		ann.ReminderLevel = model.ReminderLevel(*req.ReminderLevel)
	}
	if raw := strings.TrimSpace(req.ReminderTime); raw != "" {
		hour, minute, err := model.ParseClock(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ann.SetClock(hour, minute, loc)
	}
	saved, rep, err := h.backend.SaveAnniversary(c.Request.Context(), ann)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"anniversary": toAnniversaryDTO(saved, loc),
		"inserted":    rep.Inserted,
	})
}

// DELETE /v1/anniversaries/:id
func (h *Handler) DeleteAnniversary(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.backend.DeleteAnniversary(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /v1/holidays/sync
func (h *Handler) SyncHolidays(c *gin.Context) {
	res, err := h.backend.SyncHolidays(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"success":  res.Success,
		"message":  res.Message,
		"imported": res.Imported,
	})
}

// GET /v1/feed
func (h *Handler) Feed(c *gin.Context) {
	loc := h.backend.Location()
	items := h.backend.Feed(c.Request.Context())
	out := make([]feedItemDTO, 0, len(items))
	for _, it := range items {
		dto := feedItemDTO{Kind: string(it.Kind), At: it.At.In(loc).Format(time.RFC3339)}
		if it.Post != nil {
			dto.PostID = it.Post.ID
			dto.Content = it.Post.Content
			dto.Images = it.Post.ImagePaths
		}
		if it.Task != nil {
			t := toTaskDTO(*it.Task, loc)
			dto.Task = &t
		}
		out = append(out, dto)
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// POST /v1/posts
func (h *Handler) CreatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	post, err := h.backend.CreatePost(c.Request.Context(), req.Content, req.ImagePaths, req.LinkedTaskIDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": post.ID, "content": post.Content})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, model.ErrInvalidCycle),
		errors.Is(err, model.ErrDayIndexRange),
		errors.Is(err, model.ErrInvalidTimeOfDay),
		errors.Is(err, model.ErrInvalidLevel),
		errors.Is(err, model.ErrMalformedConfig),
		errors.Is(err, model.ErrMissingField),
		errors.Is(err, model.ErrInvalidDate),
		errors.Is(err, model.ErrDuplicateDayIndex),
		errors.Is(err, model.ErrInvalidHolidayType):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrHolidaysDisabled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "api request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
