package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskflow/api/transport"
	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/pkg/httpcontext"
	"github.com/fastygo/taskflow/usecase/query"
	taskUC "github.com/fastygo/taskflow/usecase/task"
)

// HeaderTimezone lets a client name its IANA zone when the tz query parameter is absent.
const HeaderTimezone = "X-Timezone"

type TaskHandler struct {
	baseHandler
	uc  *taskUC.UseCase
	now func() time.Time
}

func NewTaskHandler(uc *taskUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		now:         time.Now,
	}
}

// @Summary List tasks, optionally filtered
// @Tags tasks
// @Param filter query string false "all, today, week, low, medium, high"
// @Param tz query string false "IANA time zone for date filters"
// @Router /tasks [get]
func (h *TaskHandler) GetTasks(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	if !h.authorize(ctx, stdCtx, h.uc) {
		return
	}

	mode, err := query.ParseFilter(string(ctx.QueryArgs().Peek("filter")))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	loc, err := h.location(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	tasks, err := h.uc.FilterTasks(stdCtx, h.token(ctx), mode, h.now().In(loc))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, tasks)
}

// @Summary Completed tasks
// @Tags tasks
// @Param sort query string false "newest, oldest, priority"
// @Router /tasks/completed [get]
func (h *TaskHandler) GetCompleted(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	if !h.authorize(ctx, stdCtx, h.uc) {
		return
	}

	mode, err := query.ParseSort(string(ctx.QueryArgs().Peek("sort")))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	tasks, err := h.uc.CompletedTasks(stdCtx, h.token(ctx), mode)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, tasks)
}

// @Summary Task statistics
// @Tags tasks
// @Router /tasks/stats [get]
func (h *TaskHandler) GetStats(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	stats, err := h.uc.Stats(stdCtx, h.token(ctx))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, stats)
}

// @Summary Create task
// @Tags tasks
// @Router /tasks [post]
func (h *TaskHandler) CreateTask(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	if !h.authorize(ctx, stdCtx, h.uc) {
		return
	}

	req, ok := h.parseTask(ctx)
	if !ok {
		return
	}
	draft, err := req.Draft()
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	created, err := h.uc.CreateTask(stdCtx, h.token(ctx), taskUC.CreateInput{
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		Completed:   draft.Completed,
		Subtasks:    draft.Subtasks,
	})
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Update task
// @Tags tasks
// @Router /tasks/{id} [put]
func (h *TaskHandler) UpdateTask(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	if !h.authorize(ctx, stdCtx, h.uc) {
		return
	}

	req, ok := h.parseTask(ctx)
	if !ok {
		return
	}
	patch, err := req.Patch()
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	updated, err := h.uc.UpdateTask(stdCtx, h.token(ctx), taskID(ctx), patch)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Toggle task completion
// @Tags tasks
// @Router /tasks/{id}/toggle [patch]
func (h *TaskHandler) ToggleTask(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	toggled, err := h.uc.ToggleTask(stdCtx, h.token(ctx), taskID(ctx))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, toggled)
}

// @Summary Delete task
// @Tags tasks
// @Router /tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.DeleteTask(stdCtx, h.token(ctx), taskID(ctx)); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondNoContent(ctx)
}

func (h *TaskHandler) parseTask(ctx *fasthttp.RequestCtx) (transport.TaskRequest, bool) {
	var req transport.TaskRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalidPayload(ctx)
		return transport.TaskRequest{}, false
	}
	return req, true
}

// location resolves the caller's zone from ?tz= or X-Timezone, falling back to
// the server's local zone.
func (h *TaskHandler) location(ctx *fasthttp.RequestCtx) (*time.Location, error) {
	name := strings.TrimSpace(string(ctx.QueryArgs().Peek("tz")))
	if name == "" {
		name = strings.TrimSpace(string(ctx.Request.Header.Peek(HeaderTimezone)))
	}
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, domain.NewFieldError("tz", "unknown time zone "+name)
	}
	return loc, nil
}

func taskID(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue("id").(string)
	return id
}
