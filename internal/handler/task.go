package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-tracker/internal/model"
	"github.com/BuzzLyutic/task-tracker/internal/service"
	"github.com/BuzzLyutic/task-tracker/pkg/respond"
)

const headerIdempotencyKey = "Idempotency-Key"

type TaskHandler struct {
	service *service.TaskService
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		logger:  logger,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	idempKey := r.Header.Get(headerIdempotencyKey)
	if idempKey == "" {
		h.handleErrors(w, r, service.ErrIdempotencyKeyRequired)
		return
	}

	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "empty request body")
		return
	}

	var req model.CreateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("invalid json: %v", err))
		return
	}

	created, err := h.service.Create(r.Context(), actor, req, idempKey)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	// повтор отдаёт ровно те байты, что были сохранены при первом вызове
	w.Header().Set("Location", fmt.Sprintf("/api/tasks/%d", created.ID))
	respond.Raw(w, r, http.StatusCreated, created.Payload)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	page, err := h.service.List(r.Context(), actor, listQuery(r))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, page)
}

func (h *TaskHandler) ListMyDeleted(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	page, err := h.service.ListMyDeleted(r.Context(), actor, listQuery(r))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, page)
}

func (h *TaskHandler) ListDeleted(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	page, err := h.service.ListDeleted(r.Context(), actor, listQuery(r))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, page)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req model.UpdateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}

	task, err := h.service.Update(r.Context(), actor, id, req)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.SoftDelete(r.Context(), actor, id); err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, messageResponse{Message: "task deleted"})
}

func (h *TaskHandler) Restore(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	task, err := h.service.Restore(r.Context(), actor, id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) HardDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.HardDelete(r.Context(), actor, id); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	// Аудит удаляется вместе с задачей, в логе остаётся след
	h.logger.Warn("task permanently deleted",
		zap.Int64("task_id", id),
		zap.Int64("actor_id", actor.UserID),
	)
	respond.JSON(w, r, http.StatusOK, messageResponse{Message: "task permanently deleted"})
}

func (h *TaskHandler) Audits(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	audits, err := h.service.Audits(r.Context(), actor, id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, audits)
}

func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	stats, err := h.service.GetStats(r.Context(), actor)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, stats)
}

func (h *TaskHandler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.handleErrors(w, r, service.ErrInvalidTaskID)
		return 0, false
	}
	return id, true
}

// listQuery - некорректные page/limit превращаются в 0, сервис подставит значения по умолчанию
func listQuery(r *http.Request) model.ListQuery {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return model.ListQuery{
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	}
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorCode(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, status, code, "internal error")
		return
	}
	respond.Error(w, r, status, code, err.Error())
}

func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest, "IDEMPOTENCY_KEY_REQUIRED"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, service.ErrVersionRequired):
		return http.StatusBadRequest, "VERSION_REQUIRED"
	case errors.Is(err, service.ErrNoChanges):
		return http.StatusBadRequest, "NO_CHANGES"
	case errors.Is(err, service.ErrInvalidTaskID):
		return http.StatusBadRequest, "INVALID_TASK_ID"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, service.ErrTaskNotFound):
		return http.StatusNotFound, "TASK_NOT_FOUND"
	case errors.Is(err, service.ErrVersionConflict):
		return http.StatusConflict, "TASK_VERSION_CONFLICT"
	case errors.Is(err, service.ErrTaskNotDeleted):
		return http.StatusConflict, "TASK_NOT_DELETED"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	}
}
