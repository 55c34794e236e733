package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/api/shared"
	"github.com/tasklight/tasklight-api/internal/platform/logger"
	"github.com/tasklight/tasklight-api/internal/service"
)

// updatableTaskFields is the allow-list of fields a task update may touch.
// Any other field in the request body rejects the update before the
// repository is consulted.
var updatableTaskFields = map[string]bool{
	"title":       true,
	"description": true,
	"status":      true,
	"dueDate":     true,
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	taskService *service.TaskService
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService *service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		taskService: taskService,
		logger:      logger.With(slog.String("component", "task_handler")),
	}
}

// GetTasks handles GET /api/tasks requests.
// It returns all tasks owned by the authenticated user, newest first.
func (h *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	tasks, err := h.taskService.GetTasks(r.Context(), userID)
	if err != nil {
		status, response := BuildErrorResponse(err)
		shared.RespondWithErrorAndLog(w, r, status, response, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// CreateTask handles POST /api/tasks requests.
// Creation is subject to the duplicate-detection policy.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.Validate.Struct(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ErrorResponse{
			Error: SanitizeValidationError(err),
		}, err)
		return
	}

	task, err := h.taskService.CreateTask(r.Context(), userID, service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		DueDate:     req.DueDate,
	})
	if err != nil {
		status, response := BuildErrorResponse(err)
		shared.RespondWithErrorAndLog(w, r, status, response, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// UpdateTask handles PUT /api/tasks/{id} requests.
// The body is decoded field by field so that fields outside the allow-list
// can be detected and rejected.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	taskID, ok := requireTaskID(w, r, log)
	if !ok {
		return
	}

	var fields map[string]json.RawMessage
	if err := shared.DecodeJSON(r, &fields); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	input, err := updateInputFromFields(fields)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	task, err := h.taskService.UpdateTask(r.Context(), taskID, userID, input)
	if err != nil {
		status, response := BuildErrorResponse(err)
		shared.RespondWithErrorAndLog(w, r, status, response, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// DeleteTask handles DELETE /api/tasks/{id} requests.
// It returns the deleted task's prior state.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	taskID, ok := requireTaskID(w, r, log)
	if !ok {
		return
	}

	task, err := h.taskService.DeleteTask(r.Context(), taskID, userID)
	if err != nil {
		status, response := BuildErrorResponse(err)
		shared.RespondWithErrorAndLog(w, r, status, response, err)
		return
	}

	log.Debug("task deleted",
		slog.String("task_id", taskID.String()),
		slog.String("user_id", userID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// GetFilteredTasks handles GET /api/tasks/filter requests.
// Supported query parameters: status, dueDate.
func (h *TaskHandler) GetFilteredTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	filters := service.TaskFilters{
		Status:  r.URL.Query().Get("status"),
		DueDate: r.URL.Query().Get("dueDate"),
	}

	tasks, err := h.taskService.GetFilteredTasks(r.Context(), userID, filters)
	if err != nil {
		status, response := BuildErrorResponse(err)
		shared.RespondWithErrorAndLog(w, r, status, response, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// updateInputFromFields builds the typed update input from the raw request
// fields, recording any field names outside the allow-list.
func updateInputFromFields(fields map[string]json.RawMessage) (service.UpdateTaskInput, error) {
	var input service.UpdateTaskInput

	for name, raw := range fields {
		if !updatableTaskFields[name] {
			input.Unknown = append(input.Unknown, name)
			continue
		}

		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return service.UpdateTaskInput{}, err
		}

		switch name {
		case "title":
			input.Title = &value
		case "description":
			input.Description = &value
		case "status":
			input.Status = &value
		case "dueDate":
			input.DueDate = &value
		}
	}

	return input, nil
}

// requireUserID extracts the authenticated user ID set by the auth
// middleware, responding with 401 when it is missing.
func requireUserID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return uuid.Nil, false
	}
	return userID, true
}

// requireTaskID parses the task ID from the URL path, responding with 400
// when it is missing or malformed.
func requireTaskID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (uuid.UUID, bool) {
	pathTaskID := chi.URLParam(r, "id")
	if pathTaskID == "" {
		log.Warn("task ID not found in URL path")
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return uuid.Nil, false
	}

	taskID, err := uuid.Parse(pathTaskID)
	if err != nil {
		log.Warn("invalid task ID format", slog.String("task_id", pathTaskID))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID format")
		return uuid.Nil, false
	}
	return taskID, true
}
