package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task"
	domainerrors "github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task/errors"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/logging"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/repository"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/service"
)

// deadlineHeader carries the caller's absolute request deadline as Unix
// milliseconds, the HTTP analogue of a gRPC context deadline. Absent or
// unparseable values are treated as "no deadline".
const deadlineHeader = "X-Deadline"

// maxBodyBytes bounds every request body this server decodes.
const maxBodyBytes = 1 << 20 // 1 MiB

// contextKey namespaces values this package stores on the request context,
// mirroring the per-request X-Request-Id / X-User-Id propagation.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
)

// Server exposes TaskService over net/http. It holds no lifecycle policy;
// every handler is a thin shape translation around a single TaskService call.
type Server struct {
	svc *service.TaskService
	log logging.Logger
}

// NewServer builds a Server.
func NewServer(svc *service.TaskService, log logging.Logger) *Server {
	return &Server{svc: svc, log: logging.OrNop(log)}
}

// Handler builds the routed, middleware-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/tasks", routeHandler("/v1/tasks", http.HandlerFunc(s.handleCreateTask)))
	mux.Handle("GET /v1/tasks", routeHandler("/v1/tasks", http.HandlerFunc(s.handleListTasks)))
	mux.Handle("GET /v1/tasks/{task_id}", routeHandler("/v1/tasks/:task_id", http.HandlerFunc(s.handleGetTask)))
	mux.Handle("POST /v1/tasks/{task_id}/retry", routeHandler("/v1/tasks/:task_id/retry", http.HandlerFunc(s.handleRetryTask)))
	mux.Handle("POST /v1/tasks/{task_id}/cancel", routeHandler("/v1/tasks/:task_id/cancel", http.HandlerFunc(s.handleCancelTask)))
	mux.Handle("GET /v1/tasks/{task_id}/lineage", routeHandler("/v1/tasks/:task_id/lineage", http.HandlerFunc(s.handleGetTaskLineage)))
	mux.Handle("POST /v1/tasks/batch", routeHandler("/v1/tasks/batch", http.HandlerFunc(s.handleBatchCreateTasks)))
	mux.Handle("POST /v1/tasks/from-template", routeHandler("/v1/tasks/from-template", http.HandlerFunc(s.handleCreateTaskFromTemplate)))
	mux.Handle("GET /v1/templates", routeHandler("/v1/templates", http.HandlerFunc(s.handleListTaskTemplates)))
	mux.Handle("GET /health", routeHandler("", http.HandlerFunc(handleHealth)))

	var handler http.Handler = mux
	handler = s.requestContextMiddleware(handler)
	return handler
}

// routeHandler matches the teacher's wrapping convention. It does not use
// route: no access logging or per-route instrumentation is done, and
// handler is returned unchanged.
func routeHandler(route string, handler http.Handler) http.Handler {
	if route == "" {
		return handler
	}
	return handler
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestContextMiddleware mints an X-Request-Id when absent, reads
// X-User-Id, attaches both to the request context, echoes the request id
// back on every response (success or error), and rejects a request whose
// caller-supplied deadline has already passed before any handler runs.
func (s *Server) requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		userID := r.Header.Get("X-User-Id")

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = context.WithValue(ctx, userIDKey, userID)
		ctx = logging.WithContext(ctx, s.log.With("request_id", requestID))

		w.Header().Set("X-Request-Id", requestID)

		if deadlinePassed(r) {
			writeMappedError(w, domainerrors.NewDeadlineExceeded(r.Method+" "+r.URL.Path))
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deadlinePassed reports whether the caller's X-Deadline header, if present
// and parseable as Unix milliseconds, is already in the past.
func deadlinePassed(r *http.Request) bool {
	raw := r.Header.Get(deadlineHeader)
	if raw == "" {
		return false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return time.Now().After(time.UnixMilli(millis))
}

func userIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// writeJSON serializes payload as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes r's body into dst, bounding its size and rejecting
// unknown fields. Returns false (and has already written the error
// response) on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Message: "malformed request body"})
		return false
	}
	return true
}

func parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("task_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Message: "invalid task_id"})
		return uuid.UUID{}, false
	}
	return id, true
}

// createTaskRequest is the wire shape for POST /v1/tasks.
type createTaskRequest struct {
	Name         string            `json:"name"`
	Prompt       string            `json:"prompt"`
	Priority     string            `json:"priority,omitempty"`
	ExecuteAfter *time.Time        `json:"execute_after,omitempty"`
	MaxRetries   int               `json:"max_retries,omitempty"`
	ParentTaskID string            `json:"parent_task_id,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// taskResponse is the wire shape of a Task, shared by every handler that
// returns one.
type taskResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Prompt        string            `json:"prompt"`
	Status        string            `json:"status"`
	Priority      string            `json:"priority"`
	ScheduledAt   time.Time         `json:"scheduled_at"`
	ExecuteAfter  *time.Time        `json:"execute_after,omitempty"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Output        *string           `json:"output,omitempty"`
	ErrorMessage  *string           `json:"error_message,omitempty"`
	MaxRetries    int               `json:"max_retries"`
	RetryCount    int               `json:"retry_count"`
	ParentTaskID  *string           `json:"parent_task_id,omitempty"`
	ChainPosition *int              `json:"chain_position,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CreatedBy     string            `json:"created_by,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func toTaskResponse(t task.Task) taskResponse {
	resp := taskResponse{
		ID:            t.ID.String(),
		Name:          t.Name,
		Prompt:        t.Prompt,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		ScheduledAt:   t.ScheduledAt,
		ExecuteAfter:  t.ExecuteAfter,
		StartedAt:     t.StartedAt,
		CompletedAt:   t.CompletedAt,
		Output:        t.Output,
		ErrorMessage:  t.ErrorMessage,
		MaxRetries:    t.MaxRetries,
		RetryCount:    t.RetryCount,
		ChainPosition: t.ChainPosition,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		CreatedBy:     t.CreatedBy,
		Metadata:      t.Metadata,
	}
	if t.ParentTaskID != nil {
		id := t.ParentTaskID.String()
		resp.ParentTaskID = &id
	}
	return resp
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Message: "name and prompt are required"})
		return
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = userIDFromContext(r.Context())
	}

	in := service.CreateTaskInput{
		Name:         req.Name,
		Prompt:       req.Prompt,
		Priority:     task.Priority(req.Priority),
		ExecuteAfter: req.ExecuteAfter,
		MaxRetries:   req.MaxRetries,
		CreatedBy:    createdBy,
		Metadata:     req.Metadata,
	}
	if req.ParentTaskID != "" {
		parentID, err := uuid.Parse(req.ParentTaskID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Message: "invalid parent_task_id"})
			return
		}
		in.ParentTaskID = &parentID
	}

	created, err := s.svc.CreateTask(r.Context(), in)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(created))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.ListFilter{TextQuery: q.Get("q")}
	if status := q.Get("status"); status != "" {
		filter.StatusFilter = task.Status(status)
	}
	filter.Limit = 50
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	tasks, total, err := s.svc.ListTasks(r.Context(), filter)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out, "total": total})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}
	t, err := s.svc.GetTask(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}
	t, err := s.svc.RetryTask(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}
	t, err := s.svc.CancelTask(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// lineageNodeResponse is the wire shape of a repository.LineageNode.
type lineageNodeResponse struct {
	Task  taskResponse `json:"task"`
	Depth int          `json:"depth"`
}

func toLineageNodeResponses(nodes []repository.LineageNode) []lineageNodeResponse {
	out := make([]lineageNodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, lineageNodeResponse{Task: toTaskResponse(n.Task), Depth: n.Depth})
	}
	return out
}

func (s *Server) handleGetTaskLineage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}
	maxDepth := 10
	if depthStr := r.URL.Query().Get("max_depth"); depthStr != "" {
		if depth, err := strconv.Atoi(depthStr); err == nil {
			maxDepth = depth
		}
	}

	lineage, err := s.svc.GetTaskLineage(r.Context(), id, maxDepth)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"root":        toTaskResponse(lineage.Root),
		"ancestors":   toLineageNodeResponses(lineage.Ancestors),
		"descendants": toLineageNodeResponses(lineage.Descendants),
	})
}

func (s *Server) handleBatchCreateTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []createTaskRequest `json:"items"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	createdBy := userIDFromContext(r.Context())
	items := make([]service.CreateTaskInput, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Name == "" || item.Prompt == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Message: "name and prompt are required for every item"})
			return
		}
		by := item.CreatedBy
		if by == "" {
			by = createdBy
		}
		in := service.CreateTaskInput{
			Name:         item.Name,
			Prompt:       item.Prompt,
			Priority:     task.Priority(item.Priority),
			ExecuteAfter: item.ExecuteAfter,
			MaxRetries:   item.MaxRetries,
			CreatedBy:    by,
			Metadata:     item.Metadata,
		}
		if item.ParentTaskID != "" {
			parentID, err := uuid.Parse(item.ParentTaskID)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Message: "invalid parent_task_id"})
				return
			}
			in.ParentTaskID = &parentID
		}
		items = append(items, in)
	}

	created, err := s.svc.BatchCreateTasks(r.Context(), items)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	out := make([]taskResponse, 0, len(created))
	for _, t := range created {
		out = append(out, toTaskResponse(t))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tasks": out})
}

// templateResponse is the wire shape of a task.Template.
type templateResponse struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

func (s *Server) handleListTaskTemplates(w http.ResponseWriter, r *http.Request) {
	templates := s.svc.ListTaskTemplates()
	out := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateResponse{ID: t.ID, Label: t.Label, Description: t.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (s *Server) handleCreateTaskFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"template_id"`
		InputText  string `json:"input_text"`
		Name       string `json:"name,omitempty"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.TemplateID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Message: "template_id is required"})
		return
	}

	created, err := s.svc.CreateTaskFromTemplate(r.Context(), req.TemplateID, req.InputText, req.Name, userIDFromContext(r.Context()))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(created))
}
