package server

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"taskmanagement-api/internal/api"
	"taskmanagement-api/internal/apperr"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000

	DefaultPageSize = 20
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := decodeJSON(r, w, &creds); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.auth.Register(ctx, creds.Email, creds.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, api.MessageResponse{Message: "User registered successfully."})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := decodeJSON(r, w, &creds); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	token, err := s.auth.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, api.TokenResponse{Token: token})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())

	q, err := parseListQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	tasks, total, err := s.tasks.ListTasks(ctx, ownerID, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	respondWithJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	id, err := taskID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	task, err := s.tasks.GetTask(ctx, ownerID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())

	var req api.CreateTaskRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	description := deref(req.Description)
	if err := validateTaskFields(req.Title, description); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	task, err := s.tasks.CreateTask(ctx, ownerID, api.NewTask{
		Title:       req.Title,
		Description: description,
		DueDate:     req.DueDate,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/taskmanagement/"+strconv.FormatInt(task.ID, 10))
	respondWithJSON(w, http.StatusCreated, task)
}

// handleUpdateTask validates the path and body before looking the task up, so
// a malformed request for a missing task is a 400, not a 404.
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	id, err := taskID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req api.UpdateTaskRequest
	if err := decodeJSON(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	description := deref(req.Description)
	fields := taskFieldErrors(req.Title, description)
	if req.IsComplete == nil {
		fields["isComplete"] = "is required"
	}
	if len(fields) > 0 {
		s.writeError(w, r, invalidTask(fields))
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	task, err := s.tasks.UpdateTask(ctx, ownerID, id, api.TaskUpdate{
		Title:       req.Title,
		Description: description,
		DueDate:     req.DueDate,
		IsComplete:  *req.IsComplete,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	id, err := taskID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	task, err := s.tasks.SetCompletion(ctx, ownerID, id, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	id, err := taskID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	deleted, err := s.tasks.DeleteTask(ctx, ownerID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !deleted {
		s.writeError(w, r, apperr.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func taskID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.WithFields(apperr.CodeValidation, "invalid task id", map[string]string{"id": "must be a positive integer"})
	}
	return id, nil
}

func parseListQuery(r *http.Request) (api.ListQuery, error) {
	values := r.URL.Query()
	q := api.ListQuery{Page: 1, PageSize: DefaultPageSize}
	fields := map[string]string{}

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			fields["page"] = "must be a positive integer"
		}
		q.Page = page
	}
	if raw := values.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			fields["pageSize"] = "must be a positive integer"
		}
		q.PageSize = size
	}
	if raw := values.Get("isComplete"); raw != "" {
		complete, err := strconv.ParseBool(raw)
		if err != nil {
			fields["isComplete"] = "must be true or false"
		}
		q.IsComplete = &complete
	}
	if search := values.Get("search"); strings.TrimSpace(search) != "" {
		q.Search = &search
	}

	if len(fields) > 0 {
		return api.ListQuery{}, apperr.WithFields(apperr.CodeValidation, "invalid query parameters", fields)
	}
	return q, nil
}

func validateTaskFields(title, description string) error {
	if fields := taskFieldErrors(title, description); len(fields) > 0 {
		return invalidTask(fields)
	}
	return nil
}

func invalidTask(fields map[string]string) error {
	return apperr.WithFields(apperr.CodeValidation, "invalid task", fields)
}

func taskFieldErrors(title, description string) map[string]string {
	fields := map[string]string{}
	switch {
	case strings.TrimSpace(title) == "":
		fields["title"] = "is required"
	case utf8.RuneCountInString(title) > MaxTitleLength:
		fields["title"] = "must be at most " + strconv.Itoa(MaxTitleLength) + " characters"
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		fields["description"] = "must be at most " + strconv.Itoa(MaxDescriptionLength) + " characters"
	}
	return fields
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
