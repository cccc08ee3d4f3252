package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"-"`
}

// Task is a single owned task. OwnerID never leaves the server.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"dueDate"`
	IsComplete  bool      `json:"isComplete"`
	OwnerID     int64     `json:"-"`
}

// NewTask holds the caller-supplied fields for task creation.
type NewTask struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// TaskUpdate replaces every mutable field of a task. A nil DueDate keeps the
// stored due date.
type TaskUpdate struct {
	Title       string
	Description string
	DueDate     *time.Time
	IsComplete  bool
}

// ListQuery selects one page of an owner's tasks.
type ListQuery struct {
	Page       int
	PageSize   int
	Search     *string
	IsComplete *bool
}

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
}

// UpdateTaskRequest is a full replacement; IsComplete is required.
type UpdateTaskRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	IsComplete  *bool      `json:"isComplete"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
