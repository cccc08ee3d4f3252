package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"taskmanagement-api/internal/api"
	"taskmanagement-api/internal/apperr"
)

const (
	// MaxPageSize caps one listing page; larger requests are clamped.
	MaxPageSize = 100

	// MaxPage bounds the page number so the row offset cannot overflow.
	MaxPage = math.MaxInt32

	// DefaultDueIn is added to the creation time when no due date is given.
	DefaultDueIn = 7 * 24 * time.Hour
)

var taskColumns = []string{"id", "owner_id", "title", "description", "due_date", "is_complete"}

type taskRow struct {
	ID          int64  `db:"id"`
	OwnerID     int64  `db:"owner_id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	DueDate     int64  `db:"due_date"`
	IsComplete  bool   `db:"is_complete"`
}

func (r taskRow) toTask() api.Task {
	return api.Task{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		DueDate:     fromMillis(r.DueDate),
		IsComplete:  r.IsComplete,
	}
}

func ownedBy(ownerID, id int64) squirrel.Eq {
	return squirrel.Eq{"id": id, "owner_id": ownerID}
}

func taskAttrs(ownerID, id int64) trace.SpanStartEventOption {
	return trace.WithAttributes(attribute.Int64("task.owner_id", ownerID), attribute.Int64("task.id", id))
}

// ListTasks returns one page of ownerID's tasks ordered by due date, newest
// first, plus the size of the filtered set. Search matches title or
// description case-insensitively.
func (s *Store) ListTasks(ctx context.Context, ownerID int64, q api.ListQuery) (items []api.Task, total int, err error) {
	ctx, span := s.startSpan(ctx, "ListTasks")
	span.SetAttributes(attribute.Int64("task.owner_id", ownerID), attribute.Int("page", q.Page), attribute.Int("page_size", q.PageSize))
	defer func() { endSpan(span, err) }()

	if q.Page < 1 || q.PageSize < 1 {
		return nil, 0, apperr.WithFields(apperr.CodeValidation, "invalid page", map[string]string{
			"page": "page and pageSize must be positive",
		})
	}
	if q.Page > MaxPage {
		return nil, 0, apperr.WithFields(apperr.CodeValidation, "invalid page", map[string]string{
			"page": "must be at most " + strconv.Itoa(MaxPage),
		})
	}
	pageSize := q.PageSize
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	where := squirrel.And{squirrel.Eq{"owner_id": ownerID}}
	// Whitespace-only search text is ignored; otherwise it is matched as given,
	// surrounding spaces included.
	if q.Search != nil && strings.TrimSpace(*q.Search) != "" {
		pattern := "%" + escapeLike(strings.ToLower(*q.Search)) + "%"
		where = append(where, squirrel.Or{
			squirrel.Expr(`LOWER(title) LIKE ? ESCAPE '\'`, pattern),
			squirrel.Expr(`LOWER(description) LIKE ? ESCAPE '\'`, pattern),
		})
	}
	if q.IsComplete != nil {
		where = append(where, squirrel.Eq{"is_complete": *q.IsComplete})
	}

	countQuery, countArgs, err := s.builder.Select("COUNT(*)").From("tasks").Where(where).ToSql()
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeStorage, "build count tasks", err)
	}
	if err := s.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeStorage, "count tasks", err)
	}

	query, args, err := s.builder.Select(taskColumns...).
		From("tasks").
		Where(where).
		OrderBy("due_date DESC", "id DESC").
		Limit(uint64(pageSize)).
		Offset(uint64((q.Page - 1) * pageSize)).
		ToSql()
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeStorage, "build list tasks", err)
	}

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeStorage, "list tasks", err)
	}

	items = make([]api.Task, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toTask())
	}
	return items, total, nil
}

// GetTask returns the task only when it exists and belongs to ownerID.
func (s *Store) GetTask(ctx context.Context, ownerID, id int64) (task api.Task, err error) {
	ctx, span := s.startSpan(ctx, "GetTask", taskAttrs(ownerID, id))
	defer func() { endSpan(span, err) }()

	query, args, err := s.builder.Select(taskColumns...).From("tasks").Where(ownedBy(ownerID, id)).ToSql()
	if err != nil {
		return api.Task{}, apperr.Wrap(apperr.CodeStorage, "build select task", err)
	}

	var row taskRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.Task{}, apperr.Wrap(apperr.CodeNotFound, "task not found", err)
		}
		return api.Task{}, apperr.Wrap(apperr.CodeStorage, "select task", err)
	}
	return row.toTask(), nil
}

// CreateTask inserts a task owned by ownerID. A nil due date defaults to
// DefaultDueIn from now.
func (s *Store) CreateTask(ctx context.Context, ownerID int64, in api.NewTask) (task api.Task, err error) {
	ctx, span := s.startSpan(ctx, "CreateTask", trace.WithAttributes(attribute.Int64("task.owner_id", ownerID)))
	defer func() { endSpan(span, err) }()

	due := s.now().Add(DefaultDueIn)
	if in.DueDate != nil {
		due = *in.DueDate
	}
	row := taskRow{
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     toMillis(due),
		IsComplete:  false,
	}

	query, args, err := s.builder.Insert("tasks").
		Columns("owner_id", "title", "description", "due_date", "is_complete").
		Values(row.OwnerID, row.Title, row.Description, row.DueDate, row.IsComplete).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return api.Task{}, apperr.Wrap(apperr.CodeStorage, "build insert task", err)
	}

	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&row.ID); err != nil {
		return api.Task{}, apperr.Wrap(apperr.CodeStorage, "insert task", err)
	}
	return row.toTask(), nil
}

// UpdateTask replaces every mutable field of ownerID's task. A nil due date
// keeps the stored one. The owner is never changed.
func (s *Store) UpdateTask(ctx context.Context, ownerID, id int64, in api.TaskUpdate) (task api.Task, err error) {
	ctx, span := s.startSpan(ctx, "UpdateTask", taskAttrs(ownerID, id))
	defer func() { endSpan(span, err) }()

	return s.mutateTask(ctx, ownerID, id, func(row *taskRow) {
		row.Title = in.Title
		row.Description = in.Description
		if in.DueDate != nil {
			row.DueDate = toMillis(*in.DueDate)
		}
		row.IsComplete = in.IsComplete
	})
}

// SetCompletion flips only the completion flag of ownerID's task.
func (s *Store) SetCompletion(ctx context.Context, ownerID, id int64, complete bool) (task api.Task, err error) {
	ctx, span := s.startSpan(ctx, "SetCompletion", taskAttrs(ownerID, id))
	defer func() { endSpan(span, err) }()

	return s.mutateTask(ctx, ownerID, id, func(row *taskRow) {
		row.IsComplete = complete
	})
}

// mutateTask locates (id, ownerID) and writes the modified row back inside a
// single transaction. On Postgres the row is locked for the duration.
func (s *Store) mutateTask(ctx context.Context, ownerID, id int64, apply func(*taskRow)) (api.Task, error) {
	var row taskRow
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		sel := s.builder.Select(taskColumns...).From("tasks").Where(ownedBy(ownerID, id))
		if s.isPostgres() {
			sel = sel.Suffix("FOR UPDATE")
		}
		query, args, err := sel.ToSql()
		if err != nil {
			return apperr.Wrap(apperr.CodeStorage, "build select task", err)
		}
		if err := tx.GetContext(ctx, &row, query, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.Wrap(apperr.CodeNotFound, "task not found", err)
			}
			return apperr.Wrap(apperr.CodeStorage, "select task", err)
		}

		apply(&row)

		query, args, err = s.builder.Update("tasks").
			Set("title", row.Title).
			Set("description", row.Description).
			Set("due_date", row.DueDate).
			Set("is_complete", row.IsComplete).
			Where(ownedBy(ownerID, id)).
			ToSql()
		if err != nil {
			return apperr.Wrap(apperr.CodeStorage, "build update task", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return apperr.Wrap(apperr.CodeStorage, "update task", err)
		}
		return nil
	})
	if err != nil {
		return api.Task{}, err
	}
	return row.toTask(), nil
}

// DeleteTask hard-deletes ownerID's task. It reports false when no task with
// that id belongs to ownerID, including one that was already deleted.
func (s *Store) DeleteTask(ctx context.Context, ownerID, id int64) (deleted bool, err error) {
	ctx, span := s.startSpan(ctx, "DeleteTask", taskAttrs(ownerID, id))
	defer func() { endSpan(span, err) }()

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.builder.Delete("tasks").Where(ownedBy(ownerID, id)).ToSql()
		if err != nil {
			return apperr.Wrap(apperr.CodeStorage, "build delete task", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return apperr.Wrap(apperr.CodeStorage, "delete task", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return apperr.Wrap(apperr.CodeStorage, "delete task rows affected", err)
		}
		deleted = affected > 0
		return nil
	})
	return deleted, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
