package model

import "time"

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task - основная строка задачи, version используется для optimistic locking
type Task struct {
	ID        int64
	OwnerID   int64
	Name      string
	Status    Status
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// TaskDetail хранится отдельно, чтобы правки деталей не трогали строку задачи
type TaskDetail struct {
	TaskID     int64
	Content    *string
	ReminderAt *time.Time
	ExpireAt   *time.Time
}

// TaskAggregate is one task as callers see it: the core row plus its detail row.
type TaskAggregate struct {
	Task
	Detail TaskDetail
}

func (a TaskAggregate) View() TaskView {
	return TaskView{
		ID:         a.ID,
		OwnerID:    a.OwnerID,
		Name:       a.Name,
		Status:     a.Status,
		Version:    a.Version,
		Content:    a.Detail.Content,
		ReminderAt: a.Detail.ReminderAt,
		ExpireAt:   a.Detail.ExpireAt,
	}
}

func (a TaskAggregate) Snapshot() TaskSnapshot {
	return TaskSnapshot{
		Name:       a.Name,
		Status:     a.Status,
		Content:    a.Detail.Content,
		ReminderAt: a.Detail.ReminderAt,
		ExpireAt:   a.Detail.ExpireAt,
		Version:    a.Version,
		DeletedAt:  a.DeletedAt,
	}
}

// TaskView is the JSON shape returned by every task operation.
type TaskView struct {
	ID         int64      `json:"id"`
	OwnerID    int64      `json:"ownerId"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Version    int        `json:"version"`
	Content    *string    `json:"content"`
	ReminderAt *time.Time `json:"reminderAt"`
	ExpireAt   *time.Time `json:"expireAt"`
}

type TaskListItem struct {
	TaskView
	OwnerName *string    `json:"ownerName,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type TaskPage struct {
	Tasks   []TaskListItem `json:"tasks"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	HasMore bool           `json:"hasMore"`
}

type CreateTaskInput struct {
	Name       string  `json:"name"`
	Content    *string `json:"content"`
	ReminderAt *string `json:"reminderAt"`
	ExpireAt   *string `json:"expireAt"`
}

// UpdateTaskInput - частичное обновление: отсутствующее поле сохраняет текущее значение
type UpdateTaskInput struct {
	Name       Optional[string] `json:"name"`
	Status     Optional[Status] `json:"status"`
	Content    Optional[string] `json:"content"`
	ReminderAt Optional[string] `json:"reminderAt"`
	ExpireAt   Optional[string] `json:"expireAt"`
	Version    *int             `json:"version"`
}

type ListQuery struct {
	Search  string
	Page    int
	Limit   int
	OwnerID *int64 // nil - все владельцы (admin)
	Deleted bool
}

func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}
