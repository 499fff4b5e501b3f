package repo

import (
	"context"
	"time"

	"github.com/BuzzLyutic/task-tracker/internal/model"
)

// TaskRepository определяет интерфейс для работы с задачами
type TaskRepository interface {
	// InTx runs fn in one transaction: commit on nil, rollback on any error.
	InTx(ctx context.Context, fn func(tx TaskTx) error) error
	ListTasks(ctx context.Context, q model.ListQuery) ([]model.TaskListItem, int, error)
	GetStats(ctx context.Context, ownerID *int64) (Stats, error)
	PurgeIdempotency(ctx context.Context, before time.Time) (int64, error)
}

// TaskTx - операции, доступные внутри транзакции мутации
type TaskTx interface {
	LockIdempotencyKey(ctx context.Context, ownerID int64, key string) error
	FindIdempotency(ctx context.Context, ownerID int64, key string, notBefore time.Time) ([]byte, error)
	SaveIdempotency(ctx context.Context, rec model.IdempotencyRecord, notBefore time.Time) error

	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	CreateDetail(ctx context.Context, d model.TaskDetail) error
	GetTask(ctx context.Context, id int64, includeDeleted bool) (model.TaskAggregate, error)
	UpdateTask(ctx context.Context, t model.Task, expectedVersion int) (model.Task, error)
	UpdateDetail(ctx context.Context, d model.TaskDetail) error
	MarkDeleted(ctx context.Context, id int64, at time.Time) error
	ClearDeleted(ctx context.Context, id int64) error

	AppendAudit(ctx context.Context, e model.AuditEntry) error
	ListAudits(ctx context.Context, taskID int64) ([]model.AuditEntry, error)

	// LockTask takes the row lock on the task (deleted or not) before its
	// children are touched, so concurrent writers queue on the parent row.
	LockTask(ctx context.Context, id int64) error
	DeleteDetail(ctx context.Context, taskID int64) error
	DeleteAudits(ctx context.Context, taskID int64) error
	DeleteTask(ctx context.Context, id int64) error
}

type Stats struct {
	ByStatus map[model.Status]int `json:"by_status"`
	Deleted  int                  `json:"deleted"`
	Total    int                  `json:"total"`
}
