package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BuzzLyutic/task-tracker/internal/metrics"
	"github.com/BuzzLyutic/task-tracker/internal/model"
	"github.com/BuzzLyutic/task-tracker/internal/repo"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrTaskNotFound           = errors.New("task not found")
	ErrTaskNotDeleted         = errors.New("task is not deleted")
	ErrVersionRequired        = errors.New("version is required")
	ErrVersionConflict        = errors.New("task has been changed by another request, reload and retry")
	ErrNoChanges              = errors.New("no changes to apply")
	ErrForbidden              = errors.New("you do not have permission")
	ErrInvalidTaskID          = errors.New("task id must be a positive integer")
	ErrInternal               = errors.New("internal error")
)

// domainErrors are reported to the caller as is; anything else becomes ErrInternal.
var domainErrors = []error{
	ErrValidation,
	ErrIdempotencyKeyRequired,
	ErrTaskNotFound,
	ErrTaskNotDeleted,
	ErrVersionRequired,
	ErrVersionConflict,
	ErrNoChanges,
	ErrForbidden,
	ErrInvalidTaskID,
}

// DefaultIdempotencyTTL - окно, в течение которого повтор create возвращает сохранённый ответ
const DefaultIdempotencyTTL = 24 * time.Hour

type TaskService struct {
	repo    repo.TaskRepository
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

type Option func(*TaskService)

func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(s *TaskService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TaskService) { s.metrics = m }
}

func NewTaskService(repo repo.TaskRepository, opts ...Option) *TaskService {
	s := &TaskService{
		repo: repo,
		ttl:  DefaultIdempotencyTTL,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateResult is the outcome of Create. Payload is the response exactly as it
// was stored in the idempotency ledger, so replays can be written out byte for byte.
type CreateResult struct {
	model.TaskView
	Payload json.RawMessage
}

// Create inserts a task, its detail row, a CREATE audit entry and the
// idempotency record in one transaction. A repeated (owner, key) inside the
// validity window returns the stored response without writing anything.
func (s *TaskService) Create(ctx context.Context, actor model.Actor, in model.CreateTaskInput, idempKey string) (res CreateResult, err error) {
	defer func() { s.observe("create", err) }()

	key := strings.TrimSpace(idempKey)
	if key == "" {
		return res, ErrIdempotencyKeyRequired
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return res, ErrValidation
	}

	// Ключ сериализуется advisory-локом; unique на (owner_id, key) - страховка.
	// Если всё же словили конфликт, вторая попытка прочитает сохранённый ответ.
	for attempt := 0; ; attempt++ {
		res, err = s.create(ctx, actor, name, in, key)
		if errors.Is(err, repo.ErrorConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return CreateResult{}, s.fail("create task", err)
		}
		return res, nil
	}
}

func (s *TaskService) create(ctx context.Context, actor model.Actor, name string, in model.CreateTaskInput, key string) (CreateResult, error) {
	var res CreateResult
	now := s.now().UTC()
	notBefore := now.Add(-s.ttl)

	err := s.repo.InTx(ctx, func(tx repo.TaskTx) error {
		if err := tx.LockIdempotencyKey(ctx, actor.UserID, key); err != nil {
			return err
		}

		stored, err := tx.FindIdempotency(ctx, actor.UserID, key, notBefore)
		switch {
		case err == nil:
			s.metrics.IdempotentReplay()
			res.Payload = stored
			return json.Unmarshal(stored, &res.TaskView)
		case !errors.Is(err, repo.ErrorNotFound):
			return err
		}

		task, err := tx.CreateTask(ctx, model.Task{
			OwnerID: actor.UserID,
			Name:    name,
			Status:  model.StatusTodo,
		})
		if err != nil {
			return err
		}

		detail := model.TaskDetail{
			TaskID:     task.ID,
			Content:    in.Content,
			ReminderAt: model.ParseDate(in.ReminderAt),
			ExpireAt:   model.ParseDate(in.ExpireAt),
		}
		if err := tx.CreateDetail(ctx, detail); err != nil {
			return err
		}

		created := model.TaskAggregate{Task: task, Detail: detail}
		if err := s.audit(ctx, tx, actor, task.ID, model.AuditCreate, nil, &created); err != nil {
			return err
		}

		res.TaskView = created.View()
		payload, err := json.Marshal(res.TaskView)
		if err != nil {
			return err
		}
		res.Payload = payload
		return tx.SaveIdempotency(ctx, model.IdempotencyRecord{
			Key:             key,
			OwnerID:         actor.UserID,
			ResponsePayload: payload,
			CreatedAt:       now,
		}, notBefore)
	})
	return res, err
}

// audit writes one entry; a nil before/after is stored as NULL.
func (s *TaskService) audit(ctx context.Context, tx repo.TaskTx, actor model.Actor, taskID int64, action model.AuditAction, before, after *model.TaskAggregate) error {
	entry := model.AuditEntry{
		TaskID:    taskID,
		Action:    action,
		ActorID:   actor.UserID,
		CreatedAt: s.now().UTC(),
	}
	var err error
	if before != nil {
		if entry.BeforeData, err = json.Marshal(before.Snapshot()); err != nil {
			return err
		}
	}
	if after != nil {
		if entry.AfterData, err = json.Marshal(after.Snapshot()); err != nil {
			return err
		}
	}
	return tx.AppendAudit(ctx, entry)
}

// fail passes domain errors through and wraps everything else as ErrInternal.
func (s *TaskService) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, de := range domainErrors {
		if errors.Is(err, de) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

func (s *TaskService) observe(action string, err error) {
	s.metrics.ObserveMutation(action, Outcome(err))
}

// Outcome is a short, bounded label for an operation result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrIdempotencyKeyRequired):
		return "idempotency_key_required"
	case errors.Is(err, ErrTaskNotFound):
		return "not_found"
	case errors.Is(err, ErrTaskNotDeleted):
		return "not_deleted"
	case errors.Is(err, ErrVersionRequired):
		return "version_required"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrNoChanges):
		return "no_changes"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidTaskID):
		return "invalid_task_id"
	default:
		return "internal"
	}
}
