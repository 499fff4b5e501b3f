package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BuzzLyutic/task-tracker/internal/model"
)

type taskTx struct {
	q querier
}

const taskColumns = `t.id, t.owner_id, t.name, t.status, t.version, t.created_at, t.updated_at, t.deleted_at`

// LockIdempotencyKey serialises concurrent creates that share (owner, key).
// The lock is released on commit or rollback.
func (tx *taskTx) LockIdempotencyKey(ctx context.Context, ownerID int64, key string) error {
	_, err := tx.q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1::text, $2::bigint))", key, ownerID)
	return err
}

func (tx *taskTx) FindIdempotency(ctx context.Context, ownerID int64, key string, notBefore time.Time) ([]byte, error) {
	var payload []byte
	err := tx.q.QueryRow(ctx, `
		SELECT response_payload FROM idempotency_keys
		WHERE owner_id = $1 AND key = $2 AND created_at >= $3
	`, ownerID, key, notBefore).Scan(&payload)
	if err != nil {
		return nil, mapError(err)
	}
	return payload, nil
}

// SaveIdempotency drops an expired record for the same key first, so the key
// can be reused once the validity window has passed.
func (tx *taskTx) SaveIdempotency(ctx context.Context, rec model.IdempotencyRecord, notBefore time.Time) error {
	if _, err := tx.q.Exec(ctx, `
		DELETE FROM idempotency_keys WHERE owner_id = $1 AND key = $2 AND created_at < $3
	`, rec.OwnerID, rec.Key, notBefore); err != nil {
		return err
	}

	_, err := tx.q.Exec(ctx, `
		INSERT INTO idempotency_keys (owner_id, key, response_payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, rec.OwnerID, rec.Key, rec.ResponsePayload, rec.CreatedAt)
	return mapError(err)
}

func (tx *taskTx) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	row := tx.q.QueryRow(ctx, `
		INSERT INTO tasks AS t (owner_id, name, status, version)
		VALUES ($1, $2, $3, 1)
		RETURNING `+taskColumns,
		t.OwnerID, t.Name, string(t.Status))
	created, err := scanTask(row)
	return created, mapError(err)
}

func (tx *taskTx) CreateDetail(ctx context.Context, d model.TaskDetail) error {
	_, err := tx.q.Exec(ctx, `
		INSERT INTO task_details (task_id, content, reminder_at, expire_at)
		VALUES ($1, $2, $3, $4)
	`, d.TaskID, d.Content, d.ReminderAt, d.ExpireAt)
	return mapError(err)
}

func (tx *taskTx) GetTask(ctx context.Context, id int64, includeDeleted bool) (model.TaskAggregate, error) {
	var (
		agg    model.TaskAggregate
		status string
	)
	err := tx.q.QueryRow(ctx, `
		SELECT `+taskColumns+`, d.content, d.reminder_at, d.expire_at
		FROM tasks t
		LEFT JOIN task_details d ON d.task_id = t.id
		WHERE t.id = $1 AND ($2 OR t.deleted_at IS NULL)
	`, id, includeDeleted).Scan(
		&agg.ID, &agg.OwnerID, &agg.Name, &status, &agg.Version, &agg.CreatedAt, &agg.UpdatedAt, &agg.DeletedAt,
		&agg.Detail.Content, &agg.Detail.ReminderAt, &agg.Detail.ExpireAt,
	)
	if err != nil {
		return agg, mapError(err)
	}

	agg.Status = model.Status(status)
	normalizeTask(&agg.Task)
	agg.Detail.TaskID = agg.ID
	agg.Detail.ReminderAt = utcPtr(agg.Detail.ReminderAt)
	agg.Detail.ExpireAt = utcPtr(agg.Detail.ExpireAt)
	return agg, nil
}

// UpdateTask is the conditional write: it only applies when the stored version
// still equals expectedVersion and the task is active. Otherwise ErrorConflict.
func (tx *taskTx) UpdateTask(ctx context.Context, t model.Task, expectedVersion int) (model.Task, error) {
	row := tx.q.QueryRow(ctx, `
		UPDATE tasks AS t
		SET name = $2, status = $3, version = t.version + 1, updated_at = now()
		WHERE t.id = $1 AND t.version = $4 AND t.deleted_at IS NULL
		RETURNING `+taskColumns,
		t.ID, t.Name, string(t.Status), expectedVersion)

	updated, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return t, ErrorConflict
	}
	return updated, mapError(err)
}

func (tx *taskTx) UpdateDetail(ctx context.Context, d model.TaskDetail) error {
	_, err := tx.q.Exec(ctx, `
		INSERT INTO task_details (task_id, content, reminder_at, expire_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id) DO UPDATE
		SET content = EXCLUDED.content,
		    reminder_at = EXCLUDED.reminder_at,
		    expire_at = EXCLUDED.expire_at,
		    updated_at = now()
	`, d.TaskID, d.Content, d.ReminderAt, d.ExpireAt)
	return mapError(err)
}

func (tx *taskTx) MarkDeleted(ctx context.Context, id int64, at time.Time) error {
	cmd, err := tx.q.Exec(ctx, `
		UPDATE tasks SET deleted_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

// ClearDeleted returns ErrorConflict when the task is not soft-deleted.
func (tx *taskTx) ClearDeleted(ctx context.Context, id int64) error {
	cmd, err := tx.q.Exec(ctx, `
		UPDATE tasks SET deleted_at = NULL, updated_at = now()
		WHERE id = $1 AND deleted_at IS NOT NULL
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorConflict
	}
	return nil
}

func (tx *taskTx) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	_, err := tx.q.Exec(ctx, `
		INSERT INTO task_audits (task_id, action, before_data, after_data, actor_id, created_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6)
	`, e.TaskID, string(e.Action), jsonArg(e.BeforeData), jsonArg(e.AfterData), e.ActorID, e.CreatedAt)
	return mapError(err)
}

func (tx *taskTx) ListAudits(ctx context.Context, taskID int64) ([]model.AuditEntry, error) {
	rows, err := tx.q.Query(ctx, `
		SELECT id, task_id, action, before_data, after_data, actor_id, created_at
		FROM task_audits
		WHERE task_id = $1
		ORDER BY created_at DESC, id DESC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	audits := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e             model.AuditEntry
			action        string
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &action, &before, &after, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = model.AuditAction(action)
		e.BeforeData = rawJSON(before)
		e.AfterData = rawJSON(after)
		e.CreatedAt = e.CreatedAt.UTC()
		audits = append(audits, e)
	}
	return audits, rows.Err()
}

func (tx *taskTx) LockTask(ctx context.Context, id int64) error {
	var locked int64
	err := tx.q.QueryRow(ctx, "SELECT id FROM tasks WHERE id = $1 FOR UPDATE", id).Scan(&locked)
	return mapError(err)
}

func (tx *taskTx) DeleteDetail(ctx context.Context, taskID int64) error {
	_, err := tx.q.Exec(ctx, "DELETE FROM task_details WHERE task_id = $1", taskID)
	return err
}

func (tx *taskTx) DeleteAudits(ctx context.Context, taskID int64) error {
	_, err := tx.q.Exec(ctx, "DELETE FROM task_audits WHERE task_id = $1", taskID)
	return err
}

func (tx *taskTx) DeleteTask(ctx context.Context, id int64) error {
	cmd, err := tx.q.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		t      model.Task
		status string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &status, &t.Version, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		return t, err
	}
	t.Status = model.Status(status)
	normalizeTask(&t)
	return t, nil
}

func normalizeTask(t *model.Task) {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.DeletedAt = utcPtr(t.DeletedAt)
}

// jsonArg maps a nil snapshot to SQL NULL.
func jsonArg(b json.RawMessage) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func rawJSON(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	return json.RawMessage(b)
}
