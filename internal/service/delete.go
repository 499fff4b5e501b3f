package service

import (
	"context"
	"errors"

	"github.com/BuzzLyutic/task-tracker/internal/model"
	"github.com/BuzzLyutic/task-tracker/internal/repo"
)

func (s *TaskService) SoftDelete(ctx context.Context, actor model.Actor, id int64) (err error) {
	defer func() { s.observe("soft_delete", err) }()

	if id <= 0 {
		return ErrInvalidTaskID
	}

	err = s.repo.InTx(ctx, func(tx repo.TaskTx) error {
		current, err := tx.GetTask(ctx, id, false)
		if errors.Is(err, repo.ErrorNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		if !actor.CanModify(current.Task) {
			return ErrForbidden
		}

		// конкурентный soft delete между чтением и записью тоже даёт not found
		if err := tx.MarkDeleted(ctx, id, s.now().UTC()); err != nil {
			if errors.Is(err, repo.ErrorNotFound) {
				return ErrTaskNotFound
			}
			return err
		}
		return s.audit(ctx, tx, actor, id, model.AuditSoftDelete, &current, nil)
	})
	return s.fail("soft delete task", err)
}

// Restore is not idempotent: restoring an active task reports ErrTaskNotDeleted.
func (s *TaskService) Restore(ctx context.Context, actor model.Actor, id int64) (view model.TaskView, err error) {
	defer func() { s.observe("restore", err) }()

	if id <= 0 {
		return view, ErrInvalidTaskID
	}

	err = s.repo.InTx(ctx, func(tx repo.TaskTx) error {
		current, err := tx.GetTask(ctx, id, true)
		if errors.Is(err, repo.ErrorNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		if !actor.CanModify(current.Task) {
			return ErrForbidden
		}
		if current.DeletedAt == nil {
			return ErrTaskNotDeleted
		}

		if err := tx.ClearDeleted(ctx, id); err != nil {
			if errors.Is(err, repo.ErrorConflict) {
				return ErrTaskNotDeleted
			}
			return err
		}

		restored := current
		restored.DeletedAt = nil
		if err := s.audit(ctx, tx, actor, id, model.AuditRestore, nil, &restored); err != nil {
			return err
		}
		view = restored.View()
		return nil
	})
	if err != nil {
		return model.TaskView{}, s.fail("restore task", err)
	}
	return view, nil
}

// HardDelete removes the task together with its detail and audit rows.
// Admin only. No audit entry survives it; callers log the erasure themselves.
func (s *TaskService) HardDelete(ctx context.Context, actor model.Actor, id int64) (err error) {
	defer func() { s.observe("hard_delete", err) }()

	if id <= 0 {
		return ErrInvalidTaskID
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	err = s.repo.InTx(ctx, func(tx repo.TaskTx) error {
		// блокируем строку задачи до удаления дочерних записей: тот же порядок, что у Update
		if err := tx.LockTask(ctx, id); err != nil {
			if errors.Is(err, repo.ErrorNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		// дочерние таблицы раньше родителя
		if err := tx.DeleteDetail(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteAudits(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, id); err != nil {
			if errors.Is(err, repo.ErrorNotFound) {
				return ErrTaskNotFound
			}
			return err
		}
		return nil
	})
	return s.fail("hard delete task", err)
}

// Audits is owner only. Admins get ErrForbidden for other users' tasks,
// unlike update and delete.
func (s *TaskService) Audits(ctx context.Context, actor model.Actor, id int64) ([]model.AuditEntry, error) {
	if id <= 0 {
		return nil, ErrInvalidTaskID
	}

	var audits []model.AuditEntry
	err := s.repo.InTx(ctx, func(tx repo.TaskTx) error {
		task, err := tx.GetTask(ctx, id, true)
		if errors.Is(err, repo.ErrorNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		if task.OwnerID != actor.UserID {
			return ErrForbidden
		}

		audits, err = tx.ListAudits(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.fail("list task audits", err)
	}
	return audits, nil
}
