package service

import (
	"context"
	"errors"
	"strings"

	"github.com/BuzzLyutic/task-tracker/internal/model"
	"github.com/BuzzLyutic/task-tracker/internal/repo"
)

// Update applies a partial update guarded by the caller's version.
// The version is checked twice: against the row read at the start of the
// transaction, and again by the conditional UPDATE ... WHERE version = $n.
func (s *TaskService) Update(ctx context.Context, actor model.Actor, id int64, in model.UpdateTaskInput) (view model.TaskView, err error) {
	defer func() { s.observe("update", err) }()

	if id <= 0 {
		return view, ErrInvalidTaskID
	}
	if in.Version == nil {
		return view, ErrVersionRequired
	}
	if err := validateUpdate(in); err != nil {
		return view, err
	}
	expected := *in.Version

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
		if current.Version != expected {
			return ErrVersionConflict
		}

		next := applyUpdate(current, in)
		if !changed(current, next) {
			return ErrNoChanges
		}

		updated, err := tx.UpdateTask(ctx, next.Task, expected)
		if errors.Is(err, repo.ErrorConflict) {
			return ErrVersionConflict
		}
		if err != nil {
			return err
		}
		next.Task = updated

		if err := tx.UpdateDetail(ctx, next.Detail); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, actor, id, model.AuditUpdate, &current, &next); err != nil {
			return err
		}

		view = next.View()
		return nil
	})

	if errors.Is(err, ErrVersionConflict) {
		s.metrics.VersionConflict()
	}
	if err != nil {
		return model.TaskView{}, s.fail("update task", err)
	}
	return view, nil
}

func validateUpdate(in model.UpdateTaskInput) error {
	if in.Name.Set && !in.Name.Null && strings.TrimSpace(in.Name.Value) == "" {
		return ErrValidation
	}
	if in.Status.Set && !in.Status.Null && !in.Status.Value.Valid() {
		return ErrValidation
	}
	return nil
}

// applyUpdate computes the next state. Absent fields keep their value; name
// and status ignore null, the nullable fields are cleared by it. Unparseable
// dates count as null.
func applyUpdate(current model.TaskAggregate, in model.UpdateTaskInput) model.TaskAggregate {
	next := current

	if v := in.Name.Ptr(); v != nil {
		next.Name = strings.TrimSpace(*v)
	}
	if v := in.Status.Ptr(); v != nil {
		next.Status = *v
	}
	if in.Content.Set {
		next.Detail.Content = in.Content.Ptr()
	}
	if in.ReminderAt.Set {
		next.Detail.ReminderAt = model.ParseDate(in.ReminderAt.Ptr())
	}
	if in.ExpireAt.Set {
		next.Detail.ExpireAt = model.ParseDate(in.ExpireAt.Ptr())
	}
	next.Detail.TaskID = current.ID
	return next
}

func changed(a, b model.TaskAggregate) bool {
	return a.Name != b.Name ||
		a.Status != b.Status ||
		!model.SameString(a.Detail.Content, b.Detail.Content) ||
		!model.SameTime(a.Detail.ReminderAt, b.Detail.ReminderAt) ||
		!model.SameTime(a.Detail.ExpireAt, b.Detail.ExpireAt)
}
