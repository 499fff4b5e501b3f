package service

import (
	"context"
	"math"

	"github.com/BuzzLyutic/task-tracker/internal/model"
	"github.com/BuzzLyutic/task-tracker/internal/repo"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// List returns active tasks. Non-admins only see their own.
func (s *TaskService) List(ctx context.Context, actor model.Actor, q model.ListQuery) (model.TaskPage, error) {
	q = normalizeQuery(q)
	q.Deleted = false
	q.OwnerID = nil
	if !actor.IsAdmin() {
		owner := actor.UserID
		q.OwnerID = &owner
	}
	return s.page(ctx, q, "list tasks")
}

// ListMyDeleted returns the caller's own soft-deleted tasks, admins included.
func (s *TaskService) ListMyDeleted(ctx context.Context, actor model.Actor, q model.ListQuery) (model.TaskPage, error) {
	q = normalizeQuery(q)
	q.Deleted = true
	owner := actor.UserID
	q.OwnerID = &owner
	return s.page(ctx, q, "list my deleted tasks")
}

// ListDeleted returns every soft-deleted task. Admin only.
func (s *TaskService) ListDeleted(ctx context.Context, actor model.Actor, q model.ListQuery) (model.TaskPage, error) {
	if !actor.IsAdmin() {
		return model.TaskPage{}, ErrForbidden
	}
	q = normalizeQuery(q)
	q.Deleted = true
	q.OwnerID = nil
	return s.page(ctx, q, "list deleted tasks")
}

func (s *TaskService) GetStats(ctx context.Context, actor model.Actor) (repo.Stats, error) {
	var owner *int64
	if !actor.IsAdmin() {
		id := actor.UserID
		owner = &id
	}
	stats, err := s.repo.GetStats(ctx, owner)
	return stats, s.fail("task stats", err)
}

func (s *TaskService) page(ctx context.Context, q model.ListQuery, op string) (model.TaskPage, error) {
	tasks, total, err := s.repo.ListTasks(ctx, q)
	if err != nil {
		return model.TaskPage{}, s.fail(op, err)
	}
	if tasks == nil {
		tasks = []model.TaskListItem{}
	}
	return model.TaskPage{
		Tasks:   tasks,
		Total:   total,
		Page:    q.Page,
		Limit:   q.Limit,
		HasMore: q.Offset()+len(tasks) < total,
	}, nil
}

func normalizeQuery(q model.ListQuery) model.ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > MaxPageLimit {
		q.Limit = DefaultPageLimit
	}
	// offset = (page-1)*limit не должен переполнить int
	if maxPage := math.MaxInt / q.Limit; q.Page > maxPage {
		q.Page = maxPage
	}
	return q
}
