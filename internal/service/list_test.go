package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/task-tracker/internal/model"
	"github.com/BuzzLyutic/task-tracker/internal/repo"
)

func TestTaskService_List(t *testing.T) {
	tests := []struct {
		name      string
		actor     model.Actor
		query     model.ListQuery
		wantQuery func(model.ListQuery) bool
		rows      int
		total     int
		wantMore  bool
	}{
		{
			name:  "default page and limit",
			actor: owner,
			query: model.ListQuery{},
			wantQuery: func(q model.ListQuery) bool {
				return q.Page == 1 && q.Limit == DefaultPageLimit && q.OwnerID != nil && *q.OwnerID == 7 && !q.Deleted
			},
		},
		{
			name:  "limit too high falls back to default",
			actor: owner,
			query: model.ListQuery{Page: 2, Limit: 500},
			wantQuery: func(q model.ListQuery) bool {
				return q.Page == 2 && q.Limit == DefaultPageLimit
			},
		},
		{
			name:  "admin sees all owners",
			actor: admin,
			query: model.ListQuery{Search: "bug", Page: 1, Limit: 2},
			wantQuery: func(q model.ListQuery) bool {
				return q.OwnerID == nil && q.Search == "bug" && q.Limit == 2
			},
			rows:     2,
			total:    5,
			wantMore: true,
		},
		{
			name:  "huge page is capped so the offset stays positive",
			actor: owner,
			query: model.ListQuery{Page: math.MaxInt/10 + 2, Limit: 10},
			wantQuery: func(q model.ListQuery) bool {
				return q.Limit == 10 && q.Page == math.MaxInt/10 && q.Offset() > 0
			},
			rows:     0,
			total:    5,
			wantMore: false,
		},
		{
			name:  "caller cannot widen scope by passing an owner",
			actor: owner,
			query: model.ListQuery{OwnerID: ptrInt64(99), Deleted: true, Page: 3, Limit: 2},
			wantQuery: func(q model.ListQuery) bool {
				return *q.OwnerID == 7 && !q.Deleted
			},
			rows:     1,
			total:    5,
			wantMore: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := newMockRepo()
			rows := make([]model.TaskListItem, tt.rows)
			mockRepo.On("ListTasks", mock.Anything, mock.MatchedBy(tt.wantQuery)).Return(rows, tt.total, nil)

			page, err := newTestService(mockRepo).List(context.Background(), tt.actor, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.total, page.Total)
			assert.Equal(t, tt.wantMore, page.HasMore)
			assert.NotNil(t, page.Tasks)
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestTaskService_ListDeletedVariants(t *testing.T) {
	t.Run("my deleted is scoped to caller even for admin", func(t *testing.T) {
		mockRepo := newMockRepo()
		mockRepo.On("ListTasks", mock.Anything, mock.MatchedBy(func(q model.ListQuery) bool {
			return q.Deleted && q.OwnerID != nil && *q.OwnerID == admin.UserID
		})).Return([]model.TaskListItem{}, 0, nil)

		_, err := newTestService(mockRepo).ListMyDeleted(context.Background(), admin, model.ListQuery{})
		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("all deleted requires admin", func(t *testing.T) {
		mockRepo := newMockRepo()

		_, err := newTestService(mockRepo).ListDeleted(context.Background(), owner, model.ListQuery{})
		assert.ErrorIs(t, err, ErrForbidden)
		mockRepo.AssertNotCalled(t, "ListTasks", mock.Anything, mock.Anything)
	})

	t.Run("admin lists all deleted", func(t *testing.T) {
		mockRepo := newMockRepo()
		mockRepo.On("ListTasks", mock.Anything, mock.MatchedBy(func(q model.ListQuery) bool {
			return q.Deleted && q.OwnerID == nil
		})).Return([]model.TaskListItem{{}}, 1, nil)

		page, err := newTestService(mockRepo).ListDeleted(context.Background(), admin, model.ListQuery{})
		require.NoError(t, err)
		assert.Len(t, page.Tasks, 1)
		assert.False(t, page.HasMore)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		mockRepo := newMockRepo()
		mockRepo.On("ListTasks", mock.Anything, mock.Anything).Return([]model.TaskListItem(nil), 0, errors.New("timeout"))

		_, err := newTestService(mockRepo).ListMyDeleted(context.Background(), owner, model.ListQuery{})
		assert.ErrorIs(t, err, ErrInternal)
	})
}

func TestTaskService_GetStats(t *testing.T) {
	expected := repo.Stats{
		ByStatus: map[model.Status]int{model.StatusTodo: 3, model.StatusDone: 2},
		Deleted:  1,
		Total:    5,
	}

	mockRepo := newMockRepo()
	mockRepo.On("GetStats", mock.Anything, mock.MatchedBy(func(owner *int64) bool {
		return owner != nil && *owner == 7
	})).Return(expected, nil)
	mockRepo.On("GetStats", mock.Anything, (*int64)(nil)).Return(expected, nil)

	service := newTestService(mockRepo)

	stats, err := service.GetStats(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, expected, stats)

	_, err = service.GetStats(context.Background(), admin)
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func ptrInt64(v int64) *int64 { return &v }
