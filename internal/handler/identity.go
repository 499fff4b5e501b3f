package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/BuzzLyutic/task-tracker/internal/model"
	"github.com/BuzzLyutic/task-tracker/pkg/respond"
)

// Заголовки выставляет шлюз аутентификации перед сервисом
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

type actorKey struct{}

// Identity turns the gateway headers into a model.Actor. Requests without a
// valid positive user id get 401.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
		if err != nil || id <= 0 {
			respond.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		role := model.RoleUser
		if model.Role(r.Header.Get(HeaderUserRole)) == model.RoleAdmin {
			role = model.RoleAdmin
		}

		ctx := WithActor(r.Context(), model.Actor{UserID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}
