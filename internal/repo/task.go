package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/BuzzLyutic/task-tracker/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo { // Конструктор
	return &TaskRepo{
		pool: pool,
	}
}

func (r *TaskRepo) InTx(ctx context.Context, fn func(tx TaskTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // после Commit это no-op

	if err := fn(&taskTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	return nil
}

func (r *TaskRepo) ListTasks(ctx context.Context, q model.ListQuery) ([]model.TaskListItem, int, error) {
	where, args := listWhere(q)

	order := "t.id DESC"
	if q.Deleted {
		order = "t.deleted_at DESC, t.id DESC"
	}

	var (
		total int
		tasks []model.TaskListItem
	)

	// count и страница независимы, гоняем параллельно на разных соединениях пула
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*) FROM tasks t WHERE `+where, args...).Scan(&total)
	})
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), q.Limit, q.Offset())
		query := fmt.Sprintf(`
			SELECT t.id, t.owner_id, t.name, t.status, t.version, t.created_at, t.deleted_at,
			       d.content, d.reminder_at, d.expire_at, u.name
			FROM tasks t
			LEFT JOIN task_details d ON d.task_id = t.id
			LEFT JOIN users u ON u.id = t.owner_id
			WHERE %s
			ORDER BY %s
			LIMIT $%d OFFSET $%d
		`, where, order, len(args)+1, len(args)+2)

		rows, err := r.pool.Query(gctx, query, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()

		tasks = make([]model.TaskListItem, 0, q.Limit)
		for rows.Next() {
			var (
				item      model.TaskListItem
				status    string
				ownerName *string
			)
			if err := rows.Scan(
				&item.ID, &item.OwnerID, &item.Name, &status, &item.Version, &item.CreatedAt, &item.DeletedAt,
				&item.Content, &item.ReminderAt, &item.ExpireAt, &ownerName,
			); err != nil {
				return err
			}
			item.Status = model.Status(status)
			item.CreatedAt = item.CreatedAt.UTC()
			item.DeletedAt = utcPtr(item.DeletedAt)
			item.ReminderAt = utcPtr(item.ReminderAt)
			item.ExpireAt = utcPtr(item.ExpireAt)
			if q.OwnerID == nil { // имя владельца нужно только в общем (admin) списке
				item.OwnerName = ownerName
			}
			tasks = append(tasks, item)
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func listWhere(q model.ListQuery) (string, []any) {
	conds := []string{"t.deleted_at IS NULL"}
	if q.Deleted {
		conds[0] = "t.deleted_at IS NOT NULL"
	}
	var args []any
	if q.OwnerID != nil {
		args = append(args, *q.OwnerID)
		conds = append(conds, fmt.Sprintf("t.owner_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		conds = append(conds, fmt.Sprintf(`t.name ILIKE $%d ESCAPE '\'`, len(args)))
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *TaskRepo) GetStats(ctx context.Context, ownerID *int64) (Stats, error) {
	stats := Stats{ByStatus: make(map[model.Status]int)}

	rows, err := r.pool.Query(ctx, `
		SELECT status, deleted_at IS NOT NULL AS deleted, COUNT(*)
		FROM tasks
		WHERE ($1::bigint IS NULL OR owner_id = $1)
		GROUP BY status, deleted
	`, ownerID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status  string
			deleted bool
			n       int
		)
		if err := rows.Scan(&status, &deleted, &n); err != nil {
			return stats, err
		}
		if deleted {
			stats.Deleted += n
			continue
		}
		stats.ByStatus[model.Status(status)] += n
		stats.Total += n
	}
	return stats, rows.Err()
}

func (r *TaskRepo) PurgeIdempotency(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM idempotency_keys WHERE created_at < $1", before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique_violation
			return ErrorConflict
		}
	}
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
