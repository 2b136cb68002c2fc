package journal

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs for the activity feed.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Window returns a page of entries, newest first. Callers pass limit one
// larger than the page size to detect a next page.
func (r *Repository) Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	query := `
		SELECT a.id, a.occurred_at, COALESCE(a.actor_id, 0), COALESCE(u.username, ''), a.action, a.entity, a.entity_id, a.meta
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE 1=1`
	args := []any{}
	argCount := 0

	if !filters.From.IsZero() {
		argCount++
		query += ` AND a.occurred_at >= $` + strconv.Itoa(argCount)
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		argCount++
		query += ` AND a.occurred_at <= $` + strconv.Itoa(argCount)
		args = append(args, filters.To)
	}
	if filters.Actor != "" {
		argCount++
		query += ` AND u.username ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Actor+"%")
	}
	if filters.Entity != "" {
		argCount++
		query += ` AND a.entity = $` + strconv.Itoa(argCount)
		args = append(args, filters.Entity)
	}
	if filters.Action != "" {
		argCount++
		query += ` AND a.action = $` + strconv.Itoa(argCount)
		args = append(args, filters.Action)
	}

	argCount++
	query += ` ORDER BY a.occurred_at DESC, a.id DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.At, &e.ActorID, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
