package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bonaso/internal/domain"
	"bonaso/internal/events"
)

var flagKinds = map[string]bool{
	"interaction": true,
	"respondent":  true,
	"count":       true,
	"post":        true,
}

// RaiseFlag soft-excludes a record from every aggregation until the
// flag is resolved.
func (r Repo) RaiseFlag(ctx context.Context, w events.Writer, entityKind string, entityID int64, reason, actorID string) (domain.Flag, error) {
	if !flagKinds[entityKind] {
		return domain.Flag{}, fmt.Errorf("unknown flag entity kind %s", entityKind)
	}
	flag := domain.Flag{
		ID:         uuid.New().String(),
		EntityKind: entityKind,
		EntityID:   entityID,
		Reason:     reason,
		RaisedBy:   actorID,
		RaisedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Flag{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO flags(id,entity_kind,entity_id,reason,resolved,raised_by,raised_at) VALUES (?,?,?,?,0,?,?)`,
		flag.ID, flag.EntityKind, flag.EntityID, nullable(flag.Reason), flag.RaisedBy, flag.RaisedAt); err != nil {
		return domain.Flag{}, fmt.Errorf("insert flag: %w", err)
	}
	if err := w.Append(ctx, tx, "flag.raised", entityKind, fmt.Sprint(entityID), actorID, events.EventPayload{"reason": reason, "flag_id": flag.ID}); err != nil {
		return domain.Flag{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Flag{}, err
	}
	return flag, nil
}

// ResolveFlag lifts the exclusion.
func (r Repo) ResolveFlag(ctx context.Context, w events.Writer, flagID, actorID string) (domain.Flag, error) {
	flag, err := r.GetFlag(ctx, flagID)
	if err != nil {
		return domain.Flag{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Flag{}, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE flags SET resolved=1, resolved_at=? WHERE id=? AND resolved=0`, now, flagID)
	if err != nil {
		return domain.Flag{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Flag{}, fmt.Errorf("flag %s already resolved", flagID)
	}
	if err := w.Append(ctx, tx, "flag.resolved", flag.EntityKind, fmt.Sprint(flag.EntityID), actorID, events.EventPayload{"flag_id": flagID}); err != nil {
		return domain.Flag{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Flag{}, err
	}
	flag.Resolved = true
	flag.ResolvedAt = &now
	return flag, nil
}

func (r Repo) GetFlag(ctx context.Context, id string) (domain.Flag, error) {
	var flag domain.Flag
	var reason, resolvedAt sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,entity_kind,entity_id,reason,resolved,raised_by,raised_at,resolved_at FROM flags WHERE id=?`, id).
		Scan(&flag.ID, &flag.EntityKind, &flag.EntityID, &reason, &flag.Resolved, &flag.RaisedBy, &flag.RaisedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return flag, ErrNotFound
	}
	if reason.Valid {
		flag.Reason = reason.String
	}
	if resolvedAt.Valid {
		flag.ResolvedAt = &resolvedAt.String
	}
	return flag, err
}

func (r Repo) ListFlags(ctx context.Context, entityKind string, unresolvedOnly bool) ([]domain.Flag, error) {
	clauses := "WHERE 1=1"
	var args []any
	if entityKind != "" {
		clauses += " AND entity_kind=?"
		args = append(args, entityKind)
	}
	if unresolvedOnly {
		clauses += " AND resolved=0"
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,entity_kind,entity_id,reason,resolved,raised_by,raised_at,resolved_at FROM flags `+clauses+` ORDER BY raised_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Flag
	for rows.Next() {
		var flag domain.Flag
		var reason, resolvedAt sql.NullString
		if err := rows.Scan(&flag.ID, &flag.EntityKind, &flag.EntityID, &reason, &flag.Resolved, &flag.RaisedBy, &flag.RaisedAt, &resolvedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			flag.Reason = reason.String
		}
		if resolvedAt.Valid {
			flag.ResolvedAt = &resolvedAt.String
		}
		res = append(res, flag)
	}
	return res, rows.Err()
}
