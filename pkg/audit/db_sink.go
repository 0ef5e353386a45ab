package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// DBSink persists audit entries to PostgreSQL
type DBSink struct {
	db *sql.DB
}

// NewDBSink creates a database-backed audit sink
func NewDBSink(db *sql.DB) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBSink{db: db}, nil
}

// Write appends one audit entry
func (s *DBSink) Write(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO authorization_audit_log
			(actor_id, tenant_id, resource, resource_id, action, allowed, denial_reason, request_id, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		e.ActorID,
		e.TenantID,
		e.Resource,
		e.ResourceID,
		e.Action,
		e.Allowed,
		e.DenialReason,
		e.RequestID,
		e.CheckedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the filter, newest first
func (s *DBSink) Query(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT id, actor_id, tenant_id, resource, resource_id, action, allowed, denial_reason, request_id, checked_at
		FROM authorization_audit_log
		WHERE 1=1
	`
	args := []interface{}{}
	argN := 1

	addArg := func(clause string, value interface{}) {
		query += fmt.Sprintf(" AND %s $%d", clause, argN)
		args = append(args, value)
		argN++
	}

	if f.ActorID != nil {
		addArg("actor_id =", *f.ActorID)
	}
	if f.TenantID != nil {
		addArg("tenant_id =", *f.TenantID)
	}
	if f.Resource != "" {
		addArg("resource =", f.Resource)
	}
	if f.Allowed != nil {
		addArg("allowed =", *f.Allowed)
	}
	if f.Since != nil {
		addArg("checked_at >=", *f.Since)
	}
	if f.Until != nil {
		addArg("checked_at <=", *f.Until)
	}

	query += " ORDER BY checked_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var tenantID sql.NullInt64
		var resourceID, denialReason, requestID sql.NullString

		if err := rows.Scan(
			&e.ID, &e.ActorID, &tenantID, &e.Resource, &resourceID,
			&e.Action, &e.Allowed, &denialReason, &requestID, &e.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if tenantID.Valid {
			id := tenantID.Int64
			e.TenantID = &id
		}
		if resourceID.Valid {
			rid := resourceID.String
			e.ResourceID = &rid
		}
		if denialReason.Valid {
			reason := denialReason.String
			e.DenialReason = &reason
		}
		if requestID.Valid {
			e.RequestID = requestID.String
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
