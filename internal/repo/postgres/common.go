package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stackport-labs/stackport-go/internal/domain"
	"github.com/stackport-labs/stackport-go/internal/platform/auditlog"
	"github.com/stackport-labs/stackport-go/internal/repo"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func encodeParams(params domain.Params) ([]byte, error) {
	if params == nil {
		params = domain.Params{}
	}
	return json.Marshal(params)
}

func decodeParams(raw []byte) (domain.Params, error) {
	if len(raw) == 0 {
		return domain.Params{}, nil
	}
	var out domain.Params
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = domain.Params{}
	}
	return out, nil
}

func nullIfEmpty(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

// insertAudit writes an audit entry through the shared append-only codec so
// in-transaction writes and the standalone appender compute the same
// integrity hash.
func insertAudit(ctx context.Context, q auditlog.QueryRower, entry domain.AuditEvent) (int64, error) {
	payload := entry.Payload
	if payload == nil {
		payload = domain.Metadata{}
	}
	return auditlog.Insert(ctx, q, auditlog.Event{
		OccurredAt:   entry.OccurredAt,
		Actor:        entry.Actor,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		RequestID:    entry.RequestID,
		IP:           entry.IP,
		UserAgent:    entry.UserAgent,
		Payload:      payload,
	})
}
