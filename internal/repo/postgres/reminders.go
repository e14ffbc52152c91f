package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stackport-labs/stackport-go/internal/domain"
)

type ReminderStore struct {
	db DB
}

func NewReminderStore(db DB) *ReminderStore {
	if db == nil {
		return nil
	}
	return &ReminderStore{db: db}
}

func (s *ReminderStore) Append(ctx context.Context, reminder domain.ApprovalReminder) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("reminder store not initialized")
	}
	if err := reminder.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO approval_reminders (
			reminder_id,
			request_id,
			channel,
			sent_at
		) VALUES ($1,$2,$3,$4)`,
		strings.TrimSpace(reminder.ID),
		strings.TrimSpace(reminder.RequestID),
		string(reminder.Channel),
		reminder.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

func (s *ReminderStore) LastSentAt(ctx context.Context, requestID string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, fmt.Errorf("reminder store not initialized")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return time.Time{}, false, fmt.Errorf("request id is required")
	}
	var sentAt time.Time
	err := s.db.QueryRowContext(
		ctx,
		`SELECT sent_at FROM approval_reminders
		 WHERE request_id = $1
		 ORDER BY sent_at DESC
		 LIMIT 1`,
		requestID,
	).Scan(&sentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last reminder lookup: %w", err)
	}
	return sentAt, true, nil
}
