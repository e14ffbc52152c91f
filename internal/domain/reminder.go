package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReminderChannel is the delivery mechanism of an approval reminder.
type ReminderChannel string

const (
	ReminderEmail   ReminderChannel = "email"
	ReminderWebhook ReminderChannel = "webhook"
)

func (c ReminderChannel) Valid() bool {
	switch c {
	case ReminderEmail, ReminderWebhook:
		return true
	}
	return false
}

// ApprovalReminder is an append-only record of a reminder sent for a
// still-pending request. Read only to decide eligibility for the next
// reminder within the cool-down window.
type ApprovalReminder struct {
	ID        string
	RequestID string
	Channel   ReminderChannel
	SentAt    time.Time
}

func (r ApprovalReminder) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("reminder id is required")
	}
	if strings.TrimSpace(r.RequestID) == "" {
		return errors.New("reminder request id is required")
	}
	if !r.Channel.Valid() {
		return fmt.Errorf("invalid reminder channel %q", r.Channel)
	}
	if r.SentAt.IsZero() {
		return errors.New("reminder sent_at is required")
	}
	return nil
}
