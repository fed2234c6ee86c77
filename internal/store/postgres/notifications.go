package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"jobmate/alert-service/internal/model"
)

// NotificationStore inserts into the notifications table. Delivery is the
// notification service's concern.
type NotificationStore struct {
	db DB
}

// NewNotificationStore returns a configured NotificationStore.
func NewNotificationStore(db DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Create inserts one notification built from draft.
func (s *NotificationStore) Create(ctx context.Context, draft model.NotificationDraft) (*model.NotificationRecord, error) {
	channels, err := json.Marshal(draft.Channels)
	if err != nil {
		return nil, fmt.Errorf("marshal channels: %w", err)
	}
	action, err := json.Marshal(draft.Action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	metadata, err := json.Marshal(draft.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	rec := model.NotificationRecord{Draft: draft}
	err = s.db.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, title, message, priority, channels, action, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8::jsonb)
		 RETURNING id::text, created_at`,
		draft.OwnerID, draft.Type, draft.Title, draft.Body, draft.Priority,
		string(channels), string(action), string(metadata),
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("createNotification: %w", err)
	}
	return &rec, nil
}
