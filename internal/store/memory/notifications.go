package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobmate/alert-service/internal/model"
)

// NotificationStore records every created notification.
type NotificationStore struct {
	mu      sync.Mutex
	records []model.NotificationRecord

	// Err, when set, makes Create fail.
	Err error
}

func NewNotificationStore() *NotificationStore { return &NotificationStore{} }

func (s *NotificationStore) Create(_ context.Context, draft model.NotificationDraft) (*model.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	rec := model.NotificationRecord{ID: uuid.NewString(), Draft: draft, CreatedAt: time.Now().UTC()}
	s.records = append(s.records, rec)
	return &rec, nil
}

// Records returns a copy of everything created so far.
func (s *NotificationStore) Records() []model.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NotificationRecord(nil), s.records...)
}
