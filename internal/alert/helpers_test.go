package alert_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"jobmate/alert-service/internal/model"
)

var day0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func i64(v int64) *int64 { return &v }

func at(t time.Time) *time.Time { return &t }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func backendAlert(id string) model.Criteria {
	return model.Criteria{
		ID:        id,
		OwnerID:   "user-1",
		Name:      "Backend in Hanoi",
		Keywords:  []string{"backend"},
		Locations: []string{"Hanoi"},
		Cadence:   model.CadenceDaily,
		Channels:  model.Channels{InApp: true, Email: true},
		Active:    true,
	}
}

func job(id, title, location string, created time.Time) model.CatalogEntry {
	return model.CatalogEntry{
		ID:        id,
		Title:     title,
		Location:  location,
		CreatedAt: created,
		Active:    true,
	}
}

// stubLocker hands out one lock per key.
type stubLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *stubLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}

// capturePublisher records published events.
type capturePublisher struct {
	mu       sync.Mutex
	channels []string
	fail     bool
}

func (p *capturePublisher) Publish(_ context.Context, channel string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	if p.fail {
		return errors.New("redis down")
	}
	return nil
}

func (p *capturePublisher) count(channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.channels {
		if c == channel {
			n++
		}
	}
	return n
}
