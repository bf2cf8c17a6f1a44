package whisper

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// memStore is an in-memory Store with optional failure injection.
type memStore struct {
	mu            sync.Mutex
	timers        map[string]time.Time
	maxRecipients *int
	saves         int

	getTimerErr error
	saveErr     error
	getMaxErr   error
	setMaxErr   error
}

func newMemStore() *memStore {
	return &memStore{timers: make(map[string]time.Time)}
}

func newMemStoreWithCap(n int) *memStore {
	s := newMemStore()
	s.maxRecipients = &n
	return s
}

func (s *memStore) GetTimer(_ context.Context, name string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getTimerErr != nil {
		return nil, s.getTimerErr
	}
	ts, ok := s.timers[name]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

func (s *memStore) SaveTimer(_ context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.timers[name] = at
	s.saves++
	return nil
}

func (s *memStore) GetMaxWhisperRecipients(_ context.Context) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getMaxErr != nil {
		return 0, false, s.getMaxErr
	}
	if s.maxRecipients == nil {
		return 0, false, nil
	}
	return *s.maxRecipients, true, nil
}

func (s *memStore) SetMaxWhisperRecipients(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setMaxErr != nil {
		return s.setMaxErr
	}
	s.maxRecipients = &n
	return nil
}

func (s *memStore) setTimer(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[name] = at
}

func (s *memStore) timer(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.timers[name]
	return ts, ok
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
