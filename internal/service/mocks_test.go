package service

import (
	"context"
	"io"
	"sync"

	"whisperq/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendWhisper(ctx context.Context, toUserID, text string) error {
	args := m.Called(ctx, toUserID, text)
	return args.Error(0)
}

// fakeQueue hands out its messages in order, up to budget per call sequence.
type fakeQueue struct {
	mu       sync.Mutex
	pending  []models.PendingMessage
	reported []models.PendingMessage
	budget   int
}

func newFakeQueue(budget int, msgs ...models.PendingMessage) *fakeQueue {
	return &fakeQueue{pending: msgs, budget: budget}
}

func (q *fakeQueue) TryTakeNext() (models.PendingMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 || q.budget == 0 {
		return models.PendingMessage{}, false
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return msg, true
}

func (q *fakeQueue) ReportSuccess(msg models.PendingMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reported = append(q.reported, msg)
	q.budget--
}

func (q *fakeQueue) AvailablePerSecond() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.budget
}

func (q *fakeQueue) Backlog() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *fakeQueue) Reported() []models.PendingMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingMessage(nil), q.reported...)
}

func whisperTo(id, text string) models.PendingMessage {
	return models.PendingMessage{
		Recipient: models.User{DisplayName: "user" + id, ID: id},
		Text:      text,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
