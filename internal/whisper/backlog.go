package whisper

import (
	"slices"

	"whisperq/internal/models"
)

// backlog is the FIFO of whispers not yet handed out. Ineligible entries are
// skipped in place, so only the entry that is taken ever moves.
type backlog struct {
	items []models.PendingMessage
}

func (b *backlog) push(msg models.PendingMessage) {
	b.items = append(b.items, msg)
}

func (b *backlog) len() int {
	return len(b.items)
}

// takeFirst removes and returns the oldest entry accepted by eligible.
func (b *backlog) takeFirst(eligible func(models.PendingMessage) bool) (models.PendingMessage, bool) {
	for i, msg := range b.items {
		if !eligible(msg) {
			continue
		}
		b.items = slices.Delete(b.items, i, i+1)
		return msg, true
	}
	return models.PendingMessage{}, false
}

func (b *backlog) count(match func(models.PendingMessage) bool) int {
	n := 0
	for _, msg := range b.items {
		if match(msg) {
			n++
		}
	}
	return n
}

func (b *backlog) snapshot() []models.PendingMessage {
	return slices.Clone(b.items)
}
