package whisper

import "sort"

// RecipientBudget bounds how many distinct recipients may be admitted within
// the active window. Recipients already admitted never count against the
// remaining room, so repeat whispers to them are not gated by the cap.
type RecipientBudget struct {
	cap     int
	members map[string]struct{}
}

// NewRecipientBudget creates an empty budget admitting up to n recipients.
func NewRecipientBudget(n int) *RecipientBudget {
	return &RecipientBudget{
		cap:     n,
		members: make(map[string]struct{}),
	}
}

// HasRoomFor reports whether id is already admitted or a new recipient still fits.
func (b *RecipientBudget) HasRoomFor(id string) bool {
	if _, ok := b.members[id]; ok {
		return true
	}
	return len(b.members) < b.cap
}

// Record admits id. Recording the same id twice is a no-op.
func (b *RecipientBudget) Record(id string) {
	b.members[id] = struct{}{}
}

// Clear forgets every admitted recipient.
func (b *RecipientBudget) Clear() {
	clear(b.members)
}

// SetCap replaces the cap. Lowering it below Len keeps current members but
// blocks new recipients until the next Clear.
func (b *RecipientBudget) SetCap(n int) {
	b.cap = n
}

func (b *RecipientBudget) Cap() int {
	return b.cap
}

func (b *RecipientBudget) Len() int {
	return len(b.members)
}

// Members returns the admitted recipient ids in sorted order.
func (b *RecipientBudget) Members() []string {
	ids := make([]string, 0, len(b.members))
	for id := range b.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
