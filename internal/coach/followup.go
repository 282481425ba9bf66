package coach

import (
	"time"

	"github.com/ashureev/betterme/internal/domain"
)

// scheduleFollowup ties a pending reminder to the user message sent at userTS.
func scheduleFollowup(state *domain.UserState, userTS time.Time, after time.Duration) {
	if after <= 0 {
		return
	}
	at := userTS.Add(after)
	ts := userTS
	state.Followup.PendingAt = &at
	state.Followup.PendingForTS = &ts
}

// deliverDueFollowup appends the reminder to history when it is due and the
// user has not written since it was scheduled. It reports whether history changed.
func deliverDueFollowup(state *domain.UserState, now time.Time, historyLimit int) bool {
	f := &state.Followup
	if f.PendingAt == nil || now.Before(*f.PendingAt) {
		return false
	}

	last, ok := state.LastUserEntry()
	stale := !ok || f.PendingForTS == nil || !last.TS.Equal(*f.PendingForTS)
	f.PendingAt = nil
	f.PendingForTS = nil
	if stale {
		return false
	}

	sent := now
	f.LastSentAt = &sent
	state.AppendHistory(domain.HistoryEntry{
		Role:  domain.RoleCoach,
		Text:  followupText,
		TS:    now,
		Kind:  domain.KindFollowup,
		Topic: last.Topic,
	}, historyLimit)
	return true
}
