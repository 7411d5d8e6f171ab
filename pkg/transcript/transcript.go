// Package transcript derives per-message display metadata from a
// chronological message snapshot: date separator boundaries, end-of-run
// timestamps, and self/peer classification. It is a pure function of its
// inputs and holds no state.
package transcript

import (
	"time"

	"github.com/pairloop/pairlink/pkg/chat"
)

// Entry is one rendered line of the transcript.
type Entry struct {
	chat.Message
	// DateBreak marks the first message of a calendar day; the renderer
	// is expected to draw a date separator above it.
	DateBreak bool
	// ShowTime marks the last message of a consecutive same-sender run,
	// and the last message overall.
	ShowTime bool
	// Self is true when the message was authored by selfID. Evaluated
	// per message, never cached for the whole transcript.
	Self bool
}

// Render derives transcript entries from a chronological snapshot.
// Calendar days are computed in loc; pass nil for time.Local.
func Render(msgs []chat.Message, selfID string, loc *time.Location) []Entry {
	if loc == nil {
		loc = time.Local
	}
	entries := make([]Entry, 0, len(msgs))
	for i, m := range msgs {
		e := Entry{
			Message: m,
			Self:    m.SenderID == selfID,
		}

		if i == 0 {
			e.DateBreak = true
		} else {
			e.DateBreak = !sameDay(msgs[i-1].CreatedAt, m.CreatedAt, loc)
		}

		if i == len(msgs)-1 {
			e.ShowTime = true
		} else {
			e.ShowTime = msgs[i+1].SenderID != m.SenderID
		}

		entries = append(entries, e)
	}
	return entries
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
