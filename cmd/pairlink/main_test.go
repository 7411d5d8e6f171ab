package main

import (
	"testing"
	"time"

	"github.com/pairloop/pairlink/pkg/chat"
	"github.com/pairloop/pairlink/pkg/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderedAt(t *testing.T, msgs ...chat.Message) []transcript.Entry {
	t.Helper()
	return transcript.Render(msgs, "U1", time.UTC)
}

func TestPrintCursor(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	m1 := chat.Message{ID: "m1", Text: "one", SenderID: "U1", CreatedAt: base}
	m2 := chat.Message{ID: "m2", Text: "two", SenderID: "U2", CreatedAt: base.Add(time.Minute)}
	m3 := chat.Message{ID: "m3", Text: "three", SenderID: "U1", CreatedAt: base.Add(2 * time.Minute)}
	early := chat.Message{ID: "m0", Text: "late arrival", SenderID: "U2", CreatedAt: base.Add(-time.Minute)}

	t.Run("appended entries resume after the cursor", func(t *testing.T) {
		cursor := &printCursor{}

		start, replay := cursor.advance(renderedAt(t, m1, m2))
		require.False(t, replay)
		assert.Equal(t, 0, start)

		start, replay = cursor.advance(renderedAt(t, m1, m2, m3))
		require.False(t, replay)
		assert.Equal(t, 2, start, "only the new entry prints")
	})

	t.Run("insertion before the cursor replays the transcript", func(t *testing.T) {
		cursor := &printCursor{}
		cursor.advance(renderedAt(t, m1, m2))

		start, replay := cursor.advance(renderedAt(t, early, m1, m2))
		assert.True(t, replay)
		assert.Equal(t, 0, start)
	})

	t.Run("insertion and append together replay once", func(t *testing.T) {
		cursor := &printCursor{}
		cursor.advance(renderedAt(t, m1, m2))

		start, replay := cursor.advance(renderedAt(t, early, m1, m2, m3))
		assert.True(t, replay)
		assert.Equal(t, 0, start)

		start, replay = cursor.advance(renderedAt(t, early, m1, m2, m3))
		assert.False(t, replay)
		assert.Equal(t, 4, start, "nothing new to print")
	})

	t.Run("empty snapshot prints nothing", func(t *testing.T) {
		cursor := &printCursor{}
		start, replay := cursor.advance(nil)
		assert.False(t, replay)
		assert.Equal(t, 0, start)
	})
}
